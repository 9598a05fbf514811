//go:build linux

package screen

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

const activeWindowTimeout = 2 * time.Second

// activeWindow resolves the foreground window via xdotool, then the
// owning process name from /proc/<pid>/comm. Works on X11 and XWayland;
// on a pure Wayland session xdotool fails and the Unknowns come back.
func activeWindow(ctx context.Context) (title, app string) {
	title, app = UnknownWindow, UnknownApp

	windowID := runOut(ctx, "xdotool", "getactivewindow")
	if windowID == "" {
		return
	}
	if name := runOut(ctx, "xdotool", "getwindowname", windowID); name != "" {
		title = name
	}
	pid := runOut(ctx, "xdotool", "getwindowpid", windowID)
	if pid == "" {
		return
	}
	comm, err := os.ReadFile("/proc/" + pid + "/comm")
	if err != nil {
		return
	}
	if name := strings.TrimSpace(string(comm)); name != "" {
		app = name
	}
	return
}

func runOut(ctx context.Context, name string, args ...string) string {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
