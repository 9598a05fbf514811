//go:build darwin

package screen

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const activeWindowTimeout = 2 * time.Second

const frontAppScript = `tell application "System Events" to get name of first application process whose frontmost is true`

// activeWindow resolves the frontmost app via AppleScript, then asks
// that app's process for its front window title. The title lookup is
// app-specific and allowed to fail; the app name alone is still useful.
func activeWindow(ctx context.Context) (title, app string) {
	title, app = UnknownWindow, UnknownApp

	name := osascript(ctx, frontAppScript)
	if name == "" {
		return
	}
	app = name

	titleScript := `tell application "System Events" to tell process "` + name + `"
	try
		return name of front window
	on error
		return ""
	end try
end tell`
	if t := osascript(ctx, titleScript); t != "" {
		title = t
	} else {
		title = app
	}
	return
}

func osascript(ctx context.Context, script string) string {
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
