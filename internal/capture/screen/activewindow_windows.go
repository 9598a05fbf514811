//go:build windows

package screen

import (
	"context"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const activeWindowTimeout = 2 * time.Second

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWindow  = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowThreadProc  = user32.NewProc("GetWindowThreadProcessId")
)

// activeWindow resolves the foreground window and its owning executable
// name via the Win32 API. These calls return immediately, so the
// context's deadline is only relevant on the process-image query.
func activeWindow(ctx context.Context) (title, app string) {
	title, app = UnknownWindow, UnknownApp

	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return
	}

	var buf [512]uint16
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n > 0 {
		title = syscall.UTF16ToString(buf[:n])
	}

	var pid uint32
	procGetWindowThreadProc.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return
	}

	handle, err := windows.OpenProcess(
		windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return
	}
	defer windows.CloseHandle(handle)

	var exe [windows.MAX_PATH]uint16
	size := uint32(len(exe))
	if err := windows.QueryFullProcessImageName(handle, 0, &exe[0], &size); err != nil {
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}
	app = filepath.Base(syscall.UTF16ToString(exe[:size]))
	return
}
