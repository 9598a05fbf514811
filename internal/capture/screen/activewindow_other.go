//go:build !linux && !darwin && !windows

package screen

import (
	"context"
	"time"
)

const activeWindowTimeout = 2 * time.Second

func activeWindow(context.Context) (title, app string) {
	return UnknownWindow, UnknownApp
}
