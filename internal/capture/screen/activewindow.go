package screen

import "context"

// Fallbacks when the host cannot tell us what is frontmost. Capture
// proceeds with these rather than dropping the frame.
const (
	UnknownWindow = "Unknown Window"
	UnknownApp    = "Unknown App"
)

// ActiveWindow resolves the foreground window title and owning
// application name via the platform's own tooling (see the build-tagged
// files). All lookups are bounded by a 2 second timeout; on any failure
// the Unknown placeholders come back with a nil error, since "we don't
// know" is an answer, not a fault.
func ActiveWindow(ctx context.Context) (title, app string) {
	ctx, cancel := context.WithTimeout(ctx, activeWindowTimeout)
	defer cancel()
	return activeWindow(ctx)
}
