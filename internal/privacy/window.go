package privacy

import "strings"

// ShouldCapture reports whether a window belonging to appName with the
// given title should be captured, or suppressed entirely. Password
// managers are excluded by app name; private/incognito browsing and
// anything with "password" in the title is excluded regardless of app.
func ShouldCapture(appName, title string, excludedApps, excludedTitleWords []string) bool {
	lowerApp := strings.ToLower(appName)
	for _, excluded := range excludedApps {
		if strings.Contains(lowerApp, strings.ToLower(excluded)) {
			return false
		}
	}

	lowerTitle := strings.ToLower(title)
	for _, word := range excludedTitleWords {
		if strings.Contains(lowerTitle, strings.ToLower(word)) {
			return false
		}
	}

	return true
}
