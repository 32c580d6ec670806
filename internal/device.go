package internal

import "strings"

// DeviceTypeFromUserAgent buckets a user agent into a coarse device
// class for display and history records. It is a heuristic, not a
// parser; unknown agents fall back to "unknown".
func DeviceTypeFromUserAgent(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return "mobile"
	case strings.Contains(ua, "curl/") || strings.Contains(ua, "wget/") || strings.Contains(ua, "python-requests"):
		return "cli"
	case strings.Contains(ua, "mozilla") || strings.Contains(ua, "safari") || strings.Contains(ua, "chrome"):
		return "desktop"
	default:
		return "unknown"
	}
}
