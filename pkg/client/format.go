package client

import (
	"fmt"
	"net/url"
	"strings"
)

// FormatSize renders a byte count in KB below one megabyte and in MB above it,
// with two decimals.
func FormatSize(bytes int64) string {
	kb := float64(bytes) / 1024
	if kb < 1024 {
		return fmt.Sprintf("%.2f KB", kb)
	}
	mb := kb / 1024
	if mb < 1024 {
		return fmt.Sprintf("%.2f MB", mb)
	}
	return fmt.Sprintf("%.2f GB", mb/1024)
}

// ShareLink is the public page address for a share token.
func ShareLink(origin, token string) string {
	return strings.TrimRight(origin, "/") + "/shared/" + token
}

// TokenFromLink accepts either a bare token or a share link and returns the token.
func TokenFromLink(value string) string {
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "/") {
		return value
	}
	path := value
	if u, err := url.Parse(value); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	if idx := strings.LastIndex(path, "/shared/"); idx >= 0 {
		return path[idx+len("/shared/"):]
	}
	return path[strings.LastIndex(path, "/")+1:]
}
