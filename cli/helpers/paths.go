package helpers

import (
	"path/filepath"
	"strings"
)

// SuffixedPath returns path with suffix inserted before its extension, so
// "Flow.json" with "_FIXED" becomes "Flow_FIXED.json".
func SuffixedPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
