package scan

import (
	"path/filepath"
	"strings"
)

// binaryExts lists extensions that are obviously not text. Files matching
// these are skipped without scanning, but their bytes still count toward
// progress.
var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".pdf": true, ".zip": true, ".rar": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true,
}

// LooksLikeText reports whether the file is worth scanning for tokens.
// This is a fast extension check, not a content sniff.
func LooksLikeText(path string) bool {
	return !binaryExts[strings.ToLower(filepath.Ext(path))]
}
