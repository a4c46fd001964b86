package gatekeeper

import "strings"

var assetPrefixes = []string{
	"_next/static",
	"_next/image",
	"favicon.ico",
}

var assetExtensions = []string{
	".svg",
	".png",
	".jpg",
	".jpeg",
	".gif",
	".webp",
}

// IsStaticAsset reports whether path is served straight to the renderer,
// bypassing the gatekeeper and the session refresh.
func IsStaticAsset(path string) bool {
	p := strings.TrimPrefix(path, "/")
	for _, prefix := range assetPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for _, ext := range assetExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}
