// Package web embeds the static portfolio site served at the root path.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist
var Assets embed.FS

// Dist returns the site rooted at dist/, so index.html is at the top level.
func Dist() (fs.FS, error) {
	return fs.Sub(Assets, "dist")
}
