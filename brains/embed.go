// Package brains holds the built-in brain manifest and scripts.
package brains

import "embed"

// FS is the embedded brains.yaml and .risor scripts.
//
//go:embed brains.yaml *.risor
var FS embed.FS
