// Package imagemeta reads the natural pixel dimensions of vault
// images. Dimensions are what aspect-ratio-locked resizes are computed
// from; the rewrite engine itself never looks at pixels.
package imagemeta

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// NaturalSize returns the pixel width and height of an encoded image.
// For JPEGs the EXIF orientation is honored: orientations 5 through 8
// rotate the raster a quarter turn, so the reported axes are swapped.
func NaturalSize(data []byte) (width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imagemeta: decode: %w", err)
	}
	width, height = cfg.Width, cfg.Height
	if format == "jpeg" && orientationSwapsAxes(data) {
		width, height = height, width
	}
	return width, height, nil
}

// orientationSwapsAxes reports whether the EXIF orientation tag holds a
// value of 5-8. Missing or unreadable EXIF means no swap.
func orientationSwapsAxes(data []byte) bool {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return false
	}
	o, err := tag.Int(0)
	if err != nil {
		return false
	}
	return o >= 5 && o <= 8
}

// FitHeight computes the height that keeps newWidth at the image's
// natural aspect ratio. Zero natural dimensions yield zero.
func FitHeight(newWidth, naturalWidth, naturalHeight int) int {
	if naturalWidth <= 0 || naturalHeight <= 0 || newWidth <= 0 {
		return 0
	}
	return int(math.Round(float64(newWidth) / float64(naturalWidth) * float64(naturalHeight)))
}

// Decodable reports whether NaturalSize can handle files with the given
// extension. SVG and WebP images live in the vault but carry no raster
// config the stdlib can read.
func Decodable(ext string) bool {
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}
