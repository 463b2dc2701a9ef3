package ui

import (
	"image"
	"image/color"

	"github.com/eliukblau/pixterm/pkg/ansimage"

	"github.com/ray-d-song/bookimg/pkg/utils"
)

// RenderANSI renders img as ANSI true-color half blocks fitted into cols x rows
// terminal cells. Non-positive sizes fall back to the current terminal size.
func RenderANSI(img image.Image, cols, rows int) (string, error) {
	if cols <= 0 || rows <= 0 {
		width, height := utils.GetTermSize()
		if cols <= 0 {
			cols = width
		}
		if rows <= 0 {
			rows = height - 1
		}
	}
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	// each cell holds two vertical pixels
	pix, err := ansimage.NewScaledFromImage(img, 2*rows, cols, color.Transparent, ansimage.ScaleModeFit, ansimage.NoDithering)
	if err != nil {
		return "", err
	}
	return pix.Render(), nil
}
