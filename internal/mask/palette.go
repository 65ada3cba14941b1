package mask

import "image/color"

// Palette parameterizes a mask surface: the translucent tint strokes are
// painted with on screen, and the two colours the binary mask uses for
// unpainted (Default) and painted (Marked) pixels.
type Palette struct {
	Name    string
	Tint    color.NRGBA
	Default color.Gray
	Marked  color.Gray
}

var (
	// FillPalette marks painted pixels white: "regenerate this region".
	FillPalette = Palette{
		Name:    "fill",
		Tint:    color.NRGBA{R: 255, G: 59, B: 48, A: 128},
		Default: color.Gray{Y: 0},
		Marked:  color.Gray{Y: 255},
	}

	// ProtectPalette marks painted pixels black: "keep this region". The
	// inpainting service expects white = change, so the mask is inverted
	// relative to FillPalette.
	ProtectPalette = Palette{
		Name:    "protect",
		Tint:    color.NRGBA{R: 52, G: 199, B: 89, A: 128},
		Default: color.Gray{Y: 255},
		Marked:  color.Gray{Y: 0},
	}
)
