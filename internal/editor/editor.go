// Package editor defines the external generative-image service the session
// controller delegates every non-local edit to.
package editor

import (
	"context"
	"image"
)

// Image is an encoded image sent to or returned from the service.
type Image struct {
	Data     []byte
	MIMEType string
}

// Editor is the generative image service. Every operation returns a new
// image or an error; implementations should report failures as *Error so
// callers can tell a policy block from a missing result.
type Editor interface {
	// PointEdit applies instruction around a native-space hotspot.
	PointEdit(ctx context.Context, img Image, instruction string, hotspot image.Point) (Image, error)
	// MaskFill regenerates the white region of mask according to instruction.
	MaskFill(ctx context.Context, img Image, mask Image, instruction string) (Image, error)
	// StyleOrAdjust applies instruction to the whole image, optionally guided
	// by a reference image.
	StyleOrAdjust(ctx context.Context, img Image, instruction string, reference *Image) (Image, error)
	// FaceSwap puts the face from source onto target.
	FaceSwap(ctx context.Context, source Image, target Image) (Image, error)
	// Combine merges img and other according to instruction.
	Combine(ctx context.Context, img Image, other Image, instruction string) (Image, error)
}

// Op names an Editor operation in errors and logs.
type Op string

const (
	OpPointEdit     Op = "point_edit"
	OpMaskFill      Op = "mask_fill"
	OpStyleOrAdjust Op = "style_or_adjust"
	OpFaceSwap      Op = "face_swap"
	OpCombine       Op = "combine"
)
