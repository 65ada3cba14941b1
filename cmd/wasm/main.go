//go:build js && wasm

// Command wasm exposes the mask surface to the browser so strokes can be
// painted locally and the rasterized mask uploaded with PUT /{id}/mask.
package main

import (
	"fmt"
	"image/png"
	"syscall/js"

	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/mask"
)

var (
	surfaces = map[int]*mask.Surface{}
	nextID   = 1
)

func jsError(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

func surfaceArg(args []js.Value) (*mask.Surface, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("missing surface handle")
	}
	s, ok := surfaces[args[0].Int()]
	if !ok {
		return nil, fmt.Errorf("unknown surface %d", args[0].Int())
	}
	return s, nil
}

func pointArg(args []js.Value) (orb.Point, error) {
	if len(args) < 3 {
		return orb.Point{}, fmt.Errorf("expected handle, x, y")
	}
	return orb.Point{args[1].Float(), args[2].Float()}, nil
}

// surfaceNew(palette, width, height) returns a handle. palette is "fill" or
// "protect".
func surfaceNew(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return jsError("expected palette, width, height")
	}
	var p mask.Palette
	switch args[0].String() {
	case mask.FillPalette.Name:
		p = mask.FillPalette
	case mask.ProtectPalette.Name:
		p = mask.ProtectPalette
	default:
		return jsError("unknown palette %q", args[0].String())
	}
	id := nextID
	nextID++
	surfaces[id] = mask.NewSurface(p, args[1].Int(), args[2].Int())
	return id
}

func withPoint(fn func(s *mask.Surface, p orb.Point)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		s, err := surfaceArg(args)
		if err != nil {
			return jsError("%v", err)
		}
		p, err := pointArg(args)
		if err != nil {
			return jsError("%v", err)
		}
		fn(s, p)
		return s.HasPaint()
	})
}

func withSurface(fn func(s *mask.Surface)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		s, err := surfaceArg(args)
		if err != nil {
			return jsError("%v", err)
		}
		fn(s)
		return s.HasPaint()
	})
}

// surfaceResize(handle, width, height) clears the surface.
func surfaceResize(this js.Value, args []js.Value) any {
	s, err := surfaceArg(args)
	if err != nil {
		return jsError("%v", err)
	}
	if len(args) < 3 {
		return jsError("expected handle, width, height")
	}
	s.Resize(args[1].Int(), args[2].Int())
	return nil
}

// surfaceBrush(handle, width, erasing)
func surfaceBrush(this js.Value, args []js.Value) any {
	s, err := surfaceArg(args)
	if err != nil {
		return jsError("%v", err)
	}
	if len(args) < 3 {
		return jsError("expected handle, width, erasing")
	}
	if !s.SetBrushSize(args[1].Float()) {
		return jsError("brush width must be positive")
	}
	s.SetErasing(args[2].Bool())
	return nil
}

// surfaceRasterize(handle, nativeWidth, nativeHeight) returns the binary
// mask as PNG bytes.
func surfaceRasterize(this js.Value, args []js.Value) any {
	s, err := surfaceArg(args)
	if err != nil {
		return jsError("%v", err)
	}
	if len(args) < 3 {
		return jsError("expected handle, width, height")
	}
	m, err := mask.Rasterize(s, args[1].Int(), args[2].Int())
	if err != nil {
		return jsError("%v", err)
	}
	data, err := imageio.EncodePNG(m, png.DefaultCompression)
	if err != nil {
		return jsError("%v", err)
	}
	out := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(out, data)
	return out
}

func surfaceFree(this js.Value, args []js.Value) any {
	if len(args) > 0 {
		delete(surfaces, args[0].Int())
	}
	return nil
}

func main() {
	c := make(chan struct{})

	js.Global().Set("photoeditSurfaceNew", js.FuncOf(surfaceNew))
	js.Global().Set("photoeditSurfacePointerDown", withPoint((*mask.Surface).PointerDown))
	js.Global().Set("photoeditSurfacePointerMove", withPoint((*mask.Surface).PointerMove))
	js.Global().Set("photoeditSurfacePointerUp", withSurface((*mask.Surface).PointerUp))
	js.Global().Set("photoeditSurfacePointerLeave", withSurface((*mask.Surface).PointerLeave))
	js.Global().Set("photoeditSurfaceUndo", withSurface((*mask.Surface).UndoStroke))
	js.Global().Set("photoeditSurfaceClear", withSurface((*mask.Surface).Clear))
	js.Global().Set("photoeditSurfaceHasPaint", withSurface(func(*mask.Surface) {}))
	js.Global().Set("photoeditSurfaceResize", js.FuncOf(surfaceResize))
	js.Global().Set("photoeditSurfaceBrush", js.FuncOf(surfaceBrush))
	js.Global().Set("photoeditSurfaceRasterize", js.FuncOf(surfaceRasterize))
	js.Global().Set("photoeditSurfaceFree", js.FuncOf(surfaceFree))

	fmt.Println("photoedit mask module loaded")
	<-c
}
