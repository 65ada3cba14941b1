package session

import (
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/gift"

	"github.com/MeKo-Tech/photoedit/internal/history"
	"github.com/MeKo-Tech/photoedit/internal/imageio"
)

// cropSnapshot cuts r (native pixels) out of cur and scales the result by
// dpr.
func cropSnapshot(cur history.Snapshot, r image.Rectangle, dpr float64, level png.CompressionLevel) (history.Snapshot, error) {
	if r.Empty() {
		return history.Snapshot{}, fmt.Errorf("%w: selection does not intersect the image", ErrCropFailed)
	}
	img, _, err := imageio.Decode(cur.Data)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("%w: %w", ErrCropFailed, err)
	}
	r = r.Add(img.Bounds().Min)

	w := int(math.Round(float64(r.Dx()) * dpr))
	h := int(math.Round(float64(r.Dy()) * dpr))
	filters := []gift.Filter{gift.Crop(r)}
	if w != r.Dx() || h != r.Dy() {
		filters = append(filters, gift.Resize(w, h, gift.LanczosResampling))
	}

	g := gift.New(filters...)
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)

	snap, err := imageio.FromImage(dst, level)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("%w: %w", ErrCropFailed, err)
	}
	return snap, nil
}
