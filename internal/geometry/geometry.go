// Package geometry computes the rectangles used by the thumbnail transforms.
//
// Every function here is pure: it takes source and target dimensions and
// returns sizes or positions. Pixels are never touched.
package geometry

import "image"

// Mode selects how an image is scaled into a target box.
//
// The numeric values are serialized into operation queues and therefore
// into cache keys, so they must never change.
type Mode int

const (
	NoScale    Mode = 0  // keep the original size
	FitInside  Mode = -1 // scale to fit entirely inside the box
	FitOutside Mode = 1  // scale to cover the whole box
	ScaleToFit Mode = 2  // force the exact box size, ignoring aspect ratio
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case NoScale:
		return "no_scale"
	case FitInside:
		return "fit_inside"
	case FitOutside:
		return "fit_outside"
	case ScaleToFit:
		return "scale_to_fit"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	switch m {
	case NoScale, FitInside, FitOutside, ScaleToFit:
		return true
	default:
		return false
	}
}

// ParseMode parses a mode name as returned by Mode.String.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "no_scale":
		return NoScale, true
	case "fit_inside", "":
		return FitInside, true
	case "fit_outside":
		return FitOutside, true
	case "scale_to_fit":
		return ScaleToFit, true
	default:
		return FitInside, false
	}
}

// FitInsideSize scales (w0, h0) so it fits entirely within (width, height),
// preserving the aspect ratio.
//
// When w0/h0 > width/height the result is scaled by width, otherwise by
// height. Ratios are compared by cross-multiplication, so equal ratios take
// the height branch.
func FitInsideSize(w0, h0, width, height int) (int, int) {
	if w0 <= 0 || h0 <= 0 {
		return 0, 0
	}

	if wider(w0, h0, width, height) {
		return width, atLeastOne(h0 * width / w0)
	}

	return atLeastOne(w0 * height / h0), height
}

// FitOutsideSize scales (w0, h0) so it covers (width, height) entirely,
// preserving the aspect ratio. It is the dual of FitInsideSize.
func FitOutsideSize(w0, h0, width, height int) (int, int) {
	if w0 <= 0 || h0 <= 0 {
		return 0, 0
	}

	if wider(w0, h0, width, height) {
		return atLeastOne(w0 * height / h0), height
	}

	return width, atLeastOne(h0 * width / w0)
}

// wider reports whether w0/h0 > width/height.
func wider(w0, h0, width, height int) bool {
	return w0*height > width*h0
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// ResizePlan describes how a resize is carried out.
type ResizePlan struct {
	// Noop is set when the source must be returned unchanged.
	Noop bool

	// Scaled is the size the source is resampled to.
	Scaled image.Point

	// Canvas is the size of the output image.
	Canvas image.Point

	// Offset is where the scaled image is placed on the canvas.
	Offset image.Point

	// Mode is the mode that was actually applied.
	Mode Mode
}

// PlanResize computes the resize of a w0 x h0 image towards width x height.
//
// A zero width or height means "not given". When neither is given the plan
// is a no-op. When only one is given (and mode is not NoScale) the mode is
// forced to FitOutside and the missing side is treated as a 1 pixel target,
// which scales by the given side only. With forceAspect the canvas takes the
// requested size and the scaled image is centred on it; on a missing side
// the canvas follows the scaled size.
func PlanResize(w0, h0, width, height int, mode Mode, forceAspect bool) ResizePlan {
	if width <= 0 && height <= 0 {
		return ResizePlan{Noop: true, Scaled: image.Pt(w0, h0), Canvas: image.Pt(w0, h0), Mode: mode}
	}

	missingW, missingH := width <= 0, height <= 0
	if (missingW || missingH) && mode != NoScale {
		mode = FitOutside
		if missingW {
			width = 1
		} else {
			height = 1
		}
	}

	if w0 == width && h0 == height {
		return ResizePlan{Noop: true, Scaled: image.Pt(w0, h0), Canvas: image.Pt(w0, h0), Mode: mode}
	}

	var w1, h1 int
	switch mode {
	case FitInside:
		w1, h1 = FitInsideSize(w0, h0, width, height)
	case FitOutside:
		w1, h1 = FitOutsideSize(w0, h0, width, height)
	case ScaleToFit:
		w1, h1 = width, height
	default:
		mode = NoScale
		w1, h1 = w0, h0
	}

	w2, h2 := w1, h1
	if forceAspect && mode != ScaleToFit {
		if !missingW {
			w2 = width
		}
		if !missingH {
			h2 = height
		}
	}

	return ResizePlan{
		Scaled: image.Pt(w1, h1),
		Canvas: image.Pt(w2, h2),
		Offset: image.Pt((w2-w1)/2, (h2-h1)/2),
		Mode:   mode,
	}
}

// CropOrigin returns where the source must be pasted on a crop canvas so
// that the canvas origin shows source pixel (x, y).
//
// This is the same as copying the source region starting at
// (max(x,0), max(y,0)) to canvas position (max(-x,0), max(-y,0)), clipped
// to both bounds. Negative x/y expose background on the top-left.
func CropOrigin(x, y int) image.Point {
	return image.Pt(-x, -y)
}

// OffsetLayout returns the canvas size and source position for an offset
// of a w x h image. Negative offsets trim the source on that side; each
// axis is clipped independently.
func OffsetLayout(w, h, top, right, bottom, left int) (canvas, pos image.Point) {
	return image.Pt(w+left+right, h+top+bottom), image.Pt(left, top)
}
