package geometry

// Gravity is a named anchor used to position a crop region.
type Gravity string

const (
	Top         Gravity = "T"
	TopLeft     Gravity = "TL"
	TopRight    Gravity = "TR"
	Bottom      Gravity = "B"
	BottomLeft  Gravity = "BL"
	BottomRight Gravity = "BR"
	Left        Gravity = "L"
	Right       Gravity = "R"
	Center      Gravity = "C"
)

// ZoomCropOrigin returns the top-left corner of a w1 x h1 region anchored
// inside a w0 x h0 image by gravity. Unknown gravities fall back to center.
func ZoomCropOrigin(w0, h0, w1, h1 int, g Gravity) (x, y int) {
	switch g {
	case TopLeft, Left, BottomLeft:
		x = 0
	case TopRight, Right, BottomRight:
		x = w0 - w1
	default:
		x = floorHalf(w0 - w1)
	}

	switch g {
	case TopLeft, Top, TopRight:
		y = 0
	case BottomLeft, Bottom, BottomRight:
		y = h0 - h1
	default:
		y = floorHalf(h0 - h1)
	}

	return x, y
}

// floorHalf divides by two rounding towards negative infinity.
func floorHalf(v int) int {
	if v < 0 {
		return -((-v + 1) / 2)
	}
	return v / 2
}
