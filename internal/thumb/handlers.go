package thumb

import (
	"fmt"
	"image"
	"image/color"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/geometry"
)

// Background is a canvas fill colour. A is on the 0 (opaque) .. 127
// (transparent) scale, so the zero value is opaque black.
type Background struct {
	R, G, B, A int
}

func (b Background) args() []any {
	return []any{b.R, b.G, b.B, b.A}
}

// CallbackFunc is a user-supplied transform. It reads and replaces the
// bitmap through p.
type CallbackFunc func(p *Processor, args ...any) error

// Callback pairs a function with the stable identifier that represents it
// in cache keys. Two callbacks with the same ID must do the same thing.
type Callback struct {
	ID string
	Fn CallbackFunc
}

// CacheKey implements Keyer.
func (c Callback) CacheKey() string {
	return "callback:" + c.ID
}

// builtin is a handler whose arguments are decoded before any bitmap is
// touched, so they can be validated on their own.
type builtin[T any] struct {
	decode func(args []any) (T, error)
	apply  func(p *Processor, v T) error
}

// Apply implements Handler.
func (b builtin[T]) Apply(p *Processor, args []any) error {
	v, err := b.decode(args)
	if err != nil {
		return err
	}

	return b.apply(p, v)
}

// Validate implements Validator.
func (b builtin[T]) Validate(args []any) error {
	_, err := b.decode(args)
	return err
}

func background(a Args, from int) (color.NRGBA, error) {
	c, err := a.Ints(from, 0, 0, 0, 0)
	if err != nil {
		return color.NRGBA{}, err
	}

	return bitmap.Background(c[0], c[1], c[2], c[3]), nil
}

type resizeArgs struct {
	width, height int
	mode          geometry.Mode
	forceAspect   bool
	bg            color.NRGBA
}

// decodeResize: width, height, mode, forceAspect, r, g, b, a.
func decodeResize(list []any) (resizeArgs, error) {
	a := NewArgs(OpResize, list)
	if err := a.Arity(0, 8); err != nil {
		return resizeArgs{}, err
	}

	size, err := a.Ints(0, 0, 0, int(geometry.FitInside))
	if err != nil {
		return resizeArgs{}, err
	}
	mode := geometry.Mode(size[2])
	if !mode.Valid() {
		return resizeArgs{}, fmt.Errorf("%w: resize mode %d", ErrInvalidArgument, size[2])
	}
	far, err := a.Bool(3, false)
	if err != nil {
		return resizeArgs{}, err
	}
	bg, err := background(a, 4)
	if err != nil {
		return resizeArgs{}, err
	}

	return resizeArgs{width: size[0], height: size[1], mode: mode, forceAspect: far, bg: bg}, nil
}

func applyResize(p *Processor, r resizeArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	out, changed, err := resize(p, img, r.width, r.height, r.mode, r.forceAspect, r.bg)
	if err != nil || !changed {
		return err
	}

	return p.Replace(out)
}

func resize(p *Processor, img image.Image, width, height int, mode geometry.Mode, far bool, bg color.NRGBA) (image.Image, bool, error) {
	if err := p.checkSize(OpResize, width, height); err != nil {
		return nil, false, err
	}

	b := img.Bounds()

	plan := geometry.PlanResize(b.Dx(), b.Dy(), width, height, mode, far)
	if plan.Noop {
		return img, false, nil
	}

	if err := p.checkSize(OpResize, plan.Scaled.X, plan.Scaled.Y); err != nil {
		return nil, false, err
	}
	if err := p.checkSize(OpResize, plan.Canvas.X, plan.Canvas.Y); err != nil {
		return nil, false, err
	}

	scaled := img
	if plan.Scaled != b.Size() {
		scaled = bitmap.Scale(img, plan.Scaled.X, plan.Scaled.Y)
	}

	if plan.Canvas == plan.Scaled {
		return scaled, true, nil
	}

	return bitmap.Paste(bitmap.Canvas(plan.Canvas.X, plan.Canvas.Y, bg), scaled, plan.Offset), true, nil
}

type cropArgs struct {
	x, y, width, height int
	bg                  color.NRGBA
}

// decodeCrop: x, y, width, height, r, g, b, a.
func decodeCrop(list []any) (cropArgs, error) {
	a := NewArgs(OpCrop, list)
	if err := a.Arity(4, 8); err != nil {
		return cropArgs{}, err
	}

	rect, err := a.Ints(0, 0, 0, 0, 0)
	if err != nil {
		return cropArgs{}, err
	}
	bg, err := background(a, 4)
	if err != nil {
		return cropArgs{}, err
	}

	return cropArgs{x: rect[0], y: rect[1], width: rect[2], height: rect[3], bg: bg}, nil
}

func applyCrop(p *Processor, c cropArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	out, err := crop(p, img, c.x, c.y, c.width, c.height, c.bg)
	if err != nil {
		return err
	}

	return p.Replace(out)
}

func crop(p *Processor, img image.Image, x, y, width, height int, bg color.NRGBA) (*image.NRGBA, error) {
	if err := p.checkSize(OpCrop, width, height); err != nil {
		return nil, err
	}

	canvas := bitmap.Canvas(width, height, bg)
	if bitmap.IsEmpty(canvas) {
		return canvas, nil
	}

	return bitmap.Paste(canvas, img, geometry.CropOrigin(x, y)), nil
}

type offsetArgs struct {
	top, right, bottom, left int
	bg                       color.NRGBA
}

// decodeOffset: top, right, bottom, left, r, g, b, a.
func decodeOffset(list []any) (offsetArgs, error) {
	a := NewArgs(OpOffset, list)
	if err := a.Arity(4, 8); err != nil {
		return offsetArgs{}, err
	}

	m, err := a.Ints(0, 0, 0, 0, 0)
	if err != nil {
		return offsetArgs{}, err
	}
	bg, err := background(a, 4)
	if err != nil {
		return offsetArgs{}, err
	}

	return offsetArgs{top: m[0], right: m[1], bottom: m[2], left: m[3], bg: bg}, nil
}

func applyOffset(p *Processor, o offsetArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	for _, side := range []int{o.top, o.right, o.bottom, o.left} {
		if err := p.checkSize(OpOffset, side, 1); err != nil {
			return err
		}
	}

	b := img.Bounds()
	size, pos := geometry.OffsetLayout(b.Dx(), b.Dy(), o.top, o.right, o.bottom, o.left)

	if err := p.checkSize(OpOffset, size.X, size.Y); err != nil {
		return err
	}

	canvas := bitmap.Canvas(size.X, size.Y, o.bg)
	if bitmap.IsEmpty(canvas) {
		return p.Replace(canvas)
	}

	return p.Replace(bitmap.Paste(canvas, img, pos))
}

type zoomCropArgs struct {
	width, height int
	gravity       geometry.Gravity
}

// decodeZoomCrop: width, height, gravity.
func decodeZoomCrop(list []any) (zoomCropArgs, error) {
	a := NewArgs(OpZoomCrop, list)
	if err := a.Arity(0, 3); err != nil {
		return zoomCropArgs{}, err
	}

	size, err := a.Ints(0, 0, 0)
	if err != nil {
		return zoomCropArgs{}, err
	}
	gravity, err := a.String(2, string(geometry.Center))
	if err != nil {
		return zoomCropArgs{}, err
	}

	return zoomCropArgs{width: size[0], height: size[1], gravity: geometry.Gravity(gravity)}, nil
}

func applyZoomCrop(p *Processor, z zoomCropArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	transparent := bitmap.Background(0, 0, 0, 0)

	img, _, err = resize(p, img, z.width, z.height, geometry.FitOutside, false, transparent)
	if err != nil {
		return err
	}

	b := img.Bounds()
	w1, h1 := z.width, z.height
	if w1 <= 0 {
		w1 = b.Dx()
	}
	if h1 <= 0 {
		h1 = b.Dy()
	}

	if b.Dx() == w1 && b.Dy() == h1 {
		return p.Replace(img)
	}

	x, y := geometry.ZoomCropOrigin(b.Dx(), b.Dy(), w1, h1, z.gravity)

	out, err := crop(p, img, x, y, w1, h1, transparent)
	if err != nil {
		return err
	}

	return p.Replace(out)
}

// decodeQuality: quality (1..100).
func decodeQuality(list []any) (int, error) {
	a := NewArgs(OpQuality, list)
	if err := a.Arity(1, 1); err != nil {
		return 0, err
	}

	q, err := a.Int(0, bitmap.DefaultQuality)
	if err != nil {
		return 0, err
	}
	if q < 1 || q > 100 {
		return 0, fmt.Errorf("%w: quality %d out of range 1..100", ErrInvalidArgument, q)
	}

	return q, nil
}

// applyQuality changes the output quality only.
func applyQuality(p *Processor, q int) error {
	p.Quality = q
	return nil
}

type filterArgs struct {
	filter bitmap.Filter
	params []float64
}

// decodeFilter: filter id, then the filter's own parameters.
func decodeFilter(list []any) (filterArgs, error) {
	a := NewArgs(OpFilter, list)
	if err := a.Arity(1, -1); err != nil {
		return filterArgs{}, err
	}

	id, err := a.String(0, "")
	if err != nil {
		return filterArgs{}, err
	}

	lo, hi, ok := bitmap.Arity(bitmap.Filter(id))
	if !ok {
		return filterArgs{}, fmt.Errorf("%w: %w: %q", ErrInvalidArgument, bitmap.ErrUnknownFilter, id)
	}
	if n := a.Len() - 1; n < lo || n > hi {
		return filterArgs{}, fmt.Errorf("%w: %w: %s takes %d..%d parameters, got %d",
			ErrInvalidArgument, bitmap.ErrFilterArgs, id, lo, hi, n)
	}

	params := make([]float64, 0, a.Len()-1)
	for i := 1; i < a.Len(); i++ {
		var v float64
		if b, ok := a.Raw(i).(bool); ok {
			if b {
				v = 1
			}
		} else if v, err = a.Float(i, 0); err != nil {
			return filterArgs{}, err
		}
		params = append(params, v)
	}

	return filterArgs{filter: bitmap.Filter(id), params: params}, nil
}

func applyFilter(p *Processor, f filterArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	out, err := bitmap.ApplyFilter(img, f.filter, f.params...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return p.Replace(out)
}

// OverlayOptions positions an overlay. Zero sizes mean "natural size":
// every unset width or height defaults to the overlay image's own size.
type OverlayOptions struct {
	DstX, DstY int
	SrcX, SrcY int
	DstW, DstH int
	SrcW, SrcH int
}

type overlayArgs struct {
	path string
	OverlayOptions
}

// decodeOverlay: path, dstX, dstY, srcX, srcY, dstW, dstH, srcW, srcH.
func decodeOverlay(list []any) (overlayArgs, error) {
	a := NewArgs(OpOverlay, list)
	if err := a.Arity(1, 9); err != nil {
		return overlayArgs{}, err
	}

	path, err := a.String(0, "")
	if err != nil {
		return overlayArgs{}, err
	}
	n, err := a.Ints(1, 0, 0, 0, 0, 0, 0, 0, 0)
	if err != nil {
		return overlayArgs{}, err
	}

	return overlayArgs{path: path, OverlayOptions: OverlayOptions{
		DstX: n[0], DstY: n[1], SrcX: n[2], SrcY: n[3],
		DstW: n[4], DstH: n[5], SrcW: n[6], SrcH: n[7],
	}}, nil
}

func applyOverlay(p *Processor, o overlayArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	overlay, err := p.OpenImage(o.path)
	if err != nil {
		return err
	}

	region := sourceRegion(overlay, o.SrcX, o.SrcY, o.SrcW, o.SrcH)
	if bitmap.IsEmpty(region) {
		return nil
	}

	natural := overlay.Bounds().Size()
	dw, dh := o.DstW, o.DstH
	if dw <= 0 {
		dw = natural.X
	}
	if dh <= 0 {
		dh = natural.Y
	}

	if err := p.checkSize(OpOverlay, dw, dh); err != nil {
		return err
	}

	var src image.Image = region
	if dw != region.Bounds().Dx() || dh != region.Bounds().Dy() {
		src = bitmap.Scale(region, dw, dh)
	}

	return p.Replace(bitmap.Composite(img, src, image.Pt(o.DstX, o.DstY)))
}

// MergeOptions positions a merged image. Pct is the merge weight 0..100.
type MergeOptions struct {
	DstX, DstY int
	SrcX, SrcY int
	SrcW, SrcH int
	Pct        int
}

type mergeArgs struct {
	path string
	MergeOptions
}

// decodeMerge: path, dstX, dstY, srcX, srcY, srcW, srcH, pct.
func decodeMerge(list []any) (mergeArgs, error) {
	a := NewArgs(OpMerge, list)
	if err := a.Arity(1, 8); err != nil {
		return mergeArgs{}, err
	}

	path, err := a.String(0, "")
	if err != nil {
		return mergeArgs{}, err
	}
	n, err := a.Ints(1, 0, 0, 0, 0, 0, 0, 0)
	if err != nil {
		return mergeArgs{}, err
	}
	o := MergeOptions{DstX: n[0], DstY: n[1], SrcX: n[2], SrcY: n[3], SrcW: n[4], SrcH: n[5], Pct: n[6]}
	if o.Pct < 0 || o.Pct > 100 {
		return mergeArgs{}, fmt.Errorf("%w: merge percentage %d out of range 0..100", ErrInvalidArgument, o.Pct)
	}

	return mergeArgs{path: path, MergeOptions: o}, nil
}

func applyMerge(p *Processor, m mergeArgs) error {
	img, err := p.Image()
	if err != nil {
		return err
	}

	overlay, err := p.OpenImage(m.path)
	if err != nil {
		return err
	}

	region := sourceRegion(overlay, m.SrcX, m.SrcY, m.SrcW, m.SrcH)
	if bitmap.IsEmpty(region) {
		return nil
	}

	return p.Replace(bitmap.Blend(img, region, image.Pt(m.DstX, m.DstY), m.Pct))
}

// sourceRegion cuts the (x, y, w, h) region out of img; zero sizes extend
// to the image edge.
func sourceRegion(img image.Image, x, y, w, h int) *image.NRGBA {
	b := img.Bounds()
	if w <= 0 {
		w = b.Dx()
	}
	if h <= 0 {
		h = b.Dy()
	}

	origin := b.Min.Add(image.Pt(x, y))

	return bitmap.SubImage(img, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))})
}

type callbackArgs struct {
	cb   Callback
	rest []any
}

// decodeCallback: Callback, then the callback's own arguments.
func decodeCallback(list []any) (callbackArgs, error) {
	a := NewArgs(OpCallback, list)
	if err := a.Arity(1, -1); err != nil {
		return callbackArgs{}, err
	}

	var cb Callback
	switch v := a.Raw(0).(type) {
	case Callback:
		cb = v
	case *Callback:
		if v != nil {
			cb = *v
		}
	}
	if cb.Fn == nil {
		return callbackArgs{}, fmt.Errorf("%w: callback: first argument must be a Callback with a function", ErrInvalidArgument)
	}

	return callbackArgs{cb: cb, rest: a.Rest(1)}, nil
}

func applyCallback(p *Processor, c callbackArgs) error {
	return c.cb.Fn(p, c.rest...)
}
