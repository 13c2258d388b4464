package thumb

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/geometry"
)

func TestProcessorLoad(t *testing.T) {
	s := newMemStorage(t)
	writeImage(t, s, "ok.jpg", solid(10, 10, red), bitmap.JPEG)
	_ = s.Save("broken.png", strings.NewReader("\x89PNG\r\n\x1a\nnot really"))
	_ = s.Save("text.txt", strings.NewReader("hello"))

	var bmp bytes.Buffer
	_ = imaging.Encode(&bmp, solid(4, 4, red), imaging.BMP)
	_ = s.Save("old.bmp", &bmp)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid jpeg", "ok.jpg", nil},
		{"missing", "nope.jpg", ErrNotFound},
		{"corrupt png", "broken.png", ErrInvalidImage},
		{"not an image", "text.txt", ErrInvalidImage},
		{"bmp", "old.bmp", ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(s, nil)
			err := p.Load(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if err == nil && p.Format() != bitmap.JPEG {
				t.Errorf("format: got %s", p.Format())
			}
		})
	}
}

func TestProcessorLenient(t *testing.T) {
	s := newMemStorage(t)
	_ = s.Save("text.txt", strings.NewReader("hello"))

	p := NewProcessor(s, nil)
	p.Lenient = true

	if err := p.Load("text.txt"); err != nil {
		t.Fatalf("lenient Load should not fail: %v", err)
	}

	q := Queue{{Name: OpResize, Args: []any{10, 10}}}
	if err := p.Apply(context.Background(), q); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Apply: got %v, want ErrInvalidImage", err)
	}

	if err := p.Save("out.jpg", bitmap.JPEG); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Save: got %v, want ErrInvalidImage", err)
	}

	// A missing file is still an error.
	if err := p.Load("nope.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: got %v, want ErrNotFound", err)
	}
}

func TestProcessorApplyErrors(t *testing.T) {
	p, _ := loaded(t, solid(10, 10, red))

	err := p.Apply(context.Background(), Queue{{Name: "sparkle"}})
	if !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("unknown op: got %v", err)
	}

	boom := errors.New("boom")
	p.registry.Register("explode", HandlerFunc(func(*Processor, []any) error { return boom }))

	err = p.Apply(context.Background(), Queue{{Name: "explode"}})
	if !errors.Is(err, ErrPluginFailed) || !errors.Is(err, boom) {
		t.Errorf("handler error: got %v, want ErrPluginFailed wrapping boom", err)
	}

	err = p.Apply(context.Background(), Queue{{Name: OpResize, Args: []any{"wide", 10}}})
	if !errors.Is(err, ErrPluginFailed) || !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad argument: got %v", err)
	}
}

func TestProcessorRecoversHandlerPanic(t *testing.T) {
	p, _ := loaded(t, solid(10, 10, red))
	p.registry.Register("panic", HandlerFunc(func(*Processor, []any) error { panic("out of range") }))

	err := p.Apply(context.Background(), Queue{{Name: "panic"}})
	if !errors.Is(err, ErrPluginFailed) {
		t.Errorf("got %v, want ErrPluginFailed", err)
	}
}

func TestProcessorRejectsOversizedBitmaps(t *testing.T) {
	huge := 1 << 31

	tests := []struct {
		name      string
		maxPixels int
		op        Operation
	}{
		{"crop", DefaultMaxPixels, Operation{Name: OpCrop, Args: []any{0, 0, huge, huge}}},
		{"offset", DefaultMaxPixels, Operation{Name: OpOffset, Args: []any{huge, huge, huge, huge}}},
		{"resize target", DefaultMaxPixels, Operation{Name: OpResize, Args: []any{huge, huge}}},
		{"resize padding", 1000, Operation{Name: OpResize, Args: []any{40, 40, int(geometry.FitInside), true}}},
		{"resize one side", 1000, Operation{Name: OpResize, Args: []any{0, 500}}},
		{"zoom crop", 1000, Operation{Name: OpZoomCrop, Args: []any{100, 100}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := loaded(t, solid(4, 4, red))
			p.MaxPixels = tt.maxPixels

			err := p.Apply(context.Background(), Queue{tt.op})
			if !errors.Is(err, ErrPluginFailed) || !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}

	t.Run("within limit", func(t *testing.T) {
		p, _ := loaded(t, solid(4, 4, red))
		p.MaxPixels = 1000

		apply(t, p, OpCrop, 0, 0, 20, 20)
		if img, _ := p.Image(); img.Bounds().Size() != image.Pt(20, 20) {
			t.Errorf("size: got %v", img.Bounds().Size())
		}
	})
}

func TestProcessorApplyStopsOnCancel(t *testing.T) {
	p, _ := loaded(t, solid(10, 10, red))

	calls := 0
	p.registry.Register("count", HandlerFunc(func(*Processor, []any) error { calls++; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Apply(ctx, Queue{{Name: "count"}, {Name: "count"}}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("handlers ran after cancel: %d", calls)
	}
}

func TestProcessorAppliesInOrder(t *testing.T) {
	p, _ := loaded(t, solid(10, 10, red))

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		p.registry.Register(name, HandlerFunc(func(*Processor, []any) error {
			order = append(order, name)
			return nil
		}))
	}

	if err := p.Apply(context.Background(), Queue{{Name: "c"}, {Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if strings.Join(order, "") != "cab" {
		t.Errorf("order: got %v", order)
	}
}

func TestProcessorSave(t *testing.T) {
	p, s := loaded(t, solid(30, 20, red))

	if err := p.Apply(context.Background(), Queue{{Name: OpQuality, Args: []any{40}}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if p.Quality != 40 {
		t.Errorf("quality: got %d, want 40", p.Quality)
	}

	// Unknown format falls back to the detected PNG.
	if err := p.Save("deep/nested/out.png", bitmap.Unknown); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := s.ReadFile("deep/nested/out.png")
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	img, f := readImage(t, data)
	if f != bitmap.PNG || img.Bounds().Dx() != 30 {
		t.Errorf("output: %s %v", f, img.Bounds())
	}

	// The bitmap is released after finalize.
	if _, err := p.Image(); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("after Save: got %v, want ErrInvalidImage", err)
	}
}

func TestProcessorEncodeDefaultsToJPEG(t *testing.T) {
	p := NewProcessor(newMemStorage(t), nil)
	_ = p.Replace(solid(5, 5, red))

	var buf bytes.Buffer
	if err := p.Encode(&buf, bitmap.Unknown); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, f := readImage(t, buf.Bytes()); f != bitmap.JPEG {
		t.Errorf("format: got %s, want jpeg", f)
	}
}

func TestProcessorEncodeEmpty(t *testing.T) {
	p, _ := loaded(t, solid(10, 10, red))

	// A zero-area crop leaves an empty bitmap.
	if err := p.Apply(context.Background(), Queue{{Name: OpCrop, Args: []any{0, 0, 0, 10}}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	var buf bytes.Buffer
	if err := p.Encode(&buf, bitmap.PNG); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("got %v, want ErrInvalidImage", err)
	}
}
