package bitmap

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func encoded(t *testing.T, img image.Image, f imaging.Format) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	return buf.Bytes()
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestDetectFormat(t *testing.T) {
	img := solid(8, 6, color.NRGBA{10, 20, 30, 255})

	tests := []struct {
		name    string
		data    []byte
		want    Format
		wantErr error
	}{
		{"jpeg", encoded(t, img, imaging.JPEG), JPEG, nil},
		{"png", encoded(t, img, imaging.PNG), PNG, nil},
		{"gif", encoded(t, img, imaging.GIF), GIF, nil},
		{"bmp is not supported", encoded(t, img, imaging.BMP), Unknown, ErrUnsupportedFormat},
		{"garbage", []byte("definitely not an image"), Unknown, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("format: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	data := encoded(t, solid(12, 7, color.White), imaging.PNG)

	img, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if format != PNG {
		t.Errorf("format: got %s, want png", format)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 7 {
		t.Errorf("dimensions: got %v, want 12x7", img.Bounds().Size())
	}

	// Valid header, truncated body.
	_, _, err = Decode(bytes.NewReader(data[:40]))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("truncated: got %v, want ErrDecode", err)
	}
}

func TestEncode(t *testing.T) {
	img := solid(4, 4, color.Black)

	for _, f := range []Format{JPEG, PNG, GIF} {
		var buf bytes.Buffer
		if err := Encode(&buf, img, f, 75); err != nil {
			t.Fatalf("Encode(%s) failed: %v", f, err)
		}

		got, err := DetectFormat(bytes.NewReader(buf.Bytes()))
		if err != nil || got != f {
			t.Errorf("round trip %s: got %s, %v", f, got, err)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, Unknown, 90); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown format: got %v", err)
	}
	if err := Encode(&buf, &image.NRGBA{}, PNG, 90); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("empty image: got %v", err)
	}
	if err := Encode(&buf, nil, PNG, 90); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("nil image: got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"jpg":        JPEG,
		"JPEG":       JPEG,
		".png":       PNG,
		"image/gif":  GIF,
		" gif ":      GIF,
		"image/jpeg": JPEG,
	}

	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %s, %v; want %s", in, got, err, want)
		}
	}

	if _, err := ParseFormat("webp"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("webp: got %v", err)
	}

	if JPEG.Extension() != ".jpg" || Unknown.Extension() != "" {
		t.Error("unexpected extensions")
	}
	if PNG.MimeType() != "image/png" {
		t.Errorf("png mime: %s", PNG.MimeType())
	}
}

func TestBackground(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b, a int
		want       color.NRGBA
	}{
		{"defaults are opaque black", 0, 0, 0, 0, color.NRGBA{0, 0, 0, 255}},
		{"fully transparent", 255, 255, 255, 127, color.NRGBA{255, 255, 255, 0}},
		{"out of range is clamped", 300, -4, 12, 500, color.NRGBA{255, 0, 12, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Background(tt.r, tt.g, tt.b, tt.a); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"#ff8000", "ff8000", " #FF8000 "} {
		got, err := ParseHex(in)
		if err != nil {
			t.Fatalf("ParseHex(%q) failed: %v", in, err)
		}
		if want := (color.NRGBA{255, 128, 0, 255}); got != want {
			t.Errorf("ParseHex(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseHex("zzz"); err == nil {
		t.Error("ParseHex should reject invalid input")
	}
}

func TestPasteClips(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}

	out := Paste(Canvas(10, 10, red), solid(4, 4, blue), image.Pt(-2, -2))

	if got := nrgbaAt(out, 0, 0); got != blue {
		t.Errorf("(0,0): got %v, want blue", got)
	}
	if got := nrgbaAt(out, 1, 1); got != blue {
		t.Errorf("(1,1): got %v, want blue", got)
	}
	if got := nrgbaAt(out, 2, 2); got != red {
		t.Errorf("(2,2): got %v, want red", got)
	}
	if out.Bounds().Dx() != 10 {
		t.Errorf("canvas grew to %v", out.Bounds())
	}
}

func TestPasteDoesNotBlend(t *testing.T) {
	bg := color.NRGBA{255, 0, 0, 255}
	transparent := color.NRGBA{0, 0, 0, 0}

	out := Paste(Canvas(4, 4, bg), solid(4, 4, transparent), image.Pt(0, 0))
	if got := nrgbaAt(out, 1, 1); got.A != 0 {
		t.Errorf("paste should copy alpha, got %v", got)
	}
}

func TestComposite(t *testing.T) {
	dst := Canvas(4, 4, color.NRGBA{255, 0, 0, 255})

	out := Composite(dst, solid(2, 2, color.NRGBA{0, 0, 255, 0}), image.Pt(0, 0))
	if got := nrgbaAt(out, 0, 0); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("transparent source should leave background, got %v", got)
	}

	out = Composite(dst, solid(2, 2, color.NRGBA{0, 0, 255, 255}), image.Pt(1, 1))
	if got := nrgbaAt(out, 1, 1); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("opaque source should replace, got %v", got)
	}
	if got := nrgbaAt(out, 0, 0); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("outside source area changed: %v", got)
	}
}

func TestBlend(t *testing.T) {
	dst := Canvas(2, 2, color.NRGBA{0, 0, 0, 255})
	src := solid(2, 2, color.NRGBA{200, 200, 200, 255})

	if got := nrgbaAt(Blend(dst, src, image.Pt(0, 0), 0), 0, 0); got.R != 0 {
		t.Errorf("pct 0: got %v", got)
	}
	if got := nrgbaAt(Blend(dst, src, image.Pt(0, 0), 100), 0, 0); got.R != 200 {
		t.Errorf("pct 100: got %v", got)
	}
	if got := nrgbaAt(Blend(dst, src, image.Pt(0, 0), 50), 0, 0); got.R < 99 || got.R > 101 {
		t.Errorf("pct 50: got %v", got)
	}
}

func TestScaleAndSubImage(t *testing.T) {
	img := solid(40, 20, color.White)

	if got := Scale(img, 10, 30).Bounds().Size(); got != image.Pt(10, 30) {
		t.Errorf("Scale: got %v", got)
	}
	if got := SubImage(img, image.Rect(5, 5, 15, 10)).Bounds().Size(); got != image.Pt(10, 5) {
		t.Errorf("SubImage: got %v", got)
	}
	if got := Canvas(0, 5, color.White); !IsEmpty(got) {
		t.Errorf("zero width canvas should be empty, got %v", got.Bounds())
	}
}
