package qr

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"arshare/api/internal/bypass"
)

const base = "https://share.example.com"

func TestBuildTargetURLWithoutGrant(t *testing.T) {
	got := BuildTargetURL(base, "/ar-client-preview", "ar-ab12cd", "", nil)
	want := "https://share.example.com/ar-client-preview?id=ar-ab12cd"
	if got != want {
		t.Fatalf("BuildTargetURL() = %q, want %q", got, want)
	}
}

func TestBuildTargetURLWithGrant(t *testing.T) {
	got := BuildTargetURL(base, "/ar-client-preview", "ar-ab12cd", "XYZ123", bypass.Default)
	want := "https://share.example.com/ar-client-preview?id=ar-ab12cd&access=" + bypass.Default.Encode("XYZ123")
	if got != want {
		t.Fatalf("BuildTargetURL() = %q, want %q", got, want)
	}
}

func TestBuildTargetURLNormalizesSlashes(t *testing.T) {
	got := BuildTargetURL(base+"/", "ar-client-preview", "ar-ab12cd", "", nil)
	want := "https://share.example.com/ar-client-preview?id=ar-ab12cd"
	if got != want {
		t.Fatalf("BuildTargetURL() = %q, want %q", got, want)
	}
}

func TestGrantRoundTripsThroughTargetURL(t *testing.T) {
	g := NewGenerator(base, "/ar-client-preview")
	target := g.TargetURL("ar-ab12cd", "AB12")

	const marker = "&access="
	idx := strings.Index(target, marker)
	if idx < 0 {
		t.Fatalf("expected access parameter in %q", target)
	}
	code, err := bypass.Default.Decode(target[idx+len(marker):])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if code != "AB12" {
		t.Fatalf("expected AB12, got %q", code)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	payload := BuildTargetURL(base, "/ar-client-preview", "ar-ab12cd", "XYZ123", nil)

	first, err := Render(context.Background(), payload, DefaultOptions())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := Render(context.Background(), payload, DefaultOptions())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical output for identical input")
	}

	other, err := Render(context.Background(), payload+"x", DefaultOptions())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if bytes.Equal(first, other) {
		t.Fatal("expected different payloads to render differently")
	}
}

func TestRenderUsesConfiguredSizeAndColors(t *testing.T) {
	opts := DefaultOptions()
	data, err := Render(context.Background(), "https://share.example.com/ar-client-preview?id=ar-ab12cd", opts)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != opts.PixelSize || bounds.Dy() != opts.PixelSize {
		t.Fatalf("expected %dx%d image, got %v", opts.PixelSize, opts.PixelSize, bounds)
	}

	bg := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	if bg != (color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Fatalf("expected white quiet zone, got %v", bg)
	}

	// The top-left finder pattern starts with a dark module on the diagonal.
	var fg color.RGBA
	for i := 0; i < bounds.Dx(); i++ {
		c := color.RGBAModel.Convert(img.At(i, i)).(color.RGBA)
		if c != bg {
			fg = c
			break
		}
	}
	if fg != (color.RGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}) {
		t.Fatalf("expected #374151 modules, got %v", fg)
	}
}

func TestRenderRejectsBadOptions(t *testing.T) {
	tests := []Options{
		{PixelSize: 200, MarginModules: 2, Level: "Z", Foreground: "#000000", Background: "#FFFFFF"},
		{PixelSize: 200, MarginModules: 2, Level: "M", Foreground: "black", Background: "#FFFFFF"},
		{PixelSize: 200, MarginModules: -1, Level: "M", Foreground: "#000000", Background: "#FFFFFF"},
	}
	for _, opts := range tests {
		if _, err := Render(context.Background(), "payload", opts); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("Render(%+v) error = %v, want ErrInvalidOptions", opts, err)
		}
	}
}

func TestRenderHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Render(ctx, "payload", DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGeneratorPNG(t *testing.T) {
	g := NewGenerator(base, "/ar-client-preview")
	target, data, err := g.PNG(context.Background(), "ar-ab12cd", "")
	if err != nil {
		t.Fatalf("PNG() error = %v", err)
	}
	if target != base+"/ar-client-preview?id=ar-ab12cd" {
		t.Fatalf("unexpected target %q", target)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("expected PNG signature")
	}
}
