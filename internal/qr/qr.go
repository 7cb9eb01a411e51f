// Package qr builds the URL a desktop visitor scans to continue on a phone,
// and renders it as a PNG barcode.
package qr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strconv"
	"strings"

	bqr "github.com/boombuler/barcode/qr"

	"arshare/api/internal/bypass"
)

var ErrInvalidOptions = errors.New("invalid qr options")

// Options are the fixed visual parameters of the rendered barcode.
type Options struct {
	PixelSize     int
	MarginModules int
	Level         string
	Foreground    string
	Background    string
}

func DefaultOptions() Options {
	return Options{
		PixelSize:     220,
		MarginModules: 2,
		Level:         "M",
		Foreground:    "#374151",
		Background:    "#FFFFFF",
	}
}

// BuildTargetURL returns baseURL + previewPath + "?id=" + shareLinkID. When
// grant is non-empty the encoded grant is appended as the access parameter so
// the scanning device skips the code prompt.
func BuildTargetURL(baseURL, previewPath, shareLinkID, grant string, codec bypass.Codec) string {
	if codec == nil {
		codec = bypass.Default
	}
	base := strings.TrimRight(baseURL, "/")
	path := "/" + strings.TrimLeft(previewPath, "/")

	target := base + path + "?id=" + url.QueryEscape(shareLinkID)
	if grant != "" {
		// Unpadded URL-safe alphabet, nothing to escape.
		target += "&access=" + codec.Encode(grant)
	}
	return target
}

// Generator ties the target URL to the configured public base.
type Generator struct {
	BaseURL     string
	PreviewPath string
	Codec       bypass.Codec
	Options     Options
}

func NewGenerator(baseURL, previewPath string) *Generator {
	return &Generator{
		BaseURL:     baseURL,
		PreviewPath: previewPath,
		Codec:       bypass.Default,
		Options:     DefaultOptions(),
	}
}

func (g *Generator) TargetURL(shareLinkID, grant string) string {
	return BuildTargetURL(g.BaseURL, g.PreviewPath, shareLinkID, grant, g.Codec)
}

// PNG builds the target URL and renders it.
func (g *Generator) PNG(ctx context.Context, shareLinkID, grant string) (string, []byte, error) {
	target := g.TargetURL(shareLinkID, grant)
	data, err := Render(ctx, target, g.Options)
	if err != nil {
		return "", nil, err
	}
	return target, data, nil
}

// Render encodes payload as a PNG. The output is a square PixelSize wide when
// PixelSize fits the code, and identical input always produces identical bytes.
func Render(ctx context.Context, payload string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	fg, err := parseHexColor(opts.Foreground)
	if err != nil {
		return nil, err
	}
	bg, err := parseHexColor(opts.Background)
	if err != nil {
		return nil, err
	}
	if opts.MarginModules < 0 {
		return nil, fmt.Errorf("%w: negative margin", ErrInvalidOptions)
	}

	code, err := bqr.Encode(payload, level, bqr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	modules := code.Bounds().Dx()
	span := modules + 2*opts.MarginModules
	scale := opts.PixelSize / span
	if scale < 1 {
		scale = 1
	}
	side := span * scale
	if opts.PixelSize > side {
		side = opts.PixelSize
	}
	offset := (side - modules*scale) / 2

	img := image.NewPaletted(image.Rect(0, 0, side, side), color.Palette{bg, fg})
	for y := 0; y < modules; y++ {
		for x := 0; x < modules; x++ {
			if !isDark(code.At(x, y)) {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetColorIndex(offset+x*scale+dx, offset+y*scale+dy, 1)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func isDark(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r+g+b < 3*0x8000
}

func parseLevel(level string) (bqr.ErrorCorrectionLevel, error) {
	switch strings.ToUpper(level) {
	case "L":
		return bqr.L, nil
	case "M", "":
		return bqr.M, nil
	case "Q":
		return bqr.Q, nil
	case "H":
		return bqr.H, nil
	default:
		return bqr.M, fmt.Errorf("%w: error correction level %q", ErrInvalidOptions, level)
	}
}

func parseHexColor(value string) (color.RGBA, error) {
	hex := strings.TrimPrefix(value, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: color %q", ErrInvalidOptions, value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: color %q", ErrInvalidOptions, value)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}
