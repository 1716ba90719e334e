package core

// transcode.go validates and re-encodes a single image payload.
//
// The content type is always sniffed from the bytes, never taken from the
// file name. Images are decoded, shrunk to fit the configured bounding box,
// and re-encoded in their original format. When decoding or encoding fails
// the original payload may be kept as-is, depending on AllowPassthrough.

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	_ "golang.org/x/image/webp" // registers the WebP decoder
)

// Defaults mirror the limits the upload form advertises.
const (
	DefaultMaxImageSize = 10 * 1024 * 1024
	DefaultMaxDimension = 1920
	DefaultMaxPixels    = 50_000_000
	DefaultJPEGQuality  = 85
)

type imageFormat int

const (
	formatJPEG imageFormat = iota + 1
	formatPNG
	formatGIF
	formatWebP
)

var allowedTypes = []struct {
	mime   string
	format imageFormat
}{
	{"image/jpeg", formatJPEG},
	{"image/png", formatPNG},
	{"image/gif", formatGIF},
	{"image/webp", formatWebP},
}

// transcoded is the result of processing one payload.
type transcoded struct {
	data    []byte
	mime    string
	ext     string
	width   int
	height  int
	outcome AssetOutcome
	reason  RejectReason
	detail  string
}

func (t *transcoded) reject(reason RejectReason, detail string) *transcoded {
	t.outcome = OutcomeRejected
	t.reason = reason
	t.detail = detail
	t.data = nil
	return t
}

// transcode applies the size, type, and dimension policy to one payload.
func transcode(data []byte, opts AssetOptions) *transcoded {
	out := &transcoded{}

	if int64(len(data)) > opts.MaxSize {
		return out.reject(RejectTooLarge, fmt.Sprintf("%d bytes exceeds %d", len(data), opts.MaxSize))
	}

	mt := mimetype.Detect(data)
	var format imageFormat
	for _, t := range allowedTypes {
		if mt.Is(t.mime) {
			out.mime = t.mime
			format = t.format
			break
		}
	}
	out.ext = mt.Extension()
	if format == 0 {
		out.mime = mt.String()
		return out.reject(RejectUnsupportedType, mt.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return passthrough(out, data, opts, fmt.Sprintf("decode config: %v", err))
	}
	out.width, out.height = cfg.Width, cfg.Height
	if opts.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > opts.MaxPixels {
		return out.reject(RejectTooLarge, fmt.Sprintf("%dx%d pixels", cfg.Width, cfg.Height))
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return passthrough(out, data, opts, fmt.Sprintf("decode: %v", err))
	}

	// Resizing yields NRGBA, so hold on to the GIF palette and its
	// transparent index for re-quantizing.
	var pal color.Palette
	if p, ok := img.(*image.Paletted); ok {
		pal = p.Palette
	}

	b := img.Bounds()
	w, h, shrink := fitWithin(b.Dx(), b.Dy(), opts.MaxDimension)
	if shrink {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, format, pal); err != nil {
		return passthrough(out, data, opts, fmt.Sprintf("encode: %v", err))
	}

	out.data = buf.Bytes()
	out.width, out.height = w, h
	out.outcome = OutcomeTranscoded
	if shrink {
		out.outcome = OutcomeResized
	}
	return out
}

func passthrough(out *transcoded, data []byte, opts AssetOptions, detail string) *transcoded {
	if !opts.AllowPassthrough {
		return out.reject(RejectUndecodable, detail)
	}
	out.data = data
	out.outcome = OutcomeCopiedUnmodified
	out.detail = detail
	return out
}

func encode(buf *bytes.Buffer, img image.Image, format imageFormat, pal color.Palette) error {
	switch format {
	case formatJPEG:
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(DefaultJPEGQuality))
	case formatPNG:
		return imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case formatGIF:
		if len(pal) > 0 {
			return imaging.Encode(buf, img, imaging.GIF,
				imaging.GIFNumColors(256),
				imaging.GIFQuantizer(paletteQuantizer(pal)),
				imaging.GIFDrawer(draw.FloydSteinberg),
			)
		}
		return imaging.Encode(buf, img, imaging.GIF, imaging.GIFNumColors(256))
	case formatWebP:
		return nativewebp.Encode(buf, img, nil)
	default:
		return fmt.Errorf("unsupported format %d", format)
	}
}

// paletteQuantizer reuses a fixed palette instead of deriving one.
type paletteQuantizer color.Palette

func (q paletteQuantizer) Quantize(p color.Palette, _ image.Image) color.Palette {
	return append(p, q...)
}

// fitWithin scales (w, h) so the longer side equals max, flooring the
// shorter side and never going below 1px. Images already within max are
// returned unchanged with shrink=false.
func fitWithin(w, h, max int) (nw, nh int, shrink bool) {
	if max <= 0 || (w <= max && h <= max) {
		return w, h, false
	}
	if w >= h {
		nw, nh = max, h*max/w
	} else {
		nw, nh = w*max/h, max
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh, true
}
