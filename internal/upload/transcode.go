package upload

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

const (
	DefaultMaxWidth = 1920
	DefaultQuality  = 82

	// images above this many pixels are not decoded
	maxPixels = 40_000_000
)

// ErrTranslucent is returned for images with transparent pixels, which JPEG
// cannot carry.
var ErrTranslucent = errors.New("upload: image has transparency")

// Transcoder re-encodes raster images as JPEG, downscaling wider images.
type Transcoder struct {
	MaxWidth int
	Quality  int
}

func NewTranscoder(maxWidth, quality int) *Transcoder {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Transcoder{MaxWidth: maxWidth, Quality: quality}
}

func (t *Transcoder) Accepts(contentType string) bool {
	return contentType == "image/jpeg" || contentType == "image/png"
}

// Transcode decodes data and returns it as a JPEG no wider than MaxWidth.
// Images that are not fully opaque are left alone with ErrTranslucent.
func (t *Transcoder) Transcode(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "decode image config")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, xerrors.Newf("image dimensions %dx%d out of range", cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "decode image")
	}
	if o, ok := src.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return nil, ErrTranslucent
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > t.MaxWidth {
		h = h * t.MaxWidth / w
		if h < 1 {
			h = 1
		}
		w = t.MaxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, xerrors.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), nil
}
