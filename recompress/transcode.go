package recompress

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/jpegli"
	"golang.org/x/image/draw"

	"photoshrink/metadata"
)

// Decide applies the routing table. Transparent PNGs stay PNG in their
// original mode; everything else becomes a JPEG in RGB, or grayscale when the
// source already is single channel. JPEG sources keep their file name, PNG
// sources get their extension swapped.
func Decide(src *Source, destDir string) Decision {
	name := filepath.Base(src.Path)
	base := strings.TrimSuffix(name, filepath.Ext(name))

	if src.Container == PNG && src.Transparent {
		return Decision{
			Container: PNG,
			Path:      filepath.Join(destDir, base+PNG.Extension()),
			Mode:      src.Mode,
		}
	}

	d := Decision{Container: JPEG, Mode: ModeRGB}
	if src.Mode == ModeGray {
		d.Mode = ModeGray
	}
	if src.Container == JPEG {
		d.Path = filepath.Join(destDir, name)
	} else {
		d.Path = filepath.Join(destDir, base+JPEG.Extension())
	}
	return d
}

// Transcoder encodes decided outputs to disk.
type Transcoder struct {
	quality int
}

func NewTranscoder(quality int) (*Transcoder, error) {
	if err := ValidateQuality(quality); err != nil {
		return nil, err
	}
	return &Transcoder{quality: quality}, nil
}

func (t *Transcoder) Quality() int {
	return t.quality
}

// Transcode writes exactly one file, d.Path, and reports its size.
func (t *Transcoder) Transcode(src *Source, d Decision) (*Artifact, error) {
	var (
		data []byte
		err  error
	)
	switch d.Container {
	case PNG:
		if d.Mode == ModeGrayAlpha {
			data, err = encodeGrayAlphaPNG(src.Image)
		} else {
			data, err = encodePNG(src.Image)
		}
	case JPEG:
		data, err = t.encodeJPEG(convert(src.Image, d.Mode), src.Metadata)
	default:
		err = fmt.Errorf("no encoder for container %s", d.Container)
	}
	if err != nil {
		return nil, newError(KindIO, "encode", src.Path, err)
	}

	if err := os.WriteFile(d.Path, data, 0o644); err != nil {
		return nil, newError(KindIO, "write", d.Path, err)
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, newError(KindIO, "stat", d.Path, err)
	}

	return &Artifact{Path: d.Path, Size: info.Size()}, nil
}

func (t *Transcoder) encodeJPEG(img image.Image, blobs metadata.Blobs) ([]byte, error) {
	var buf bytes.Buffer
	err := jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
		Quality:              t.quality,
		ChromaSubsampling:    image.YCbCrSubsampleRatio420,
		ProgressiveLevel:     2,
		OptimizeCoding:       true,
		AdaptiveQuantization: true,
	})
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w", err)
	}

	out, err := metadata.InjectJPEG(buf.Bytes(), blobs)
	if err != nil {
		return nil, fmt.Errorf("jpeg metadata: %w", err)
	}
	return out, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png: %w", err)
	}
	return buf.Bytes(), nil
}

// convert brings img into the target mode for the lossy encoder. Alpha is
// dropped rather than composited, so colour under transparent pixels is kept.
func convert(img image.Image, to ColorMode) image.Image {
	if !opaque(img) {
		img = dropAlpha(img)
	}
	b := img.Bounds()

	if to == ModeGray {
		if g, ok := img.(*image.Gray); ok {
			return g
		}
		dst := image.NewGray(b)
		draw.Draw(dst, b, img, b.Min, draw.Src)
		return dst
	}

	switch img.(type) {
	case *image.YCbCr, *image.RGBA:
		return img
	}
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

func dropAlpha(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetRGBA(x, y, straightColor(img, x, y))
		}
	}
	return dst
}

// straightColor reads the non-premultiplied colour at (x, y) with alpha
// forced opaque. NRGBA and NRGBA64 are read from Pix so that colour under
// fully transparent pixels is not lost to premultiplication.
func straightColor(img image.Image, x, y int) color.RGBA {
	switch m := img.(type) {
	case *image.NRGBA:
		c := m.NRGBAAt(x, y)
		return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
	case *image.NRGBA64:
		c := m.NRGBA64At(x, y)
		return color.RGBA{R: uint8(c.R >> 8), G: uint8(c.G >> 8), B: uint8(c.B >> 8), A: 0xff}
	}
	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}
