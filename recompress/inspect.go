package recompress

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"photoshrink/metadata"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// Inspect reads a source file once and returns its decoded pixels together
// with everything the transcoder needs to decide on an output. The container
// is routed by extension; the header that describes the colour layout is
// sniffed from the content.
func Inspect(path string) (*Source, error) {
	container, ok := ContainerForPath(path)
	if !ok {
		return nil, newError(KindUnreadableImage, "inspect", path,
			fmt.Errorf("unsupported extension %q", filepath.Ext(path)))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, newError(KindIO, "stat", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindIO, "read", path, err)
	}

	mode, hasTRNS, blobs, err := readHeader(data)
	if err != nil {
		return nil, newError(KindUnreadableImage, "header", path, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindUnreadableImage, "decode", path, err)
	}

	return &Source{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Container:   container,
		Mode:        mode,
		Transparent: hasTransparency(mode, hasTRNS, img),
		Metadata:    blobs,
		Image:       img,
	}, nil
}

func readHeader(data []byte) (ColorMode, bool, metadata.Blobs, error) {
	if bytes.HasPrefix(data, pngMagic) {
		info, err := metadata.ReadPNG(data)
		if err != nil {
			return ModeOther, false, metadata.Blobs{}, err
		}
		return pngMode(info.ColorType), info.HasTRNS, info.Blobs, nil
	}

	info, err := metadata.ReadJPEG(data)
	if err != nil {
		return ModeOther, false, metadata.Blobs{}, err
	}
	mode := ModeOther
	switch info.Components {
	case 1:
		mode = ModeGray
	case 3:
		mode = ModeRGB
	}
	return mode, false, info.Blobs, nil
}

func pngMode(colorType byte) ColorMode {
	switch colorType {
	case metadata.PNGGray:
		return ModeGray
	case metadata.PNGRGB:
		return ModeRGB
	case metadata.PNGPalette:
		return ModePalette
	case metadata.PNGGrayAlpha:
		return ModeGrayAlpha
	case metadata.PNGRGBA:
		return ModeRGBA
	}
	return ModeOther
}

// hasTransparency only trusts the pixels for alpha modes: a fully opaque
// alpha channel must not keep an image in the lossless container.
func hasTransparency(mode ColorMode, hasTRNS bool, img image.Image) bool {
	switch {
	case mode.HasAlpha():
		return !opaque(img)
	case mode == ModePalette:
		return hasTRNS
	}
	return false
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
