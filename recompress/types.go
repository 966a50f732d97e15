package recompress

import (
	"image"
	"path/filepath"
	"strings"
	"time"

	"photoshrink/metadata"
)

// Container is one of the two recognised on-disk formats.
type Container int

const (
	// JPEG is the lossy container.
	JPEG Container = iota + 1
	// PNG is the lossless container.
	PNG
)

func (c Container) String() string {
	switch c {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	}
	return "unknown"
}

// Extension is the extension written for outputs in this container.
func (c Container) Extension() string {
	if c == JPEG {
		return ".jpg"
	}
	return ".png"
}

var containerByExt = map[string]Container{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
}

// ContainerForPath routes a file by its lowercased extension.
func ContainerForPath(path string) (Container, bool) {
	c, ok := containerByExt[strings.ToLower(filepath.Ext(path))]
	return c, ok
}

// ColorMode is the channel layout declared by the source header.
type ColorMode int

const (
	ModeOther ColorMode = iota
	ModeRGB
	ModeGray
	ModeRGBA
	ModeGrayAlpha
	ModePalette
)

func (m ColorMode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeGray:
		return "L"
	case ModeRGBA:
		return "RGBA"
	case ModeGrayAlpha:
		return "LA"
	case ModePalette:
		return "P"
	}
	return "other"
}

// HasAlpha reports whether the mode carries an alpha channel.
func (m ColorMode) HasAlpha() bool {
	return m == ModeRGBA || m == ModeGrayAlpha
}

// Source is a fully inspected input image. It is built once by Inspect and
// only read afterwards.
type Source struct {
	Path      string
	Size      int64
	ModTime   time.Time
	Container Container
	Mode      ColorMode
	// Transparent is set when an alpha channel holds at least one
	// non-opaque pixel, or a palette image carries a tRNS marker.
	Transparent bool
	Metadata    metadata.Blobs
	Image       image.Image
}

// Decision is the output plan for one source.
type Decision struct {
	Container Container
	Path      string
	Mode      ColorMode
}

// Artifact is an encoded file on disk.
type Artifact struct {
	Path string
	Size int64
}

// Outcome is the per-file result after the size guard ran.
type Outcome struct {
	SourcePath  string
	OutputPath  string
	SourceBytes uint64
	OutputBytes uint64
	Fallback    bool
	Decision    Decision
}
