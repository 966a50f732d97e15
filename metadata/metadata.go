// Package metadata reads and writes the container-level side data that the
// image decoders in the standard library discard: colour layout from the
// headers, EXIF and ICC blobs, and the PNG transparency marker.
package metadata

import "errors"

// Blobs holds the raw metadata carried from a source image to its output.
// EXIF is the bare TIFF payload without the "Exif\0\0" APP1 prefix.
type Blobs struct {
	EXIF []byte
	ICC  []byte
}

// Empty reports whether neither blob is present.
func (b Blobs) Empty() bool {
	return len(b.EXIF) == 0 && len(b.ICC) == 0
}

var (
	ErrNotJPEG       = errors.New("metadata: not a JPEG stream")
	ErrNotPNG        = errors.New("metadata: not a PNG stream")
	ErrTruncated     = errors.New("metadata: truncated stream")
	ErrNoFrame       = errors.New("metadata: no frame header before scan data")
	ErrEXIFTooLarge  = errors.New("metadata: EXIF payload exceeds one APP1 segment")
	ErrMissingHeader = errors.New("metadata: missing IHDR chunk")
)
