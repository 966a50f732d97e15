package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// PNG colour types from the IHDR chunk.
const (
	PNGGray      byte = 0
	PNGRGB       byte = 2
	PNGPalette   byte = 3
	PNGGrayAlpha byte = 4
	PNGRGBA      byte = 6
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// PNGInfo is what ReadPNG learns from the ancillary and header chunks.
type PNGInfo struct {
	ColorType byte
	BitDepth  byte
	// HasTRNS is set when a tRNS chunk is present, whatever its content.
	HasTRNS bool
	Blobs
}

// ReadPNG walks the chunk list of a PNG stream. Image data chunks are
// skipped without inflating; CRCs are left to the image decoder.
func ReadPNG(data []byte) (*PNGInfo, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, ErrNotPNG
	}

	var (
		info    PNGInfo
		sawIHDR bool
	)
	pos := len(pngSignature)

	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, ErrTruncated
		}
		length := int(binary.BigEndian.Uint32(data[pos:]))
		kind := string(data[pos+4 : pos+8])
		start := pos + 8
		end := start + length
		if length < 0 || end+4 > len(data) {
			return nil, ErrTruncated
		}
		chunk := data[start:end]
		pos = end + 4

		switch kind {
		case "IHDR":
			if len(chunk) < 13 {
				return nil, ErrTruncated
			}
			info.BitDepth = chunk[8]
			info.ColorType = chunk[9]
			sawIHDR = true
		case "tRNS":
			info.HasTRNS = true
		case "eXIf":
			if info.EXIF == nil {
				info.EXIF = bytes.Clone(chunk)
			}
		case "iCCP":
			if info.ICC != nil {
				continue
			}
			profile, err := inflateICC(chunk)
			if err != nil {
				return nil, err
			}
			info.ICC = profile
		case "IEND":
			pos = len(data)
		}
	}

	if !sawIHDR {
		return nil, ErrMissingHeader
	}
	return &info, nil
}

// iCCP: profile name, NUL, compression method, zlib stream.
func inflateICC(chunk []byte) ([]byte, error) {
	nul := bytes.IndexByte(chunk, 0)
	if nul < 1 || nul+2 > len(chunk) {
		return nil, fmt.Errorf("metadata: malformed iCCP chunk")
	}
	if method := chunk[nul+1]; method != 0 {
		return nil, fmt.Errorf("metadata: unknown iCCP compression method %d", method)
	}

	zr, err := zlib.NewReader(bytes.NewReader(chunk[nul+2:]))
	if err != nil {
		return nil, fmt.Errorf("metadata: iCCP: %w", err)
	}
	defer zr.Close()

	profile, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("metadata: iCCP: %w", err)
	}
	return profile, nil
}
