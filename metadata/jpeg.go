package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP0 = 0xe0
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2

	// Segment length field covers itself, so a payload tops out at 65533.
	maxSegmentPayload = 0xffff - 2
	maxICCChunk       = maxSegmentPayload - len(iccSignature) - 2

	iccSignature = "ICC_PROFILE\x00"
)

var (
	exifPrefix = []byte("Exif\x00\x00")
	iccPrefix  = []byte(iccSignature)

	ErrICCTooLarge = errors.New("metadata: ICC profile needs more than 255 APP2 segments")
)

// JPEGInfo is what ReadJPEG learns from the marker segments ahead of the
// first scan.
type JPEGInfo struct {
	// Components is the component count of the first frame header:
	// 1 for grayscale, 3 for YCbCr/RGB, 4 for CMYK/YCCK.
	Components int
	Blobs
}

// ReadJPEG walks the marker segments of a JPEG stream up to the first SOS
// marker. Entropy-coded data is never touched.
func ReadJPEG(data []byte) (*JPEGInfo, error) {
	if len(data) < 2 || data[0] != 0xff || data[1] != markerSOI {
		return nil, ErrNotJPEG
	}

	info := &JPEGInfo{}
	iccChunks := map[int][]byte{}
	pos := 2

scan:
	for {
		if pos >= len(data) {
			return nil, ErrTruncated
		}
		if data[pos] != 0xff {
			return nil, fmt.Errorf("metadata: expected marker at offset %d, got 0x%02x", pos, data[pos])
		}
		for pos < len(data) && data[pos] == 0xff {
			pos++
		}
		if pos >= len(data) {
			return nil, ErrTruncated
		}
		marker := data[pos]
		pos++

		switch {
		case marker == markerSOS || marker == markerEOI:
			break scan
		case marker == markerSOI || marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			continue
		}

		if pos+2 > len(data) {
			return nil, ErrTruncated
		}
		length := int(binary.BigEndian.Uint16(data[pos:]))
		if length < 2 || pos+length > len(data) {
			return nil, ErrTruncated
		}
		payload := data[pos+2 : pos+length]
		pos += length

		switch {
		case isSOF(marker):
			if info.Components == 0 && len(payload) >= 6 {
				info.Components = int(payload[5])
			}
		case marker == markerAPP1 && bytes.HasPrefix(payload, exifPrefix):
			if info.EXIF == nil {
				info.EXIF = bytes.Clone(payload[len(exifPrefix):])
			}
		case marker == markerAPP2 && bytes.HasPrefix(payload, iccPrefix):
			if len(payload) < len(iccPrefix)+2 {
				continue
			}
			seq := int(payload[len(iccPrefix)])
			iccChunks[seq] = payload[len(iccPrefix)+2:]
		}
	}

	if info.Components == 0 {
		return nil, ErrNoFrame
	}
	info.ICC = joinICC(iccChunks)
	return info, nil
}

// SOF0..SOF15 minus DHT (c4), JPG (c8) and DAC (cc).
func isSOF(marker byte) bool {
	if marker < 0xc0 || marker > 0xcf {
		return false
	}
	return marker != 0xc4 && marker != 0xc8 && marker != 0xcc
}

func joinICC(chunks map[int][]byte) []byte {
	if len(chunks) == 0 {
		return nil
	}
	seqs := make([]int, 0, len(chunks))
	for seq := range chunks {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	var profile []byte
	for _, seq := range seqs {
		profile = append(profile, chunks[seq]...)
	}
	return profile
}

// InjectJPEG returns a copy of encoded with the EXIF and ICC blobs written as
// APP1 and APP2 segments. They are placed right after SOI and any JFIF APP0
// segments so that readers expecting JFIF first still find it.
func InjectJPEG(encoded []byte, b Blobs) ([]byte, error) {
	if len(encoded) < 2 || encoded[0] != 0xff || encoded[1] != markerSOI {
		return nil, ErrNotJPEG
	}
	if b.Empty() {
		return encoded, nil
	}
	if len(b.EXIF) > maxSegmentPayload-len(exifPrefix) {
		return nil, ErrEXIFTooLarge
	}

	iccCount := (len(b.ICC) + maxICCChunk - 1) / maxICCChunk
	if iccCount > 255 {
		return nil, ErrICCTooLarge
	}

	pos := 2
	for pos+4 <= len(encoded) && encoded[pos] == 0xff && encoded[pos+1] == markerAPP0 {
		pos += 2 + int(binary.BigEndian.Uint16(encoded[pos+2:]))
	}
	if pos > len(encoded) {
		return nil, ErrTruncated
	}

	var out bytes.Buffer
	out.Grow(len(encoded) + len(b.EXIF) + len(b.ICC) + 64)
	out.Write(encoded[:pos])

	if len(b.EXIF) > 0 {
		writeSegment(&out, markerAPP1, exifPrefix, b.EXIF)
	}
	for i := 0; i < iccCount; i++ {
		start := i * maxICCChunk
		end := min(start+maxICCChunk, len(b.ICC))
		header := append(bytes.Clone(iccPrefix), byte(i+1), byte(iccCount))
		writeSegment(&out, markerAPP2, header, b.ICC[start:end])
	}

	out.Write(encoded[pos:])
	return out.Bytes(), nil
}

func writeSegment(out *bytes.Buffer, marker byte, header, body []byte) {
	var hdr [4]byte
	hdr[0] = 0xff
	hdr[1] = marker
	binary.BigEndian.PutUint16(hdr[2:], uint16(2+len(header)+len(body)))
	out.Write(hdr[:])
	out.Write(header)
	out.Write(body)
}
