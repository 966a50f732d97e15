package recompress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"

	"github.com/klauspost/compress/zlib"
)

const pngColorGrayAlpha = 4

// encodeGrayAlphaPNG writes img as a luminance+alpha PNG (colour type 4).
// The decoder hands such files back as NRGBA or NRGBA64 and image/png would
// re-encode them as RGBA, doubling the channel count. 16-bit sources keep
// their depth; everything else is written with 8 bits per sample.
func encodeGrayAlphaPNG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	depth, bpp := 8, 2
	if _, ok := img.(*image.NRGBA64); ok {
		depth, bpp = 16, 4
	}
	stride := w * bpp

	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, zlib.BestCompression)
	if err != nil {
		return nil, err
	}

	var filtered [5][]byte
	for i := range filtered {
		filtered[i] = make([]byte, 1+stride)
		filtered[i][0] = byte(i)
	}
	prev := make([]byte, stride)
	cur := make([]byte, stride)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		grayAlphaRow(img, y, cur)
		if _, err := zw.Write(filterRow(cur, prev, bpp, &filtered)); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		prev, cur = cur, prev
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = byte(depth)
	ihdr[9] = pngColorGrayAlpha
	writePNGChunk(&out, "IHDR", ihdr)
	writePNGChunk(&out, "IDAT", idat.Bytes())
	writePNGChunk(&out, "IEND", nil)
	return out.Bytes(), nil
}

// grayAlphaRow fills row with the samples of line y. The red channel stands
// in for luminance: the source was single channel, so R, G and B agree.
func grayAlphaRow(img image.Image, y int, row []byte) {
	b := img.Bounds()
	switch m := img.(type) {
	case *image.NRGBA:
		for x := b.Min.X; x < b.Max.X; x++ {
			i, o := m.PixOffset(x, y), (x-b.Min.X)*2
			row[o], row[o+1] = m.Pix[i], m.Pix[i+3]
		}
	case *image.NRGBA64:
		for x := b.Min.X; x < b.Max.X; x++ {
			i, o := m.PixOffset(x, y), (x-b.Min.X)*4
			copy(row[o:o+2], m.Pix[i:i+2])
			copy(row[o+2:o+4], m.Pix[i+6:i+8])
		}
	default:
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			o := (x - b.Min.X) * 2
			row[o], row[o+1] = c.R, c.A
		}
	}
}

// filterRow picks the filter with the smallest sum of absolute residuals,
// the usual heuristic for choosing per-row PNG filters.
func filterRow(cur, prev []byte, bpp int, f *[5][]byte) []byte {
	none, sub, up, avg, paeth := f[0][1:], f[1][1:], f[2][1:], f[3][1:], f[4][1:]
	for i, v := range cur {
		var a, c byte
		if i >= bpp {
			a, c = cur[i-bpp], prev[i-bpp]
		}
		u := prev[i]
		none[i] = v
		sub[i] = v - a
		up[i] = v - u
		avg[i] = v - byte((int(a)+int(u))/2)
		paeth[i] = v - paethPredictor(a, u, c)
	}

	best, bestSum := 0, -1
	for i, row := range f {
		sum := 0
		for _, v := range row[1:] {
			sum += absInt(int(int8(v)))
		}
		if bestSum < 0 || sum < bestSum {
			best, bestSum = i, sum
		}
	}
	return f[best]
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := absInt(p-int(a)), absInt(p-int(b)), absInt(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func writePNGChunk(out *bytes.Buffer, kind string, body []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(body)))
	out.Write(n[:])
	out.WriteString(kind)
	out.Write(body)
	crc := crc32.NewIEEE()
	crc.Write([]byte(kind))
	crc.Write(body)
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	out.Write(n[:])
}
