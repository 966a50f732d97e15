package recompress

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// rawPNG builds an 8-bit PNG with an explicit colour type, which the standard
// encoder does not allow (it picks RGB for opaque RGBA images).
func rawPNG(t *testing.T, w, h int, colorType byte, pix []byte, extra ...[2][]byte) []byte {
	t.Helper()
	channels := map[byte]int{0: 1, 2: 3, 3: 1, 4: 2, 6: 4}[colorType]
	require.Equal(t, w*h*channels, len(pix))

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(h))
	ihdr[8] = 8
	ihdr[9] = colorType
	writeChunk(&out, "IHDR", ihdr)
	for _, c := range extra {
		writeChunk(&out, string(c[0]), c[1])
	}

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	stride := w * channels
	for y := 0; y < h; y++ {
		_, err := zw.Write([]byte{0})
		require.NoError(t, err)
		_, err = zw.Write(pix[y*stride : (y+1)*stride])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	writeChunk(&out, "IDAT", z.Bytes())
	writeChunk(&out, "IEND", nil)
	return out.Bytes()
}

func writeChunk(out *bytes.Buffer, kind string, body []byte) {
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

func rgbaPix(w, h int, alpha func(x, y int) uint8) []byte {
	pix := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix = append(pix, uint8(x*25), uint8(y*25), uint8((x+y)*12), alpha(x, y))
		}
	}
	return pix
}

func opaqueAlpha(int, int) uint8 { return 0xff }

// noisy has enough entropy that a low quality JPEG is far smaller than the
// lossless encoding.
func noisy(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 17) ^ (y * 31)),
				G: uint8((x * 43) + (y * 13)),
				B: uint8((x * 7) ^ (y * 11)),
				A: 0xff,
			})
		}
	}
	return img
}

// grainyGray is seeded white noise: the deflate stream barely shrinks it, so
// the lossy path always wins.
func grainyGray(w, h int) *image.Gray {
	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.IntN(256))
	}
	return img
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}
