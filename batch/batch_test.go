package batch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoshrink/recompress"
)

func makeTestImage(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 17) ^ (y * 31)),
				G: uint8((x * 43) + (y * 13)),
				B: uint8((x * 7) ^ (y * 11)),
				A: alpha,
			})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// fixtureDir holds three eligible images plus files that must be ignored.
func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), makeTestImage(48, 48, 0xff))
	writePNG(t, filepath.Join(dir, "b.PNG"), makeTestImage(16, 16, 0x80))
	writeJPEG(t, filepath.Join(dir, "c.jpeg"), makeTestImage(64, 64, 0xff))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))
	return dir
}

type progressRecorder struct {
	calls [][2]int
}

func (p *progressRecorder) record(delta, total int) {
	p.calls = append(p.calls, [2]int{delta, total})
}

func (p *progressRecorder) cumulative() int {
	sum := 0
	for _, c := range p.calls {
		sum += c[0]
	}
	return sum
}

func TestCollectFiles(t *testing.T) {
	dir := fixtureDir(t)

	files, err := CollectFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.PNG"),
		filepath.Join(dir, "c.jpeg"),
	}, files)

	_, err = CollectFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestNameCollisions(t *testing.T) {
	got := NameCollisions([]string{
		"in/a.png", "in/a.jpg",
		"in/b.png", "in/b.jpeg",
		"in/c.PNG", "in/c.png",
	})
	assert.Equal(t, map[string][]string{
		"a.jpg": {"in/a.jpg", "in/a.png"},
		"c.jpg": {"in/c.PNG", "in/c.png"},
		"c.png": {"in/c.PNG", "in/c.png"},
	}, got)
}

func TestRun_SharedOutputNameKeepsFirstFile(t *testing.T) {
	for _, workers := range []int{1, 4} {
		src := t.TempDir()
		dst := t.TempDir()
		writeJPEG(t, filepath.Join(src, "a.jpg"), makeTestImage(64, 64, 0xff))
		writePNG(t, filepath.Join(src, "a.png"), makeTestImage(64, 64, 0xff))

		summary, err := NewRunner(Options{SourceDir: src, DestDir: dst, Quality: 10, Workers: workers}).
			Run(context.Background(), nil)
		require.NoError(t, err)

		assert.Equal(t, uint64(2), summary.FileCount)
		assert.Equal(t, uint64(1), summary.Succeeded, "workers %d", workers)
		require.Len(t, summary.Failures, 1)
		assert.Equal(t, filepath.Join(src, "a.png"), summary.Failures[0].Path)
		assert.ErrorIs(t, summary.Failures[0].Err, recompress.ErrOutputConflict)

		info, err := os.Stat(filepath.Join(dst, "a.jpg"))
		require.NoError(t, err)
		assert.Equal(t, summary.TotalOutputBytes, uint64(info.Size()))
		assert.NoFileExists(t, filepath.Join(dst, "a.png"))
	}
}

func TestRun_ProgressAndSummary(t *testing.T) {
	src := fixtureDir(t)
	dst := filepath.Join(t.TempDir(), "out", "nested")

	var rec progressRecorder
	var results []Result
	r := NewRunner(Options{
		SourceDir: src,
		DestDir:   dst,
		Quality:   10,
		OnResult:  func(res Result) { results = append(results, res) },
	})
	summary, err := r.Run(context.Background(), rec.record)
	require.NoError(t, err)

	require.Len(t, rec.calls, 4)
	assert.Equal(t, [2]int{0, 3}, rec.calls[0])
	for _, c := range rec.calls[1:] {
		assert.Equal(t, [2]int{1, 3}, c)
	}
	assert.Equal(t, 3, rec.cumulative())

	assert.Equal(t, uint64(3), summary.FileCount)
	assert.Equal(t, uint64(3), summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.LessOrEqual(t, summary.TotalOutputBytes, summary.TotalSourceBytes)

	// Sequential processing keeps name order.
	require.Len(t, results, 3)
	assert.Equal(t, filepath.Join(src, "a.png"), results[0].Path)
	assert.Equal(t, filepath.Join(src, "c.jpeg"), results[2].Path)

	// The translucent PNG stays a PNG.
	assert.Equal(t, recompress.PNG, results[1].Outcome.Decision.Container)

	var outBytes uint64
	for _, res := range results {
		info, err := os.Stat(res.Outcome.OutputPath)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Outcome.OutputBytes, res.Outcome.SourceBytes)
		outBytes += uint64(info.Size())
	}
	assert.Equal(t, summary.TotalOutputBytes, outBytes)
}

func TestRun_InvalidQualityFailsFast(t *testing.T) {
	src := fixtureDir(t)

	for _, q := range []int{0, 96, -1} {
		dst := filepath.Join(t.TempDir(), "out")
		var rec progressRecorder

		summary, err := NewRunner(Options{SourceDir: src, DestDir: dst, Quality: q}).
			Run(context.Background(), rec.record)

		assert.ErrorIs(t, err, recompress.ErrInvalidQuality, "quality %d", q)
		assert.Nil(t, summary)
		assert.Empty(t, rec.calls)
		assert.NoDirExists(t, dst)
	}

	for _, q := range []int{1, 95} {
		_, err := NewRunner(Options{SourceDir: src, DestDir: t.TempDir(), Quality: q}).
			Run(context.Background(), nil)
		assert.NoError(t, err, "quality %d", q)
	}
}

func TestRun_BadFileDoesNotAbort(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a_broken.png"), []byte("garbage"), 0o644))
	writeJPEG(t, filepath.Join(src, "b_ok.jpg"), makeTestImage(32, 32, 0xff))

	var rec progressRecorder
	summary, err := NewRunner(Options{SourceDir: src, DestDir: t.TempDir(), Quality: 30}).
		Run(context.Background(), rec.record)
	require.NoError(t, err)

	assert.Len(t, rec.calls, 3)
	assert.Equal(t, uint64(2), summary.FileCount)
	assert.Equal(t, uint64(1), summary.Succeeded)
	assert.Equal(t, uint64(1), summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, filepath.Join(src, "a_broken.png"), summary.Failures[0].Path)
	assert.ErrorIs(t, summary.Failures[0].Err, recompress.ErrUnreadableImage)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	src := t.TempDir()
	for i := 0; i < 6; i++ {
		name := filepath.Join(src, string(rune('a'+i))+".png")
		writePNG(t, name, makeTestImage(24+i*4, 24, 0xff))
	}

	seq, err := NewRunner(Options{SourceDir: src, DestDir: t.TempDir(), Quality: 40}).
		Run(context.Background(), nil)
	require.NoError(t, err)

	var rec progressRecorder
	par, err := NewRunner(Options{SourceDir: src, DestDir: t.TempDir(), Quality: 40, Workers: 4}).
		Run(context.Background(), rec.record)
	require.NoError(t, err)

	assert.Equal(t, seq.TotalSourceBytes, par.TotalSourceBytes)
	assert.Equal(t, seq.TotalOutputBytes, par.TotalOutputBytes)
	assert.Equal(t, uint64(6), par.Succeeded)
	assert.Len(t, rec.calls, 7)
	assert.Equal(t, 6, rec.cumulative())
}

func TestRun_CancelledBeforeFirstFile(t *testing.T) {
	src := fixtureDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var rec progressRecorder
	summary, err := NewRunner(Options{SourceDir: src, DestDir: t.TempDir(), Quality: 10}).
		Run(ctx, rec.record)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, uint64(3), summary.FileCount)
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, [][2]int{{0, 3}}, rec.calls)
}

func TestStart_EventStream(t *testing.T) {
	src := fixtureDir(t)

	var progress, results int
	var done *Event
	for ev := range NewRunner(Options{SourceDir: src, DestDir: t.TempDir(), Quality: 10}).Start(context.Background()) {
		switch ev.Kind {
		case EventProgress:
			progress++
			assert.Equal(t, 3, ev.Total)
		case EventResult:
			results++
			assert.NoError(t, ev.Result.Err)
		case EventDone:
			ev := ev
			done = &ev
		}
	}

	assert.Equal(t, 4, progress)
	assert.Equal(t, 3, results)
	require.NotNil(t, done)
	require.NoError(t, done.Err)
	assert.Equal(t, uint64(3), done.Summary.Succeeded)
}
