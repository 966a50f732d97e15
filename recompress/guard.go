package recompress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Guard keeps the output no larger than the source. The check is a plain
// byte count; on regression the artifact is replaced by a verbatim copy of
// the source stored under the source's own file name.
func Guard(src *Source, art *Artifact, destDir string) (Outcome, error) {
	out := Outcome{
		SourcePath:  src.Path,
		OutputPath:  art.Path,
		SourceBytes: uint64(src.Size),
		OutputBytes: uint64(art.Size),
	}
	if art.Size <= src.Size {
		return out, nil
	}

	fallback := FallbackPath(src, destDir)
	if art.Path != fallback {
		removeBestEffort(art.Path)
	}
	if err := copyFile(src.Path, fallback); err != nil {
		return out, newError(KindIO, "fallback", fallback, err)
	}

	out.OutputPath = fallback
	out.OutputBytes = uint64(src.Size)
	out.Fallback = true
	return out, nil
}

// FallbackPath is where the original bytes land when the guard trips.
func FallbackPath(src *Source, destDir string) string {
	return filepath.Join(destDir, filepath.Base(src.Path))
}

// OutputNames lists every destination file name processing path may write:
// the target of either route plus the fallback name. JPEG sources only ever
// write their own name.
func OutputNames(path string) []string {
	name := filepath.Base(path)
	if c, ok := ContainerForPath(path); ok && c == JPEG {
		return []string{name}
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	names := []string{base + JPEG.Extension(), base + PNG.Extension()}
	if name != names[1] {
		names = append(names, name)
	}
	return names
}

// removeBestEffort deletes an oversized artifact. A failure is ignored:
// either the file is already gone or the fallback copy is written to a
// different name and the stray file has no bearing on the outcome.
func removeBestEffort(path string) {
	_ = os.Remove(path)
}

// copyFile copies bytes, permission bits and modification time.
func copyFile(srcPath, dstPath string) (err error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err = out.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dstPath, info.ModTime(), info.ModTime())
}
