package recompress

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
)

// Pipeline runs Inspect, Transcode and Guard for one file at a time. It is
// safe for concurrent use: the transcode and guard steps of a file hold the
// locks of every path they may write, so no other file touches those paths
// until the outcome is settled.
//
// Every output name belongs to the first file that claims it. A later file
// whose names overlap fails with ErrOutputConflict before anything is
// written, so a result reported as processed is never overwritten or
// removed by another file of the same batch.
type Pipeline struct {
	destDir    string
	transcoder *Transcoder
	locks      *pathLocks

	claimMu sync.Mutex
	owners  map[string]string

	log *slog.Logger
}

func NewPipeline(destDir string, quality int, log *slog.Logger) (*Pipeline, error) {
	t, err := NewTranscoder(quality)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		destDir:    destDir,
		transcoder: t,
		locks:      newPathLocks(),
		owners:     make(map[string]string),
		log:        log,
	}, nil
}

// Reserve claims the output names of paths in the given order. Process
// claims on demand; reserving up front makes the first file in name order
// the owner regardless of which worker gets to it first.
func (p *Pipeline) Reserve(paths ...string) {
	for _, path := range paths {
		_ = p.claim(path)
	}
}

// claim takes all output names of path or none of them.
func (p *Pipeline) claim(path string) error {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()

	names := OutputNames(path)
	for _, name := range names {
		target := filepath.Join(p.destDir, name)
		if owner, ok := p.owners[target]; ok && owner != path {
			return newError(KindOutputConflict, "claim", path,
				fmt.Errorf("%s belongs to %s", target, owner))
		}
	}
	for _, name := range names {
		p.owners[filepath.Join(p.destDir, name)] = path
	}
	return nil
}

func (p *Pipeline) Process(path string) (Outcome, error) {
	if err := p.claim(path); err != nil {
		return Outcome{SourcePath: path}, err
	}

	src, err := Inspect(path)
	if err != nil {
		return Outcome{SourcePath: path}, err
	}
	// Pixels are released with the source once the outcome is known.
	defer func() { src.Image = nil }()

	d := Decide(src, p.destDir)
	p.log.Debug("decided output",
		"path", path,
		"mode", src.Mode.String(),
		"transparent", src.Transparent,
		"target", d.Path,
		"container", d.Container.String(),
	)

	unlock := p.locks.lock(d.Path, FallbackPath(src, p.destDir))
	defer unlock()

	art, err := p.transcoder.Transcode(src, d)
	if err != nil {
		return Outcome{SourcePath: path, SourceBytes: uint64(src.Size), Decision: d}, err
	}

	out, err := Guard(src, art, p.destDir)
	out.Decision = d
	if err != nil {
		return out, err
	}
	if out.Fallback {
		p.log.Debug("output larger than source, kept original",
			"path", path, "encoded", art.Size, "source", src.Size)
	}
	return out, nil
}

// pathLocks hands out one mutex per path. Entries are dropped once no
// caller holds or waits on them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock takes the mutexes for paths in sorted order and returns the release.
func (l *pathLocks) lock(paths ...string) func() {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var held []string
	for i, path := range sorted {
		if i > 0 && path == sorted[i-1] {
			continue
		}
		l.mu.Lock()
		m, ok := l.locks[path]
		if !ok {
			m = &pathLock{}
			l.locks[path] = m
		}
		m.refs++
		l.mu.Unlock()

		m.Lock()
		held = append(held, path)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
}

func (l *pathLocks) release(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.locks[path]
	m.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, path)
	}
}
