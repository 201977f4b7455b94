package modhost

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
)

// EntrySymbol is the function a shared-object module exports:
//
//	func KernelModule() modhost.Desc
const EntrySymbol = "KernelModule"

// SharedObjectLoader loads modules built with -buildmode=plugin.
//
// The Go runtime never unloads a plugin and refuses to open the same plugin
// path twice, so every Open copies the artifact to a fresh file first. A
// rebuilt artifact reloads; an unchanged one fails with "plugin already
// loaded".
type SharedObjectLoader struct {
	dir    string
	logger *slog.Logger
}

// NewSharedObjectLoader creates a loader that stages copies in dir, or in a
// temporary directory when dir is empty.
func NewSharedObjectLoader(dir string, logger *slog.Logger) *SharedObjectLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedObjectLoader{dir: dir, logger: logger}
}

func (l *SharedObjectLoader) Kind() string { return KindShared }

func (l *SharedObjectLoader) Open(ctx context.Context, m *Manifest) (Desc, io.Closer, error) {
	path, err := prepareArtifact(m)
	if err != nil {
		return Desc{}, nil, err
	}

	staged, err := l.stage(m.Name, path)
	if err != nil {
		return Desc{}, nil, NewLoadError(path, "staging copy failed", err)
	}
	cleanup := closerFunc(func() error { return os.Remove(staged) })

	p, err := plugin.Open(staged)
	if err != nil {
		_ = cleanup.Close()
		return Desc{}, nil, NewLoadError(path, "open shared object", err)
	}
	sym, err := p.Lookup(EntrySymbol)
	if err != nil {
		_ = cleanup.Close()
		return Desc{}, nil, NewLoadError(path, "lookup "+EntrySymbol, err)
	}
	fn, ok := sym.(func() Desc)
	if !ok {
		_ = cleanup.Close()
		return Desc{}, nil, NewLoadError(path, fmt.Sprintf("%s has type %T", EntrySymbol, sym), ErrInvalidModule)
	}

	l.logger.InfoContext(ctx, "shared object opened", "module", m.Name, "artifact", path, "staged", staged)
	return fn(), cleanup, nil
}

func (l *SharedObjectLoader) stage(name, src string) (string, error) {
	dir := l.dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "modkernel")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	in, err := os.Open(src) // #nosec G304 -- src comes from resolveArtifact
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(dir, name+"-*.so")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
