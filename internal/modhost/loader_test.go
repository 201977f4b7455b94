package modhost

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/apidb"
)

type fakeLoader struct {
	opens   []string
	closers []*closeCounter
	err     error
}

func (l *fakeLoader) Kind() string { return KindShared }

func (l *fakeLoader) Open(_ context.Context, m *Manifest) (Desc, io.Closer, error) {
	if l.err != nil {
		return Desc{}, nil, l.err
	}
	l.opens = append(l.opens, m.Version)
	c := &closeCounter{}
	l.closers = append(l.closers, c)
	desc := counterModule(m.Name)
	desc.Depends = []string{"ignored"}
	return desc, c, nil
}

func writeManifest(t *testing.T, dir, version string) *Manifest {
	t.Helper()
	src := "name: counter\nversion: " + version + "\ndescription: counts\nkind: shared\npath: counter.so\nmin_kernel_version: 1.0.0\n"
	path := filepath.Join(dir, ManifestFilename)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	m, err := LoadManifest(path)
	require.NoError(t, err)
	return m
}

func TestHost_RegisterManifest(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})
	m := writeManifest(t, t.TempDir(), "1.0.0")

	err := h.RegisterManifest(context.Background(), m)
	assert.ErrorIs(t, err, ErrNoLoader)

	loader := &fakeLoader{}
	h.AddLoader(loader)
	require.NoError(t, h.RegisterManifest(context.Background(), m))
	assert.ErrorIs(t, h.RegisterManifest(context.Background(), m), ErrAlreadyRegistered)

	info, ok := h.Module("counter")
	require.True(t, ok)
	assert.Equal(t, "counts", info.Description)
	assert.Empty(t, info.Depends, "manifest dependencies are authoritative")
	assert.Same(t, m, info.Manifest)
}

func TestHost_RegisterManifestOpenFailure(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	boom := errors.New("bad artifact")
	h.AddLoader(&fakeLoader{err: boom})

	err := h.RegisterManifest(context.Background(), writeManifest(t, t.TempDir(), "1.0.0"))
	assert.ErrorIs(t, err, boom)
	_, ok := h.Module("counter")
	assert.False(t, ok)
}

func TestHost_ReloadFromSource(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})
	loader := &fakeLoader{}
	h.AddLoader(loader)

	dir := t.TempDir()
	ctx := context.Background()
	require.NoError(t, h.RegisterManifest(ctx, writeManifest(t, dir, "1.0.0")))
	require.NoError(t, h.Load(ctx, "counter"))

	writeManifest(t, dir, "1.1.0")
	require.NoError(t, h.ReloadFromSource(ctx, "counter"))

	assert.Equal(t, []string{"1.0.0", "1.1.0"}, loader.opens)
	assert.Equal(t, 1, loader.closers[0].closed, "old artifact released")
	assert.Zero(t, loader.closers[1].closed)
	assert.Equal(t, 2, counterValue(t, reg, "counter"), "globals survive the reload")

	info, _ := h.Module("counter")
	assert.Equal(t, "1.1.0", info.Manifest.Version)
}

func TestHost_ReloadFromSourceWithoutManifest(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	require.NoError(t, h.Register(counterModule("builtin")))
	assert.ErrorIs(t, h.ReloadFromSource(context.Background(), "builtin"), ErrNoLoader)
	assert.ErrorIs(t, h.ReloadFromSource(context.Background(), "nope"), ErrModuleNotFound)
}

func TestHost_RegisterDiscovered(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	h.AddLoader(&fakeLoader{})

	root := t.TempDir()
	writeModuleDir(t, root, "a", manifestFor("alpha", KindShared))
	writeModuleDir(t, root, "b", manifestFor("beta", KindRemote))

	found := NewDiscovery([]string{root}, nil).Discover()
	err := h.RegisterDiscovered(context.Background(), found)
	assert.ErrorIs(t, err, ErrNoLoader, "no remote loader installed")

	mods := h.Modules()
	require.Len(t, mods, 1)
	assert.Equal(t, "alpha", mods[0].Name)
}

func TestSharedObjectLoader_RejectsNonPlugin(t *testing.T) {
	stage := t.TempDir()
	path, _ := writeArtifact(t, "not an elf file")

	l := NewSharedObjectLoader(stage, nil)
	assert.Equal(t, KindShared, l.Kind())

	_, _, err := l.Open(context.Background(), &Manifest{Name: "fake", Path: path})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "open shared object", le.Reason)

	entries, err := os.ReadDir(stage)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged copy is removed")
}
