package modhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// Loader opens module artifacts of one kind.
type Loader interface {
	// Kind is the manifest kind the loader handles.
	Kind() string
	// Open turns an artifact into a module description. The closer releases
	// the artifact and may be nil.
	Open(ctx context.Context, m *Manifest) (Desc, io.Closer, error)
}

// AddLoader installs a loader for its kind, replacing any previous one.
func (h *Host) AddLoader(l Loader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaders[l.Kind()] = l
}

func (h *Host) open(ctx context.Context, m *Manifest) (Desc, io.Closer, error) {
	l, ok := h.loaders[m.Kind]
	if !ok {
		return Desc{}, nil, fmt.Errorf("%w: %s", ErrNoLoader, m.Kind)
	}
	desc, closer, err := l.Open(ctx, m)
	if err != nil {
		return Desc{}, nil, err
	}

	// The manifest is authoritative for identity and dependencies.
	if desc.Name != "" && desc.Name != m.Name {
		h.logger.WarnContext(ctx, "module reports a different name than its manifest",
			"manifest", m.Name, "reported", desc.Name)
	}
	desc.Name = m.Name
	if desc.Description == "" {
		desc.Description = m.Description
	}
	desc.Depends = append([]string(nil), m.Depends...)
	if err := desc.validate(); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return Desc{}, nil, err
	}
	return desc, closer, nil
}

// RegisterManifest opens the manifest's artifact and registers the module.
func (h *Host) RegisterManifest(ctx context.Context, m *Manifest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.modules[m.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.Name)
	}
	desc, closer, err := h.open(ctx, m)
	if err != nil {
		return &ModuleError{Module: m.Name, Op: "open", Err: err}
	}
	if err := h.registerLocked(desc, m, closer); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return err
	}
	return nil
}

// RegisterDiscovered registers every discovered module, skipping and
// reporting the ones that fail to open.
func (h *Host) RegisterDiscovered(ctx context.Context, found []Discovered) error {
	var errs []error
	for _, d := range found {
		if err := h.RegisterManifest(ctx, d.Manifest); err != nil {
			h.logger.WarnContext(ctx, "module not registered", "module", d.Manifest.Name, "dir", d.Dir, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReloadFromSource re-reads a manifest-backed module from disk and hot
// reloads it with the fresh artifact.
func (h *Host) ReloadFromSource(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if rec.manifest == nil {
		return &ModuleError{Module: name, Op: "reload", Err: fmt.Errorf("%w: module has no manifest", ErrNoLoader)}
	}

	m, err := LoadManifest(filepath.Join(rec.manifest.Dir(), ManifestFilename))
	if err != nil {
		return &ModuleError{Module: name, Op: "reload", Err: err}
	}
	if m.Name != name {
		return &ModuleError{Module: name, Op: "reload", Err: fmt.Errorf("%w: manifest now names %s", ErrInvalidManifest, m.Name)}
	}

	desc, closer, err := h.open(ctx, m)
	if err != nil {
		return &ModuleError{Module: name, Op: "reload", Err: err}
	}
	return h.reloadLocked(ctx, desc, m, closer)
}
