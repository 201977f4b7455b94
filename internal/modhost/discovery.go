package modhost

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ModulePathEnv overrides the module search path. It holds a
// filepath.ListSeparator separated list of directories.
const ModulePathEnv = "KERNEL_MODULE_PATH"

// Discovery finds module manifests below a set of directories. Each direct
// subdirectory holding a module.yaml is one module.
type Discovery struct {
	SearchPaths []string

	logger *slog.Logger
}

// NewDiscovery creates a discovery over searchPaths.
func NewDiscovery(searchPaths []string, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{SearchPaths: searchPaths, logger: logger}
}

// Discovered is a module manifest found on disk.
type Discovered struct {
	Dir      string
	Manifest *Manifest
}

// DiscoveryError is a problem found while searching one path.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e DiscoveryError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e DiscoveryError) Unwrap() error {
	return e.Err
}

// DiscoveryResult holds the manifests found and the problems met.
type DiscoveryResult struct {
	Modules []Discovered
	Errors  []DiscoveryError
}

// Err joins every discovery problem, or returns nil.
func (r DiscoveryResult) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Discover searches every path and logs problems instead of returning them.
// Earlier paths win when two manifests declare the same module name.
func (d *Discovery) Discover() []Discovered {
	res := d.DiscoverWithErrors()
	for _, e := range res.Errors {
		d.logger.Warn("module discovery problem", "path", e.Path, "error", e.Err)
	}
	d.logger.Info("module discovery complete", "found", len(res.Modules))
	return res.Modules
}

// DiscoverWithErrors searches every path and reports every problem.
func (d *Discovery) DiscoverWithErrors() DiscoveryResult {
	var res DiscoveryResult
	seen := make(map[string]string)

	for _, searchPath := range d.SearchPaths {
		found, errs := d.scan(searchPath)
		res.Errors = append(res.Errors, errs...)

		for _, m := range found {
			if first, dup := seen[m.Manifest.Name]; dup {
				res.Errors = append(res.Errors, DiscoveryError{
					Path: m.Dir,
					Err:  fmt.Errorf("%w: %s already found in %s", ErrAlreadyRegistered, m.Manifest.Name, first),
				})
				continue
			}
			seen[m.Manifest.Name] = m.Dir
			res.Modules = append(res.Modules, m)
		}
	}
	return res
}

func (d *Discovery) scan(searchPath string) ([]Discovered, []DiscoveryError) {
	info, err := os.Stat(searchPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, []DiscoveryError{{Path: searchPath, Err: err}}
	}
	if !info.IsDir() {
		return nil, []DiscoveryError{{Path: searchPath, Err: errors.New("not a directory")}}
	}

	entries, err := os.ReadDir(searchPath)
	if err != nil {
		return nil, []DiscoveryError{{Path: searchPath, Err: err}}
	}

	var (
		found []Discovered
		errs  []DiscoveryError
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(searchPath, entry.Name())
		manifestPath := filepath.Join(dir, ManifestFilename)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		m, err := LoadManifest(manifestPath)
		if err != nil {
			errs = append(errs, DiscoveryError{Path: manifestPath, Err: err})
			continue
		}
		found = append(found, Discovered{Dir: dir, Manifest: m})
		d.logger.Debug("module discovered", "module", m.Name, "kind", m.Kind, "dir", dir)
	}
	return found, errs
}

// DiscoverSingle loads the manifest of one module directory.
func DiscoverSingle(dir string) (*Discovered, error) {
	m, err := LoadManifest(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, err
	}
	return &Discovered{Dir: dir, Manifest: m}, nil
}

// DefaultSearchPaths returns the module search paths: the entries of
// KERNEL_MODULE_PATH, then the per-user and system-wide directories.
func DefaultSearchPaths() []string {
	var paths []string
	if env := os.Getenv(ModulePathEnv); env != "" {
		for _, p := range strings.Split(env, string(filepath.ListSeparator)) {
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".modkernel", "modules"))
	}
	return append(paths, "/usr/local/share/modkernel/modules")
}
