package modhost

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// KernelVersion is the version of the module API offered by this kernel.
const KernelVersion = "1.0.0"

// ManifestFilename is the manifest file looked up in module directories.
const ManifestFilename = "module.yaml"

// Module kinds.
const (
	KindShared = "shared"
	KindRemote = "remote"
)

//go:embed schema/module.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// Manifest describes an external module artifact.
type Manifest struct {
	Name             string   `yaml:"name"`
	Version          string   `yaml:"version"`
	Description      string   `yaml:"description,omitempty"`
	Author           string   `yaml:"author,omitempty"`
	Kind             string   `yaml:"kind"`
	Path             string   `yaml:"path"`
	Checksum         string   `yaml:"checksum,omitempty"`
	Depends          []string `yaml:"depends,omitempty"`
	MinKernelVersion string   `yaml:"min_kernel_version"`

	dir string
}

// ArtifactPath returns the absolute path of the module artifact.
func (m *Manifest) ArtifactPath() string {
	if filepath.IsAbs(m.Path) {
		return m.Path
	}
	return filepath.Join(m.dir, m.Path)
}

// Dir returns the directory holding the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// ValidationIssue is one schema violation.
type ValidationIssue struct {
	Path    string
	Message string
	Keyword string
}

// ManifestError lists every schema violation of a manifest.
type ManifestError struct {
	Source string
	Issues []ValidationIssue
}

func (e *ManifestError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		loc := is.Path
		if loc == "" {
			loc = "/"
		}
		parts[i] = loc + ": " + is.Message
	}
	return fmt.Sprintf("%s: %s", e.Source, strings.Join(parts, "; "))
}

func (e *ManifestError) Unwrap() error {
	return ErrInvalidManifest
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, path)
}

// ParseManifest validates data against the manifest schema, decodes it and
// checks kernel compatibility. source names the manifest in errors; its
// directory anchors relative artifact paths.
func ParseManifest(data []byte, source string) (*Manifest, error) {
	if err := validateManifest(data, source); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, source, err)
	}
	m.dir = filepath.Dir(source)
	if abs, err := filepath.Abs(m.dir); err == nil {
		m.dir = abs
	}

	if err := m.checkCompatible(KernelVersion); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) checkCompatible(kernelVersion string) error {
	kv, err := semver.NewVersion(kernelVersion)
	if err != nil {
		return fmt.Errorf("kernel version %q: %w", kernelVersion, err)
	}
	c, err := semver.NewConstraint("^" + strings.TrimPrefix(m.MinKernelVersion, "v"))
	if err != nil {
		return fmt.Errorf("%w: min_kernel_version %q: %w", ErrInvalidManifest, m.MinKernelVersion, err)
	}
	if !c.Check(kv) {
		return fmt.Errorf("%w: %s needs %s, kernel is %s", ErrIncompatible, m.Name, m.MinKernelVersion, kernelVersion)
	}
	return nil
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("module.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("module.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

func validateManifest(data []byte, source string) error {
	schema, err := getSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, source, err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, source, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, source, err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, source, err)
	}
	issues := collectIssues(ve, nil)
	if len(issues) == 0 {
		issues = []ValidationIssue{{Message: ve.Error()}}
	}
	return &ManifestError{Source: source, Issues: issues}
}

func collectIssues(ve *jsonschema.ValidationError, out []ValidationIssue) []ValidationIssue {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			out = collectIssues(c, out)
		}
		return out
	}
	if ve.ErrorKind == nil {
		return out
	}

	var keyword string
	if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
		keyword = kw[len(kw)-1]
	}
	if keyword == "" || keyword == "$ref" {
		return out
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	return append(out, ValidationIssue{
		Path:    path,
		Message: ve.ErrorKind.LocalizedString(printer),
		Keyword: keyword,
	})
}
