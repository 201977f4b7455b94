package modhost

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// forbiddenPathChars could change the meaning of a command line.
var forbiddenPathChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r", "\\", "'", "\""}

// resolveArtifact cleans path, rejects relative paths and shell
// metacharacters, resolves symlinks and requires a regular file.
func resolveArtifact(path string) (string, error) {
	if path == "" {
		return "", NewLoadError(path, "empty artifact path", nil)
	}
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return "", NewLoadError(path, "artifact path must be absolute", nil)
	}
	for _, c := range forbiddenPathChars {
		if strings.Contains(clean, c) {
			return "", NewLoadError(path, fmt.Sprintf("artifact path contains %q", c), nil)
		}
	}

	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		return "", NewLoadError(path, "artifact not found", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", NewLoadError(resolved, "artifact not found", err)
	}
	if !info.Mode().IsRegular() {
		return "", NewLoadError(resolved, "artifact is not a regular file", nil)
	}
	return resolved, nil
}

// verifyChecksum compares the sha256 of path with expected, given as
// "sha256:HEX" or bare HEX.
func verifyChecksum(path, expected string) error {
	algorithm, want := "sha256", expected
	if alg, hash, ok := strings.Cut(expected, ":"); ok {
		algorithm, want = strings.ToLower(alg), hash
	}
	if algorithm != "sha256" {
		return fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}

	got, err := fileSHA256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	// #nosec G304 -- path comes from resolveArtifact
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// prepareArtifact resolves the manifest's artifact and verifies its checksum
// when one is declared.
func prepareArtifact(m *Manifest) (string, error) {
	path, err := resolveArtifact(m.ArtifactPath())
	if err != nil {
		return "", err
	}
	if m.Checksum != "" {
		if err := verifyChecksum(path, m.Checksum); err != nil {
			return "", NewLoadError(path, "checksum verification failed", err)
		}
	}
	return path, nil
}
