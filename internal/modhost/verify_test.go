package modhost

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, content string) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	sum := sha256.Sum256([]byte(content))
	return path, hex.EncodeToString(sum[:])
}

func TestResolveArtifact(t *testing.T) {
	path, _ := writeArtifact(t, "binary")

	got, err := resolveArtifact(path)
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, want, got)

	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(path, link))
	got, err = resolveArtifact(link)
	require.NoError(t, err)
	assert.Equal(t, want, got, "symlinks resolve to their target")
}

func TestResolveArtifact_Rejects(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"empty":     "",
		"relative":  "bin/module",
		"metachar":  "/tmp/module;rm -rf",
		"missing":   filepath.Join(dir, "nope"),
		"directory": dir,
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := resolveArtifact(path)
			require.Error(t, err)
			var le *LoadError
			assert.ErrorAs(t, err, &le)
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	path, sum := writeArtifact(t, "module bytes")

	assert.NoError(t, verifyChecksum(path, sum))
	assert.NoError(t, verifyChecksum(path, "sha256:"+strings.ToUpper(sum)))

	err := verifyChecksum(path, "sha256:"+strings.Repeat("0", 64))
	assert.ErrorContains(t, err, "checksum mismatch")

	err = verifyChecksum(path, "md5:abc")
	assert.ErrorContains(t, err, "unsupported checksum algorithm")
}

func TestPrepareArtifact(t *testing.T) {
	path, sum := writeArtifact(t, "module bytes")

	m := &Manifest{Name: "m", Path: path, Checksum: sum}
	_, err := prepareArtifact(m)
	assert.NoError(t, err)

	m.Checksum = strings.Repeat("a", 64)
	_, err = prepareArtifact(m)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "checksum verification failed", le.Reason)
}
