package cdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/strid"
)

const sampleSchema = `
type "folder" {
  property "name" {
    kind    = "str"
    default = "root"
  }
  property "files" {
    kind = "subobject_set"
    type = "file"
  }
}

type "file" {
  property "name" {
    kind = "str"
  }
  property "size" {
    kind    = "u32"
    default = 512
  }
  property "ratio" {
    kind    = "f64"
    default = 0.5
  }
  property "hidden" {
    kind    = "bool"
    default = true
  }
  property "origin" {
    kind = "reference"
    type = "folder"
  }
}
`

func TestParseSchema(t *testing.T) {
	defs, err := ParseSchema([]byte(sampleSchema), "sample.hcl")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	folder, file := defs[0], defs[1]
	assert.Equal(t, "folder", folder.Name)
	assert.Equal(t, Str("root"), folder.Props[0].Default)
	assert.Equal(t, KindSubObjectSet, folder.Props[1].Kind)
	assert.Equal(t, strid.Sum32("file"), folder.Props[1].TypeHash)

	assert.Equal(t, KindNone, file.Props[0].Default.Kind())
	assert.Equal(t, U32(512), file.Props[1].Default)
	assert.Equal(t, F64(0.5), file.Props[2].Default)
	assert.Equal(t, Bool(true), file.Props[3].Default)
	assert.Equal(t, uint32(4), file.Props[4].Index)
}

func TestParseSchema_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `type "x" {`},
		{"unknown kind", `type "x" { property "a" { kind = "vector" } }`},
		{"missing kind", `type "x" { property "a" {} }`},
		{"fraction for integer", `type "x" { property "a" {
  kind    = "u32"
  default = 1.5
} }`},
		{"negative unsigned", `type "x" { property "a" {
  kind    = "u64"
  default = -1
} }`},
		{"default on reference", `type "x" { property "a" {
  kind    = "reference"
  default = "y"
} }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema([]byte(tt.src), "bad.hcl")
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestLoadSchemaDir_Register(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "types.hcl"), []byte(sampleSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	defs, err := LoadSchemaDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	db := New(nil)
	idxs, err := db.RegisterSchema(defs)
	require.NoError(t, err)
	require.Len(t, idxs, 2)

	f, err := db.Create(idxs[1])
	require.NoError(t, err)
	size, err := db.GetU32(f, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(512), size)

	// Loading the same schema twice is harmless.
	again, err := db.RegisterSchema(defs)
	require.NoError(t, err)
	assert.Equal(t, idxs, again)
}
