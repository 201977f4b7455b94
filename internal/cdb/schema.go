package cdb

import (
	"fmt"
	"math"
	"math/big"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/felixgeelhaar/modkernel/internal/strid"
)

// Schema files declare types in HCL:
//
//	type "asset" {
//	  property "name" {
//	    kind    = "str"
//	    default = "untitled"
//	  }
//	  property "parent" {
//	    kind = "reference"
//	    type = "folder"
//	  }
//	}
type schemaFile struct {
	Types []*schemaType `hcl:"type,block"`
}

type schemaType struct {
	Name       string            `hcl:"name,label"`
	Properties []*schemaProperty `hcl:"property,block"`
}

type schemaProperty struct {
	Name    string         `hcl:"name,label"`
	Kind    string         `hcl:"kind"`
	Type    string         `hcl:"type,optional"`
	Default hcl.Expression `hcl:"default,optional"`
}

// ParseSchema decodes type definitions from HCL source. filename is used in
// diagnostics only.
func ParseSchema(src []byte, filename string) ([]TypeDef, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidSchema, filename, diags)
	}
	return decodeSchema(file, filename)
}

// LoadSchemaFile reads and decodes one schema file.
func LoadSchemaFile(path string) ([]TypeDef, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidSchema, path, diags)
	}
	return decodeSchema(file, path)
}

// LoadSchemaDir decodes every *.hcl file in dir in lexical order.
func LoadSchemaDir(dir string) ([]TypeDef, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, fmt.Errorf("list schema files in %s: %w", dir, err)
	}
	var defs []TypeDef
	for _, path := range paths {
		d, err := LoadSchemaFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d...)
	}
	return defs, nil
}

// RegisterSchema registers defs in order and returns their indices.
func (db *DB) RegisterSchema(defs []TypeDef) ([]TypeIdx, error) {
	out := make([]TypeIdx, 0, len(defs))
	for _, def := range defs {
		idx, err := db.RegisterType(def)
		if err != nil {
			return out, err
		}
		out = append(out, idx)
	}
	return out, nil
}

func decodeSchema(file *hcl.File, filename string) ([]TypeDef, error) {
	var parsed schemaFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidSchema, filename, diags)
	}

	defs := make([]TypeDef, 0, len(parsed.Types))
	for _, st := range parsed.Types {
		def := TypeDef{Name: st.Name}
		for i, sp := range st.Properties {
			p, err := decodeProperty(uint32(i), sp)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: type %s: %w", ErrInvalidSchema, filename, st.Name, err)
			}
			def.Props = append(def.Props, p)
		}
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSchema, filename, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func decodeProperty(idx uint32, sp *schemaProperty) (PropDef, error) {
	kind, err := ParseKind(sp.Kind)
	if err != nil {
		return PropDef{}, fmt.Errorf("property %s: %w", sp.Name, err)
	}
	p := PropDef{Index: idx, Name: sp.Name, Kind: kind}
	if sp.Type != "" {
		p.TypeHash = strid.Sum32(sp.Type)
	}

	if sp.Default == nil {
		return p, nil
	}
	val, diags := sp.Default.Value(nil)
	if diags.HasErrors() {
		return PropDef{}, fmt.Errorf("property %s default: %w", sp.Name, diags)
	}
	if val.IsNull() {
		return p, nil
	}
	def, err := valueFromCty(kind, val)
	if err != nil {
		return PropDef{}, fmt.Errorf("property %s default: %w", sp.Name, err)
	}
	p.Default = def
	return p, nil
}

// valueFromCty converts an HCL value to a property value of kind k.
func valueFromCty(k Kind, val cty.Value) (Value, error) {
	if !val.IsWhollyKnown() {
		return Value{}, fmt.Errorf("value is not known")
	}

	switch k {
	case KindBool:
		v, err := convert.Convert(val, cty.Bool)
		if err != nil {
			return Value{}, err
		}
		return Bool(v.True()), nil
	case KindStr, KindBlob:
		v, err := convert.Convert(val, cty.String)
		if err != nil {
			return Value{}, err
		}
		if k == KindBlob {
			return Blob([]byte(v.AsString())), nil
		}
		return Str(v.AsString()), nil
	case KindU64, KindI64, KindU32, KindI32, KindF32, KindF64:
		v, err := convert.Convert(val, cty.Number)
		if err != nil {
			return Value{}, err
		}
		return numberValue(k, v.AsBigFloat())
	}
	return Value{}, fmt.Errorf("%s properties have no default", k)
}

func numberValue(k Kind, f *big.Float) (Value, error) {
	switch k {
	case KindF32:
		x, _ := f.Float32()
		return F32(x), nil
	case KindF64:
		x, _ := f.Float64()
		return F64(x), nil
	}

	if !f.IsInt() {
		return Value{}, fmt.Errorf("%s is not an integer", f.Text('g', 10))
	}
	switch k {
	case KindU64, KindU32:
		u, acc := f.Uint64()
		if acc != big.Exact || (k == KindU32 && u > math.MaxUint32) {
			return Value{}, fmt.Errorf("%s out of range for %s", f.Text('g', 20), k)
		}
		if k == KindU32 {
			return U32(uint32(u)), nil
		}
		return U64(u), nil
	default:
		i, acc := f.Int64()
		if acc != big.Exact || (k == KindI32 && (i < math.MinInt32 || i > math.MaxInt32)) {
			return Value{}, fmt.Errorf("%s out of range for %s", f.Text('g', 20), k)
		}
		if k == KindI32 {
			return I32(int32(i)), nil
		}
		return I64(i), nil
	}
}
