// Package inspector renders objects of the store as text. Types can replace
// the default rendering by registering tree, property or properties aspects.
package inspector

import (
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
)

// ModuleName is the name the inspector registers under.
const ModuleName = "inspector"

// Inspector renders objects, consulting aspects registered in reg.
type Inspector struct {
	reg   apidb.API
	alloc alloc.Allocator
}

// New creates an inspector. A nil allocator means alloc.Heap.
func New(reg apidb.API, a alloc.Allocator) *Inspector {
	if a == nil {
		a = alloc.Heap{}
	}
	return &Inspector{reg: reg, alloc: a}
}

// Module returns the inspector module, which publishes an *Inspector bound
// to the registry view it is loaded with.
func Module() modhost.Desc {
	return modhost.Desc{
		Name:        ModuleName,
		Description: "object tree and property rendering",
		Entry: func(reg apidb.API, a alloc.Allocator, load, reload bool) error {
			apidb.SetOrRemoveOf(reg, ModuleName, apidb.LangGo, New(reg, a), load, reload)
			return nil
		},
	}
}

// Tree writes obj and, up to args.Depth levels, its sub-objects. It returns
// the selected object, which a tree aspect may change.
func (in *Inspector) Tree(db *cdb.DB, obj, selected cdb.ObjID, args cdb.TreeArgs) (cdb.ObjID, error) {
	if obj == args.IgnoredObject && !obj.IsZero() {
		return selected, nil
	}
	t, err := db.TypeOf(obj)
	if err != nil {
		return selected, err
	}
	if aspect := cdb.Aspect[cdb.TreeAspect](in.reg, cdb.TreeAspectName, t); aspect != nil && aspect.UITree != nil {
		return aspect.UITree(in.alloc, db, obj, selected, args)
	}
	return in.defaultTree(db, obj, selected, args, 0)
}

func (in *Inspector) defaultTree(db *cdb.DB, obj, selected cdb.ObjID, args cdb.TreeArgs, level int) (cdb.ObjID, error) {
	def, err := typeDef(db, obj)
	if err != nil {
		return selected, err
	}

	marker := ""
	if obj == selected {
		marker = " *"
	}
	if _, err := fmt.Fprintf(args.Out, "%s%s %s%s\n", strings.Repeat("  ", level), def.Name, obj, marker); err != nil {
		return selected, err
	}
	if level >= args.Depth && !args.ExpandObject {
		return selected, nil
	}

	for _, p := range def.Props {
		if !p.Kind.IsObject() || !matches(p.Name, args.Filter) {
			continue
		}
		v, err := db.Get(obj, p.Index)
		if err != nil {
			return selected, err
		}
		if !p.Kind.Owning() {
			if err := writeReferences(args.Out, level+1, p, v); err != nil {
				return selected, err
			}
			continue
		}

		children := v.Set()
		if p.Kind == cdb.KindSubObject {
			children = nil
			if !v.Object().IsZero() {
				children = []cdb.ObjID{v.Object()}
			}
		}
		child := args
		child.Filter = ""
		for _, c := range children {
			if c == args.IgnoredObject {
				continue
			}
			if selected, err = in.defaultTree(db, c, selected, child, level+1); err != nil {
				return selected, err
			}
		}
	}
	return selected, nil
}

func writeReferences(w io.Writer, level int, p cdb.PropDef, v cdb.Value) error {
	targets := v.Set()
	if p.Kind == cdb.KindReference {
		targets = nil
		if !v.Object().IsZero() {
			targets = []cdb.ObjID{v.Object()}
		}
	}
	for _, t := range targets {
		if _, err := fmt.Fprintf(w, "%s%s -> %s\n", strings.Repeat("  ", level), p.Name, t); err != nil {
			return err
		}
	}
	return nil
}

// Properties writes the properties of obj whose names contain args.Filter.
// A properties aspect of the type replaces the whole listing; a property
// aspect replaces the rendering of each single property.
func (in *Inspector) Properties(db *cdb.DB, obj cdb.ObjID, args cdb.PropertiesArgs) error {
	def, err := typeDef(db, obj)
	if err != nil {
		return err
	}
	t := obj.Type

	if aspect := cdb.Aspect[cdb.PropertiesAspect](in.reg, cdb.PropertiesAspectName, t); aspect != nil && aspect.UIProperties != nil {
		return aspect.UIProperties(in.alloc, db, obj, args)
	}
	single := cdb.Aspect[cdb.PropertyAspect](in.reg, cdb.PropertyAspectName, t)

	for _, p := range def.Props {
		if !matches(p.Name, args.Filter) {
			continue
		}
		if single != nil && single.UIProperty != nil {
			if err := single.UIProperty(in.alloc, db, obj, p.Index, args); err != nil {
				return err
			}
			continue
		}
		v, err := db.Get(obj, p.Index)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(args.Out, "%s (%s) = %s\n", p.Name, p.Kind, formatValue(v)); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v cdb.Value) string {
	if !v.Kind().IsSet() {
		return v.String()
	}
	members := v.Set()
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func typeDef(db *cdb.DB, obj cdb.ObjID) (cdb.TypeDef, error) {
	t, err := db.TypeOf(obj)
	if err != nil {
		return cdb.TypeDef{}, err
	}
	return db.TypeDefOf(t)
}

func matches(name, filter string) bool {
	return filter == "" || strings.Contains(name, filter)
}
