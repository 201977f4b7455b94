package cdb

import (
	"fmt"
	"io"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
)

// Aspect names known to the kernel's built-in tooling.
const (
	TreeAspectName       = "ct_editor_tree_aspect"
	PropertyAspectName   = "ct_editor_property_aspect"
	PropertiesAspectName = "ct_editor_properties_aspect"
)

// AspectInterface returns the registry interface under which implementations
// of aspect for type t are registered.
func AspectInterface(aspect string, t TypeIdx) string {
	return fmt.Sprintf("%s@%d", aspect, t)
}

// RegisterAspect adds (load) or removes (unload) impl as the aspect
// implementation for type t.
func RegisterAspect(api apidb.API, module, aspect string, t TypeIdx, impl any, load bool) error {
	return api.ImplOrRemove(module, AspectInterface(aspect, t), impl, load)
}

// Aspect returns the first implementation of aspect for type t that has type
// *T, or nil.
func Aspect[T any](api apidb.API, aspect string, t TypeIdx) *T {
	for it := api.GetFirstImpl(AspectInterface(aspect, t)); it != nil; it = it.Next() {
		if impl, ok := it.Interface().(*T); ok {
			return impl
		}
	}
	return nil
}

// TreeArgs parameterizes a tree aspect call.
type TreeArgs struct {
	Out           io.Writer
	Depth         int
	ExpandObject  bool
	IgnoredObject ObjID
	Filter        string
}

// TreeAspect renders an object as a node of an object tree and returns the
// selected object.
type TreeAspect struct {
	UITree func(a alloc.Allocator, db *DB, obj, selected ObjID, args TreeArgs) (ObjID, error)
}

// PropertiesArgs parameterizes property aspect calls.
type PropertiesArgs struct {
	Out    io.Writer
	Filter string
}

// PropertyAspect renders a single property of an object.
type PropertyAspect struct {
	UIProperty func(a alloc.Allocator, db *DB, obj ObjID, prop uint32, args PropertiesArgs) error
}

// PropertiesAspect renders all properties of an object, replacing the
// default per-property rendering.
type PropertiesAspect struct {
	UIProperties func(a alloc.Allocator, db *DB, obj ObjID, args PropertiesArgs) error
}
