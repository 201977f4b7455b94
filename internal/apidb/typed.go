package apidb

import (
	"fmt"
	"reflect"
)

// SizeOf returns the size of T as recorded in API slots. A consumer built
// against a different layout of T sees a different size.
func SizeOf[T any]() uint32 {
	return uint32(reflect.TypeOf((*T)(nil)).Elem().Size())
}

// NameOf returns the registry name of T, e.g. "foo.API".
func NameOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// SetAPIOf registers api under the name and size of T.
func SetAPIOf[T any](db API, module, language string, api *T) {
	db.SetAPI(module, language, NameOf[T](), api, SizeOf[T]())
}

// SetOrRemoveOf is SetOrRemove keyed by the name and size of T.
func SetOrRemoveOf[T any](db API, module, language string, api *T, load, reload bool) {
	db.SetOrRemove(module, language, NameOf[T](), api, SizeOf[T](), load, reload)
}

// GetAPIOf fetches the API registered under the name and size of T.
func GetAPIOf[T any](db API, module, language string) (*T, error) {
	v, err := db.GetAPI(module, language, NameOf[T](), SizeOf[T]())
	if err != nil {
		return nil, err
	}
	api, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s holds %T",
			ErrSizeMismatch, module, language, NameOf[T](), v)
	}
	return api, nil
}

// GlobalOf returns the persistent global (module, name) of type T, creating
// it from def on first use.
func GlobalOf[T any](db API, module, name string, def T) (*T, error) {
	v, err := db.GlobalValue(module, name, def)
	if err != nil {
		return nil, err
	}
	g, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s holds %T", ErrGlobalTypeMismatch, module, name, v)
	}
	return g, nil
}

// ImplSource is anything that can walk interface implementations.
type ImplSource interface {
	GetFirstImpl(iface string) *ImplIter
}

// ImplsOf walks the implementations of iface and returns those of type *T.
func ImplsOf[T any](db ImplSource, iface string) []*T {
	var out []*T
	for it := db.GetFirstImpl(iface); it != nil; it = it.Next() {
		if impl, ok := it.Interface().(*T); ok {
			out = append(out, impl)
		}
	}
	return out
}
