package apidb

// View is the registry as seen by one module. Every slot, implementation and
// global it creates is owned by that module, so retracting the module removes
// all of it.
type View struct {
	db    *DB
	owner string
}

var _ API = (*View)(nil)

// Owner returns the module the view attributes mutations to.
func (v *View) Owner() string {
	return v.owner
}

// DB returns the underlying registry.
func (v *View) DB() *DB {
	return v.db
}

func (v *View) SetAPI(module, language, name string, api any, size uint32) {
	v.db.setAPI(v.owner, Key{Module: module, Language: language, Name: name}, api, size)
}

func (v *View) GetAPI(module, language, name string, size uint32) (any, error) {
	return v.db.GetAPI(module, language, name, size)
}

func (v *View) RemoveAPI(module, language, name string) {
	v.db.RemoveAPI(module, language, name)
}

func (v *View) SetOrRemove(module, language, name string, api any, size uint32, load, reload bool) {
	if load {
		v.SetAPI(module, language, name, api, size)
		return
	}
	v.RemoveAPI(module, language, name)
}

// GlobalVar stores the global under the view's owner; the module argument
// is ignored.
func (v *View) GlobalVar(module, name string, size int, def []byte) ([]byte, error) {
	return v.db.GlobalVar(v.owner, name, size, def)
}

// GlobalValue stores the global under the view's owner; the module argument
// is ignored.
func (v *View) GlobalValue(module, name string, def any) (any, error) {
	return v.db.GlobalValue(v.owner, name, def)
}

func (v *View) Impl(module, iface string, impl any) error {
	return v.db.impl(v.owner, iface, impl)
}

func (v *View) RemoveImpl(module, iface string, impl any) {
	v.db.RemoveImpl(v.owner, iface, impl)
}

func (v *View) ImplOrRemove(module, iface string, impl any, load bool) error {
	if load {
		return v.Impl(module, iface, impl)
	}
	v.RemoveImpl(module, iface, impl)
	return nil
}

func (v *View) GetFirstImpl(iface string) *ImplIter {
	return v.db.GetFirstImpl(iface)
}
