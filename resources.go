package wrt

import (
	rescomp "github.com/avrabe/wrt/internal/component"
)

// NewResourceHandle allocates a fresh Component Model resource handle of
// the given type on component id, tagged own or borrow. It is the host
// surface a canonical-ABI lowering path would call when a guest creates or
// receives a resource.
func (rt *Runtime) NewResourceHandle(id ComponentId, typeIdx uint32, borrow bool) (rescomp.Handle, error) {
	comp, err := rt.lookup(id)
	if err != nil {
		return 0, err
	}
	ownership := rescomp.Own
	if borrow {
		ownership = rescomp.Borrow
	}
	return comp.resources.New(typeIdx, ownership)
}

// ResourceRep returns the live resource behind handle on component id, the
// same lookup the intercept layer's "rep" resource operation performs.
func (rt *Runtime) ResourceRep(id ComponentId, handle rescomp.Handle) (rescomp.Resource, error) {
	comp, err := rt.lookup(id)
	if err != nil {
		return rescomp.Resource{}, err
	}
	return comp.resources.Get(handle)
}

// DropResourceHandle releases handle on component id. Strategies installed
// on the component's interceptor via the "drop" resource operation call
// this same path; it is exposed directly too since not every drop happens
// as part of an intercepted call.
func (rt *Runtime) DropResourceHandle(id ComponentId, handle rescomp.Handle) error {
	comp, err := rt.lookup(id)
	if err != nil {
		return err
	}
	return comp.resources.Drop(handle)
}
