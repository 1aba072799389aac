package wrt

import (
	"fmt"

	"github.com/avrabe/wrt/api"
	rescomp "github.com/avrabe/wrt/internal/component"
	"github.com/avrabe/wrt/internal/engine"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/wasmbinary"
)

// Checkpoint serializes id's entire resumable state: the module reference,
// instance state, call stack, operand stack and pc. The result is opaque
// to the caller and round-trips only through Restore against the same
// module bytes that produced id.
func (rt *Runtime) Checkpoint(id ComponentId) ([]byte, error) {
	rt.mu.Lock()
	comp, ok := rt.components[id]
	rt.mu.Unlock()
	if !ok {
		return nil, api.NewError(api.ErrorCategorySystem, api.CodeUnknownInstance, "unknown component %d", id)
	}
	snap := comp.interp.Snapshot()
	return engine.EncodeSnapshot(snap), nil
}

// Restore decodes raw (the same bytes previously passed to Instantiate) and
// resumes it from checkpoint, returning a freshly registered ComponentId
// whose interpreter's memory/tables/globals/call-stack/operand-stack/pc are
// bit-identical to the moment Checkpoint was called. raw's module must match
// the checkpoint's recorded module reference; a mismatch is rejected rather
// than silently resuming against the wrong code.
func (rt *Runtime) Restore(raw []byte, checkpoint []byte) (ComponentId, error) {
	snap, err := engine.DecodeSnapshotAt(checkpoint, rt.config.verificationLevel)
	if err != nil {
		return 0, err
	}

	core, _, err := extractCoreModule(raw)
	if err != nil {
		return 0, err
	}
	lim := decodeLimits(rt.config.decodeLimits)
	lim.Logger = rt.logger
	m, err := wasmbinary.DecodeModule(core, lim)
	if err != nil {
		return 0, err
	}
	if m.ID != snap.ModuleID {
		return 0, api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "checkpoint module reference %d does not match provided module %d", snap.ModuleID, m.ID)
	}

	res := &reservation{}
	registered := false
	defer func() {
		if !registered {
			res.rollback()
		}
	}()
	if err := res.charge(rt.budgets.DecodedModule, uint(len(core))); err != nil {
		return 0, err
	}

	inst, err := rt.buildInstance(m, res)
	if err != nil {
		return 0, err
	}

	if err := res.charge(rt.budgets.OperandStack, rt.config.engineLimits.MaxOperandStack*operandSlotBytes); err != nil {
		return 0, err
	}
	if err := res.charge(rt.budgets.CallFrames, rt.config.engineLimits.MaxCallDepth*callFrameBytes); err != nil {
		return 0, err
	}
	interp, err := engine.NewInterpreterFromSnapshot(inst, rt.config.engineLimits, snap)
	if err != nil {
		return 0, err
	}

	id := rt.allocID()
	resources := rescomp.NewResourceTable(rt.config.maxResourceHandles)
	interceptor := intercept.New(fmt.Sprintf("component-%d", id))
	interceptor.AddStrategy(rescomp.NewInterceptStrategy(resources))
	comp := &component{
		interp:      interp,
		interceptor: interceptor,
		resources:   resources,
	}

	rt.mu.Lock()
	rt.components[id] = comp
	rt.mu.Unlock()
	registered = true

	return id, nil
}
