package wrt

import (
	"fmt"

	"github.com/avrabe/wrt/api"
	rescomp "github.com/avrabe/wrt/internal/component"
	"github.com/avrabe/wrt/internal/engine"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/wasm"
	"github.com/avrabe/wrt/internal/wasmbinary"
)

// Per-element byte costs used to charge the named subsystem budgets up
// front, when a component's worst-case footprint is still knowable.
const (
	operandSlotBytes = 24  // one tagged value: type byte plus two 64-bit words, padded
	callFrameBytes   = 512 // conservative per-activation bookkeeping
	tableEntryBytes  = 8   // one raw table ref
)

// reservation tracks budget charges made while building one component, so
// a failed instantiation hands every byte back instead of leaking it from
// the subsystem ledgers.
type reservation struct {
	charges []struct {
		budget *substrate.Budget
		bytes  uint
	}
}

func (r *reservation) charge(b *substrate.Budget, n uint) error {
	if err := b.Acquire(n); err != nil {
		return err
	}
	r.charges = append(r.charges, struct {
		budget *substrate.Budget
		bytes  uint
	}{b, n})
	return nil
}

func (r *reservation) rollback() {
	for _, c := range r.charges {
		c.budget.Release(c.bytes)
	}
	r.charges = nil
}

// Instantiate decodes raw (a core WebAssembly binary, or a component binary
// whose embedded core module is extracted first), resolves its imports
// against config-registered host modules, and runs its start function
// synchronously before returning, as the core specification's
// instantiation semantics require — never deferred to the first export
// call.
func (rt *Runtime) Instantiate(raw []byte) (ComponentId, error) {
	core, summary, err := extractCoreModule(raw)
	if err != nil {
		return 0, err
	}
	if summary != nil {
		rt.logger.WithField("imports", len(summary.Imports)).WithField("exports", len(summary.Exports)).
			Debug("instantiating component-model binary")
	}

	lim := decodeLimits(rt.config.decodeLimits)
	lim.Logger = rt.logger
	m, err := wasmbinary.DecodeModule(core, lim)
	if err != nil {
		return 0, err
	}
	rt.logger.WithField("checksum", m.LoadChecksum).Debug("module passed load gate")

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
	interp := engine.NewInterpreter(inst, rt.config.engineLimits)

	if m.StartSection != nil {
		fuel := ^uint64(0)
		if err := interp.StartCall(*m.StartSection, nil); err != nil {
			return 0, err
		}
		if err := interp.Run(&fuel); err != nil {
			return 0, err
		}
		if interp.State() == engine.StateTrapped {
			t := interp.Trap()
			return 0, api.NewError(api.ErrorCategoryTrap, string(t.Kind), "start function trapped: %s", t.Message)
		}
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

// buildInstance wires a decoded Module's sections into a running
// wasm.Instance: memory and tables acquired from the runtime's bounded
// provider, globals evaluated from their constant initializers, functions
// resolved against either a local code-section body or a registered host
// import, and element/data segments copied in per their active/passive
// mode. Linear memory draws from the runtime's memory pool (and thereby
// the linear-memory budget); table capacity is charged to the table budget
// through res.
func (rt *Runtime) buildInstance(m *wasm.Module, res *reservation) (*wasm.Instance, error) {
	inst := &wasm.Instance{
		Module:  m,
		Exports: make(map[string]wasm.ExportInstance, len(m.ExportSection)),
	}

	if err := rt.resolveFunctions(m, inst); err != nil {
		return nil, err
	}
	if err := rt.resolveGlobals(m, inst); err != nil {
		return nil, err
	}
	if err := rt.resolveMemory(m, inst); err != nil {
		return nil, err
	}
	if err := rt.resolveTables(m, inst); err != nil {
		return nil, err
	}
	var tableBytes uint
	for _, t := range inst.Tables {
		tableBytes += t.Refs.Cap * tableEntryBytes
	}
	if tableBytes > 0 {
		if err := res.charge(rt.budgets.Tables, tableBytes); err != nil {
			return nil, err
		}
	}

	inst.DataInstances = make([]wasm.DataInstance, len(m.DataSection))
	for i, d := range m.DataSection {
		inst.DataInstances[i] = append([]byte(nil), d.Init...)
		if d.Mode == wasm.DataModeActive && inst.Memory != nil {
			off := evalConstI32(d.Offset)
			end := uint64(off) + uint64(len(d.Init))
			if end <= uint64(len(inst.Memory.Bytes())) {
				copy(inst.Memory.Bytes()[off:], d.Init)
			}
		}
	}

	inst.ElementInstances = make([]wasm.ElementInstance, len(m.ElementSection))
	for i, e := range m.ElementSection {
		refs := make([]int64, len(e.FuncIndexes))
		for j, fi := range e.FuncIndexes {
			refs[j] = int64(fi)
		}
		inst.ElementInstances[i] = wasm.ElementInstance{RefType: e.RefType, Refs: refs}
		if e.Mode == wasm.ElementModeActive && int(e.TableIdx) < len(inst.Tables) {
			off := evalConstI32(e.Offset)
			tbl := inst.Tables[e.TableIdx]
			for j, r := range refs {
				_ = tbl.Refs.Set(int(off)+j, r)
			}
		}
	}

	for _, exp := range m.ExportSection {
		inst.Exports[exp.Name] = wasm.ExportInstance{Kind: exp.Kind, Index: exp.Index}
	}

	return inst, nil
}

func (rt *Runtime) resolveFunctions(m *wasm.Module, inst *wasm.Instance) error {
	importedFuncs := 0
	for _, imp := range m.ImportSection {
		if imp.Kind != wasm.ImportKindFunc {
			continue
		}
		importedFuncs++
		hostMod, ok := rt.config.hostModules[imp.Module]
		if !ok {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "unresolved import %s.%s: no host module registered", imp.Module, imp.Name)
		}
		fn, ok := hostMod[imp.Name]
		if !ok {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "unresolved import %s.%s: function not found in host module", imp.Module, imp.Name)
		}
		ft := m.TypeSection[imp.DescFuncTypeIndex]
		inst.Functions = append(inst.Functions, wasm.FunctionInstance{Type: ft, Idx: wasm.Index(len(inst.Functions)), Host: fn})
	}
	for localIdx, typeIdx := range m.FunctionSection {
		ft := m.TypeSection[typeIdx]
		idx := wasm.Index(len(inst.Functions))
		inst.Functions = append(inst.Functions, wasm.FunctionInstance{Type: ft, Idx: idx, Body: &m.CodeSection[localIdx]})
	}
	return nil
}

func (rt *Runtime) resolveGlobals(m *wasm.Module, inst *wasm.Instance) error {
	importedGlobals := 0
	for _, imp := range m.ImportSection {
		if imp.Kind != wasm.ImportKindGlobal {
			continue
		}
		importedGlobals++
		// Host-provided globals are not modeled in this runtime's host-module
		// surface; imported globals must be read-only and are zero-valued.
		inst.Globals = append(inst.Globals, &wasm.GlobalInstance{Type: imp.DescGlobalType})
	}
	for _, g := range m.GlobalSection {
		lo, hi := evalConst(g.Init, inst)
		inst.Globals = append(inst.Globals, &wasm.GlobalInstance{Type: g.Type, Val: lo, ValHi: hi})
	}
	return nil
}

func (rt *Runtime) resolveMemory(m *wasm.Module, inst *wasm.Instance) error {
	var mem *wasm.Memory
	for _, imp := range m.ImportSection {
		if imp.Kind == wasm.ImportKindMemory {
			d := imp.DescMemory
			mem = &d
		}
	}
	if len(m.MemorySection) > 0 {
		mem = &m.MemorySection[0]
	}
	if mem == nil {
		return nil
	}
	maxPages := uint32(0)
	if mem.Limits.Max != nil {
		maxPages = *mem.Limits.Max
	}
	mi, err := wasm.NewMemoryInstance(rt.memPool, mem.Limits.Min, maxPages)
	if err != nil {
		return err
	}
	inst.Memory = mi
	return nil
}

func (rt *Runtime) resolveTables(m *wasm.Module, inst *wasm.Instance) error {
	for _, imp := range m.ImportSection {
		if imp.Kind != wasm.ImportKindTable {
			continue
		}
		tcap := imp.DescTable.Limits.Min
		if imp.DescTable.Limits.Max != nil {
			tcap = *imp.DescTable.Limits.Max
		}
		inst.Tables = append(inst.Tables, wasm.NewTableInstance(imp.DescTable.RefType, imp.DescTable.Limits.Min, tcap))
	}
	for _, t := range m.TableSection {
		tcap := t.Limits.Min
		if t.Limits.Max != nil {
			tcap = *t.Limits.Max
		}
		inst.Tables = append(inst.Tables, wasm.NewTableInstance(t.RefType, t.Limits.Min, tcap))
	}
	return nil
}

// evalConst evaluates a module-level constant expression. global.get may
// only reference an already-resolved imported global, matching the
// validation gate internal/wasmbinary already enforces at decode time.
func evalConst(c wasm.ConstExpr, inst *wasm.Instance) (lo, hi uint64) {
	const opGlobalGet = 0x23
	if c.Opcode == opGlobalGet && int(c.GlobalIndex) < len(inst.Globals) {
		g := inst.Globals[c.GlobalIndex]
		return g.Val, g.ValHi
	}
	return c.ValueLo, c.ValueHi
}

func evalConstI32(c wasm.ConstExpr) int32 {
	return int32(c.ValueLo)
}

// extractCoreModule dispatches on the binary's magic+version: a core
// module passes through unchanged with a nil summary; a component
// binary is unwrapped to its first embedded core module plus a
// ComponentSummary of its import/export shells. A component with no
// embedded core module at all is a validation error — this runtime only
// ever executes core-module bytecode.
func extractCoreModule(raw []byte) ([]byte, *wasmbinary.ComponentSummary, error) {
	if !wasmbinary.IsComponentBinary(raw) {
		return raw, nil, nil
	}
	coreModules, summary, err := wasmbinary.DecodeComponent(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(coreModules) == 0 {
		return nil, nil, api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "component binary has no embedded core module")
	}
	return coreModules[0], summary, nil
}

func decodeLimits(d DecodeLimits) wasmbinary.Limits {
	return wasmbinary.Limits{
		MaxTypes:     d.MaxTypes,
		MaxFunctions: d.MaxFunctions,
		MaxTables:    d.MaxTables,
		MaxMemories:  d.MaxMemories,
		MaxGlobals:   d.MaxGlobals,
		MaxExports:   d.MaxExports,
		MaxElements:  d.MaxElements,
		MaxDataSegs:  d.MaxDataSegs,
		MaxImports:   d.MaxImports,
	}
}
