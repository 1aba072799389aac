package wasmbinary

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/wasm"
)

// Validate runs the module-level validation gate: every index reference
// must resolve within its index space, the start function (if present) must
// be niladic and return nothing, a module may declare at most one memory,
// imported globals referenced by a const-expr initializer must be
// immutable, and every function body must pass the operand-stack type
// simulation (funcvalidate.go). A module that passes is never type-checked
// again: the engine pops operands without re-checking types.
func Validate(m *wasm.Module) error {
	funcCount := importCount(m, wasm.ImportKindFunc) + uint32(len(m.FunctionSection))
	tableCount := importCount(m, wasm.ImportKindTable) + uint32(len(m.TableSection))
	memCount := importCount(m, wasm.ImportKindMemory) + uint32(len(m.MemorySection))
	globalCount := importCount(m, wasm.ImportKindGlobal) + uint32(len(m.GlobalSection))

	if memCount > 1 {
		return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "at most one memory is permitted, found %d", memCount)
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return api.NewError(api.ErrorCategoryValidation, api.CodeCodeFuncMismatch,
			"function section has %d entries but code section has %d", len(m.FunctionSection), len(m.CodeSection))
	}
	for _, typeIdx := range m.FunctionSection {
		if typeIdx >= uint32(len(m.TypeSection)) {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "function references out-of-range type index %d", typeIdx)
		}
	}

	if m.StartSection != nil {
		if *m.StartSection >= funcCount {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "start function index %d out of range", *m.StartSection)
		}
		ft, ok := m.TypeOfFunction(*m.StartSection)
		if !ok || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return api.NewError(api.ErrorCategoryValidation, api.CodeTypeMismatch, "start function must take no parameters and return no results")
		}
	}

	for _, g := range m.GlobalSection {
		if g.Init.Opcode == 0x23 { // global.get
			if g.Init.GlobalIndex >= importCount(m, wasm.ImportKindGlobal) {
				return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange,
					"global initializer references non-imported global %d", g.Init.GlobalIndex)
			}
			if !importedGlobalImmutable(m, g.Init.GlobalIndex) {
				return api.NewError(api.ErrorCategoryValidation, api.CodeImmutableGlobal,
					"global initializer must reference an immutable imported global")
			}
		}
	}

	for _, exp := range m.ExportSection {
		var max uint32
		switch exp.Kind {
		case wasm.ImportKindFunc:
			max = funcCount
		case wasm.ImportKindTable:
			max = tableCount
		case wasm.ImportKindMemory:
			max = memCount
		case wasm.ImportKindGlobal:
			max = globalCount
		}
		if exp.Index >= max {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "export %q references out-of-range %s index %d", exp.Name, exp.Kind, exp.Index)
		}
	}

	for _, seg := range m.ElementSection {
		if seg.Mode == wasm.ElementModeActive && seg.TableIdx >= tableCount {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "element segment references out-of-range table %d", seg.TableIdx)
		}
		for _, fi := range seg.FuncIndexes {
			if fi >= funcCount {
				return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "element segment references out-of-range function %d", fi)
			}
		}
	}

	for _, seg := range m.DataSection {
		if seg.Mode == wasm.DataModeActive && seg.MemIdx >= memCount {
			return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "data segment references out-of-range memory %d", seg.MemIdx)
		}
	}

	if m.DataCountSection != nil && *m.DataCountSection != uint32(len(m.DataSection)) {
		return api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange,
			"data count section declares %d segments but data section has %d", *m.DataCountSection, len(m.DataSection))
	}

	return validateFunctionBodies(m)
}

func importCount(m *wasm.Module, kind wasm.ImportKind) uint32 {
	var n uint32
	for _, imp := range m.ImportSection {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

func importedGlobalImmutable(m *wasm.Module, idx wasm.Index) bool {
	var i uint32
	for _, imp := range m.ImportSection {
		if imp.Kind != wasm.ImportKindGlobal {
			continue
		}
		if i == idx {
			return !imp.DescGlobalType.Mutable
		}
		i++
	}
	return false
}
