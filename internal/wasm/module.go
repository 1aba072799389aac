// Package wasm holds the decoded representation of a core WebAssembly
// module: the section contents produced by internal/wasmbinary, structured
// the way internal/engine consumes them. Every slice-of-struct field here is
// a plain Go slice, populated once at decode time and never grown afterward.
package wasm

import "github.com/avrabe/wrt/api"

// Index is a zero-based index into one of a module's index spaces
// (function, table, memory, global, type, element, data).
type Index = uint32

// Module is the fully decoded, statically validated contents of a single
// core WebAssembly binary. It owns no running state: instantiating a Module
// produces an Instance that references it.
type Module struct {
	TypeSection     []api.FuncType
	ImportSection   []Import
	FunctionSection []Index // index into TypeSection, one per locally defined function
	TableSection    []Table
	MemorySection   []Memory
	GlobalSection   []Global
	ExportSection   []Export
	StartSection    *Index
	ElementSection  []ElementSegment
	CodeSection     []Code
	DataSection     []DataSegment

	// DataCountSection, if present, is the declared number of data segments;
	// its presence makes memory.init/data.drop valid even before the data
	// section itself is parsed. nil means the section was absent.
	DataCountSection *uint32

	// CustomSections preserves every custom section's raw payload in
	// order of appearance. Neither the engine nor the checkpoint codec
	// reads these; they are kept for embedders.
	CustomSections []CustomSection

	// NameSection carries debug names recovered from the custom "name"
	// section, when present. It is advisory: absent on release builds and
	// never consulted by the interpreter, only by trap formatting.
	NameSection *NameSection

	// ID identifies this module as a checkpoint's module reference; it is the
	// xxhash of the original binary, not a content-addressed hash of this
	// struct.
	ID uint64

	// LoadChecksum is the FNV-1a integrity checksum computed over the
	// original binary at the module-load validation gate.
	LoadChecksum uint32
}

// TypeOfFunction resolves a function index (imported or local) to its
// signature, or reports ok=false if idx is out of range.
func (m *Module) TypeOfFunction(idx Index) (api.FuncType, bool) {
	importedFuncCount := Index(0)
	for _, imp := range m.ImportSection {
		if imp.Kind != ImportKindFunc {
			continue
		}
		if idx == importedFuncCount {
			if int(imp.DescFuncTypeIndex) >= len(m.TypeSection) {
				return api.FuncType{}, false
			}
			return m.TypeSection[imp.DescFuncTypeIndex], true
		}
		importedFuncCount++
	}
	localIdx := idx - importedFuncCount
	if int(localIdx) >= len(m.FunctionSection) {
		return api.FuncType{}, false
	}
	typeIdx := m.FunctionSection[localIdx]
	if int(typeIdx) >= len(m.TypeSection) {
		return api.FuncType{}, false
	}
	return m.TypeSection[typeIdx], true
}

// ImportKind distinguishes the four importable/exportable external kinds.
type ImportKind byte

const (
	ImportKindFunc   ImportKind = 0x00
	ImportKindTable  ImportKind = 0x01
	ImportKindMemory ImportKind = 0x02
	ImportKindGlobal ImportKind = 0x03
)

func (k ImportKind) String() string {
	switch k {
	case ImportKindFunc:
		return "func"
	case ImportKindTable:
		return "table"
	case ImportKindMemory:
		return "memory"
	case ImportKindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Import is a single entry of the import section: a two-level name plus a
// description of which index space the import extends.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind

	DescFuncTypeIndex Index       // valid when Kind == ImportKindFunc
	DescTable         Table       // valid when Kind == ImportKindTable
	DescMemory        Memory      // valid when Kind == ImportKindMemory
	DescGlobalType    GlobalType  // valid when Kind == ImportKindGlobal
}

// Export is a single entry of the export section.
type Export struct {
	Name  string
	Kind  ImportKind
	Index Index
}

// Limits bounds the initial and optional maximum size of a table or memory.
type Limits struct {
	Min uint32
	Max *uint32 // nil means unbounded by the module (substrate ceilings still apply)
}

// Table describes a table's element type and size limits. RefType is either
// api.ValueTypeFuncref or api.ValueTypeExternref.
type Table struct {
	RefType api.ValueType
	Limits  Limits
}

// Memory describes a linear memory's size limits, in 64KiB pages.
type Memory struct {
	Limits Limits
}

// GlobalType is a global's value type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// ConstExpr is a constant initializer expression: one of
// i32.const/i64.const/f32.const/f64.const/global.get/ref.null/ref.func,
// terminated by end. The decoder evaluates these eagerly since they cannot
// reference runtime state other than already-initialized imported globals.
type ConstExpr struct {
	Opcode  byte
	ValueLo uint64
	ValueHi uint64
	// GlobalIndex is valid when Opcode is global.get.
	GlobalIndex Index
}

// Global is a single entry of the global section: its type plus the
// constant expression that initializes it.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// ElementSegment is a single entry of the element section, in either active,
// passive, or declarative mode.
type ElementSegment struct {
	Mode      ElementMode
	TableIdx  Index // valid when Mode == ElementModeActive
	Offset    ConstExpr
	RefType   api.ValueType
	FuncIndexes []Index // element values expressed as bare function indexes
}

// ElementMode is the placement mode of an element segment.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// DataSegment is a single entry of the data section, in either active or
// passive mode.
type DataSegment struct {
	Mode     DataMode
	MemIdx   Index // valid when Mode == DataModeActive
	Offset   ConstExpr
	Init     []byte
}

// DataMode is the placement mode of a data segment.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// IsPassive reports whether d is a passive data segment (used only via
// memory.init, never copied at instantiation).
func (d *DataSegment) IsPassive() bool { return d.Mode == DataModePassive }

// LocalEntry is a run-length-encoded group of same-typed locals in a
// function body, exactly as the binary format compresses them.
type LocalEntry struct {
	Count uint32
	Type  api.ValueType
}

// Code is a single entry of the code section: the function body matching
// the function at the same index in FunctionSection.
type Code struct {
	Locals []LocalEntry
	Body   []byte // raw, not-yet-decoded instruction stream for this function
}

// CustomSection is one custom (id 0) section, stored raw: its name and the
// payload bytes following the name.
type CustomSection struct {
	Name string
	Data []byte
}

// NameSection is the decoded contents of the custom "name" section.
type NameSection struct {
	ModuleName    string
	FunctionNames map[Index]string
	LocalNames    map[Index]map[Index]string
}
