package wasmbinary

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/leb128"
	"github.com/avrabe/wrt/internal/wasm"
)

// maxInstructionsPerFunction caps a single function body's pre-decoded
// instruction count.
const maxInstructionsPerFunction = 8192

// anyType is the bottom operand type produced only while simulating
// unreachable code; it satisfies any expectation.
const anyType api.ValueType = 0

// validateFunctionBodies runs the operand-stack type simulation over every
// local function body: at each instruction the stack must hold the types
// the instruction requires, control structures must balance, and every
// immediate index must resolve. Passing this gate is what lets the engine
// pop operands without re-checking types at dispatch time.
func validateFunctionBodies(m *wasm.Module) error {
	importedFuncs := importCount(m, wasm.ImportKindFunc)
	for i := range m.CodeSection {
		typeIdx := m.FunctionSection[i]
		ft := m.TypeSection[typeIdx]
		v := newFuncValidator(m, ft, &m.CodeSection[i], importedFuncs+uint32(i))
		if err := v.run(); err != nil {
			return err
		}
	}
	return nil
}

// ctrlFrame is one entry of the validator's control stack, mirroring the
// frame the engine will push for the same block at run time.
type ctrlFrame struct {
	opcode      byte // 0x02 block, 0x03 loop, 0x04 if, 0x05 else, 0x00 function body
	results     []api.ValueType
	height      int
	unreachable bool
}

type funcValidator struct {
	m       *wasm.Module
	d       *decoder
	funcIdx uint32

	locals []api.ValueType
	stack  []api.ValueType
	ctrl   []ctrlFrame

	funcCount   uint32
	tableCount  uint32
	memCount    uint32
	globalCount uint32
	dataCount   uint32
	elemCount   uint32

	instructions int
}

func newFuncValidator(m *wasm.Module, ft api.FuncType, code *wasm.Code, funcIdx uint32) *funcValidator {
	locals := make([]api.ValueType, 0, len(ft.Params))
	locals = append(locals, ft.Params...)
	for _, le := range code.Locals {
		for i := uint32(0); i < le.Count; i++ {
			locals = append(locals, le.Type)
		}
	}
	dataCount := uint32(len(m.DataSection))
	if m.DataCountSection != nil {
		dataCount = *m.DataCountSection
	}
	v := &funcValidator{
		m:           m,
		d:           &decoder{buf: code.Body},
		funcIdx:     funcIdx,
		locals:      locals,
		funcCount:   importCount(m, wasm.ImportKindFunc) + uint32(len(m.FunctionSection)),
		tableCount:  importCount(m, wasm.ImportKindTable) + uint32(len(m.TableSection)),
		memCount:    importCount(m, wasm.ImportKindMemory) + uint32(len(m.MemorySection)),
		globalCount: importCount(m, wasm.ImportKindGlobal) + uint32(len(m.GlobalSection)),
		dataCount:   dataCount,
		elemCount:   uint32(len(m.ElementSection)),
	}
	v.pushCtrl(0x00, ft.Results)
	return v
}

func (v *funcValidator) errf(code, format string, args ...any) error {
	return api.NewError(api.ErrorCategoryValidation, code, "function %d: "+format, append([]any{v.funcIdx}, args...)...)
}

func (v *funcValidator) pushVal(t api.ValueType) { v.stack = append(v.stack, t) }

func (v *funcValidator) pushVals(ts []api.ValueType) {
	v.stack = append(v.stack, ts...)
}

func (v *funcValidator) popVal() (api.ValueType, error) {
	frame := &v.ctrl[len(v.ctrl)-1]
	if len(v.stack) == frame.height {
		if frame.unreachable {
			return anyType, nil
		}
		return 0, v.errf(api.CodeTypeMismatch, "operand stack underflow")
	}
	t := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return t, nil
}

func (v *funcValidator) popExpect(want api.ValueType) error {
	got, err := v.popVal()
	if err != nil {
		return err
	}
	if got != want && got != anyType && want != anyType {
		return v.errf(api.CodeTypeMismatch, "expected %s on stack, found %s", want, got)
	}
	return nil
}

// popExpects pops ts in reverse declaration order, as the engine will.
func (v *funcValidator) popExpects(ts []api.ValueType) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if err := v.popExpect(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *funcValidator) pushCtrl(opcode byte, results []api.ValueType) {
	v.ctrl = append(v.ctrl, ctrlFrame{opcode: opcode, results: results, height: len(v.stack)})
}

func (v *funcValidator) popCtrl() (ctrlFrame, error) {
	if len(v.ctrl) == 0 {
		return ctrlFrame{}, v.errf(api.CodeUnexpectedEOF, "end without matching block")
	}
	frame := v.ctrl[len(v.ctrl)-1]
	if err := v.popExpects(frame.results); err != nil {
		return ctrlFrame{}, err
	}
	if len(v.stack) != frame.height {
		return ctrlFrame{}, v.errf(api.CodeTypeMismatch, "%d values left on stack at end of block", len(v.stack)-frame.height)
	}
	v.ctrl = v.ctrl[:len(v.ctrl)-1]
	return frame, nil
}

// setUnreachable marks the current frame's remainder dead, resetting the
// stack to the frame's entry height per the validation algorithm.
func (v *funcValidator) setUnreachable() {
	frame := &v.ctrl[len(v.ctrl)-1]
	v.stack = v.stack[:frame.height]
	frame.unreachable = true
}

// labelTypes is the value sequence a br targeting the frame carries: the
// frame's results for block/if/else, nothing for loop (its parameter list,
// which block signatures with parameters being unsupported pins to empty).
func (v *funcValidator) labelTypes(frame *ctrlFrame) []api.ValueType {
	if frame.opcode == 0x03 {
		return nil
	}
	return frame.results
}

func (v *funcValidator) frameAt(depth uint32) (*ctrlFrame, error) {
	if uint64(depth) >= uint64(len(v.ctrl)) {
		return nil, v.errf(api.CodeIndexOutOfRange, "branch depth %d exceeds block nesting %d", depth, len(v.ctrl))
	}
	return &v.ctrl[len(v.ctrl)-1-int(depth)], nil
}

// readBlockResults decodes a block-type immediate into its result list.
// Type-section signatures are allowed only when they declare no parameters,
// matching what the engine's compiler accepts.
func (v *funcValidator) readBlockResults() ([]api.ValueType, error) {
	b, err := v.d.readByte()
	if err != nil {
		return nil, err
	}
	switch api.ValueType(b) {
	case 0x40:
		return nil, nil
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64,
		api.ValueTypeV128, api.ValueTypeFuncref, api.ValueTypeExternref:
		return []api.ValueType{api.ValueType(b)}, nil
	}
	v.d.pos--
	idx, n, err := leb128.LoadInt64(v.d.buf[v.d.pos:])
	if err != nil {
		return nil, err
	}
	v.d.pos += int(n)
	if idx < 0 || idx >= int64(len(v.m.TypeSection)) {
		return nil, v.errf(api.CodeIndexOutOfRange, "block type index %d out of range", idx)
	}
	ft := v.m.TypeSection[idx]
	if len(ft.Params) != 0 {
		return nil, v.errf(api.CodeTypeMismatch, "block signatures with parameters are not supported")
	}
	return ft.Results, nil
}

func (v *funcValidator) globalType(idx uint32) (wasm.GlobalType, error) {
	var i uint32
	for _, imp := range v.m.ImportSection {
		if imp.Kind != wasm.ImportKindGlobal {
			continue
		}
		if i == idx {
			return imp.DescGlobalType, nil
		}
		i++
	}
	local := idx - i
	if int(local) >= len(v.m.GlobalSection) {
		return wasm.GlobalType{}, v.errf(api.CodeIndexOutOfRange, "global index %d out of range", idx)
	}
	return v.m.GlobalSection[local].Type, nil
}

func (v *funcValidator) tableType(idx uint32) (wasm.Table, error) {
	var i uint32
	for _, imp := range v.m.ImportSection {
		if imp.Kind != wasm.ImportKindTable {
			continue
		}
		if i == idx {
			return imp.DescTable, nil
		}
		i++
	}
	local := idx - i
	if int(local) >= len(v.m.TableSection) {
		return wasm.Table{}, v.errf(api.CodeIndexOutOfRange, "table index %d out of range", idx)
	}
	return v.m.TableSection[local], nil
}

func (v *funcValidator) requireMemory() error {
	if v.memCount == 0 {
		return v.errf(api.CodeIndexOutOfRange, "instruction requires a memory but the module declares none")
	}
	return nil
}

// run walks the body until its outermost end, simulating types. Returning
// nil means the engine may execute this body without runtime type checks.
func (v *funcValidator) run() error {
	for {
		if len(v.ctrl) == 0 {
			if !v.d.eof() {
				return v.errf(api.CodeSectionOverflow, "%d trailing bytes after function end", len(v.d.buf)-v.d.pos)
			}
			return nil
		}
		if v.d.eof() {
			return v.errf(api.CodeUnexpectedEOF, "function body ends inside a block")
		}
		v.instructions++
		if v.instructions > maxInstructionsPerFunction {
			return v.errf(api.CodeCapacityExceeded, "body exceeds %d instructions", maxInstructionsPerFunction)
		}
		op, err := v.d.readByte()
		if err != nil {
			return err
		}
		if err := v.step(op); err != nil {
			return err
		}
	}
}

func (v *funcValidator) step(op byte) error {
	switch op {
	case 0x00: // unreachable
		v.setUnreachable()
	case 0x01: // nop

	case 0x02, 0x03: // block, loop
		results, err := v.readBlockResults()
		if err != nil {
			return err
		}
		v.pushCtrl(op, results)

	case 0x04: // if
		results, err := v.readBlockResults()
		if err != nil {
			return err
		}
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		v.pushCtrl(op, results)

	case 0x05: // else
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		if frame.opcode != 0x04 {
			return v.errf(api.CodeTypeMismatch, "else without matching if")
		}
		v.pushCtrl(0x05, frame.results)

	case 0x0b: // end
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		if frame.opcode == 0x04 && len(frame.results) != 0 {
			return v.errf(api.CodeTypeMismatch, "if with results requires an else branch")
		}
		v.pushVals(frame.results)

	case 0x0c: // br
		depth, err := v.d.readU32()
		if err != nil {
			return err
		}
		frame, err := v.frameAt(depth)
		if err != nil {
			return err
		}
		if err := v.popExpects(v.labelTypes(frame)); err != nil {
			return err
		}
		v.setUnreachable()

	case 0x0d: // br_if
		depth, err := v.d.readU32()
		if err != nil {
			return err
		}
		frame, err := v.frameAt(depth)
		if err != nil {
			return err
		}
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		lt := v.labelTypes(frame)
		if err := v.popExpects(lt); err != nil {
			return err
		}
		v.pushVals(lt)

	case 0x0e: // br_table
		return v.stepBrTable()

	case 0x0f: // return
		if err := v.popExpects(v.ctrl[0].results); err != nil {
			return err
		}
		v.setUnreachable()

	case 0x10: // call
		idx, err := v.d.readU32()
		if err != nil {
			return err
		}
		ft, ok := v.m.TypeOfFunction(idx)
		if !ok {
			return v.errf(api.CodeIndexOutOfRange, "call references out-of-range function %d", idx)
		}
		if err := v.popExpects(ft.Params); err != nil {
			return err
		}
		v.pushVals(ft.Results)

	case 0x11: // call_indirect
		typeIdx, err := v.d.readU32()
		if err != nil {
			return err
		}
		tableIdx, err := v.d.readU32()
		if err != nil {
			return err
		}
		if int(typeIdx) >= len(v.m.TypeSection) {
			return v.errf(api.CodeIndexOutOfRange, "call_indirect references out-of-range type %d", typeIdx)
		}
		tbl, err := v.tableType(tableIdx)
		if err != nil {
			return err
		}
		if tbl.RefType != api.ValueTypeFuncref {
			return v.errf(api.CodeTypeMismatch, "call_indirect requires a funcref table")
		}
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		ft := v.m.TypeSection[typeIdx]
		if err := v.popExpects(ft.Params); err != nil {
			return err
		}
		v.pushVals(ft.Results)

	case 0x1a: // drop
		_, err := v.popVal()
		return err

	case 0x1b: // select
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		t1, err := v.popVal()
		if err != nil {
			return err
		}
		t2, err := v.popVal()
		if err != nil {
			return err
		}
		if t1 != t2 && t1 != anyType && t2 != anyType {
			return v.errf(api.CodeTypeMismatch, "select operands differ: %s vs %s", t1, t2)
		}
		if t1 == api.ValueTypeFuncref || t1 == api.ValueTypeExternref {
			return v.errf(api.CodeTypeMismatch, "untyped select cannot operate on reference types")
		}
		if t1 == anyType {
			v.pushVal(t2)
		} else {
			v.pushVal(t1)
		}

	case 0x20: // local.get
		t, err := v.localType()
		if err != nil {
			return err
		}
		v.pushVal(t)
	case 0x21: // local.set
		t, err := v.localType()
		if err != nil {
			return err
		}
		return v.popExpect(t)
	case 0x22: // local.tee
		t, err := v.localType()
		if err != nil {
			return err
		}
		if err := v.popExpect(t); err != nil {
			return err
		}
		v.pushVal(t)

	case 0x23: // global.get
		idx, err := v.d.readU32()
		if err != nil {
			return err
		}
		gt, err := v.globalType(idx)
		if err != nil {
			return err
		}
		v.pushVal(gt.ValType)
	case 0x24: // global.set
		idx, err := v.d.readU32()
		if err != nil {
			return err
		}
		gt, err := v.globalType(idx)
		if err != nil {
			return err
		}
		if !gt.Mutable {
			return v.errf(api.CodeImmutableGlobal, "global.set targets immutable global %d", idx)
		}
		return v.popExpect(gt.ValType)

	case 0x25: // table.get
		tbl, err := v.readTableType()
		if err != nil {
			return err
		}
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		v.pushVal(tbl.RefType)
	case 0x26: // table.set
		tbl, err := v.readTableType()
		if err != nil {
			return err
		}
		if err := v.popExpect(tbl.RefType); err != nil {
			return err
		}
		return v.popExpect(api.ValueTypeI32)

	case 0x3f: // memory.size
		if _, err := v.d.readU32(); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
		v.pushVal(api.ValueTypeI32)
	case 0x40: // memory.grow
		if _, err := v.d.readU32(); err != nil {
			return err
		}
		if err := v.requireMemory(); err != nil {
			return err
		}
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		v.pushVal(api.ValueTypeI32)

	case 0x41: // i32.const
		if _, err := v.d.readI32(); err != nil {
			return err
		}
		v.pushVal(api.ValueTypeI32)
	case 0x42: // i64.const
		if _, err := v.d.readI64(); err != nil {
			return err
		}
		v.pushVal(api.ValueTypeI64)
	case 0x43: // f32.const
		if _, err := v.d.readF32(); err != nil {
			return err
		}
		v.pushVal(api.ValueTypeF32)
	case 0x44: // f64.const
		if _, err := v.d.readF64(); err != nil {
			return err
		}
		v.pushVal(api.ValueTypeF64)

	case 0xd0: // ref.null
		b, err := v.d.readByte()
		if err != nil {
			return err
		}
		rt := api.ValueType(b)
		if rt != api.ValueTypeFuncref && rt != api.ValueTypeExternref {
			return v.errf(api.CodeTypeMismatch, "ref.null heap type 0x%02x", b)
		}
		v.pushVal(rt)
	case 0xd1: // ref.is_null
		t, err := v.popVal()
		if err != nil {
			return err
		}
		if t != api.ValueTypeFuncref && t != api.ValueTypeExternref && t != anyType {
			return v.errf(api.CodeTypeMismatch, "ref.is_null on non-reference %s", t)
		}
		v.pushVal(api.ValueTypeI32)
	case 0xd2: // ref.func
		idx, err := v.d.readU32()
		if err != nil {
			return err
		}
		if idx >= v.funcCount {
			return v.errf(api.CodeIndexOutOfRange, "ref.func references out-of-range function %d", idx)
		}
		v.pushVal(api.ValueTypeFuncref)

	case 0xfc:
		return v.stepMisc()
	case 0xfd:
		return v.stepVec()

	default:
		return v.stepFixedArity(op)
	}
	return nil
}

func (v *funcValidator) localType() (api.ValueType, error) {
	idx, err := v.d.readU32()
	if err != nil {
		return 0, err
	}
	if int(idx) >= len(v.locals) {
		return 0, v.errf(api.CodeIndexOutOfRange, "local index %d out of range (%d declared)", idx, len(v.locals))
	}
	return v.locals[idx], nil
}

func (v *funcValidator) readTableType() (wasm.Table, error) {
	idx, err := v.d.readU32()
	if err != nil {
		return wasm.Table{}, err
	}
	return v.tableType(idx)
}

func (v *funcValidator) stepBrTable() error {
	n, err := v.d.readU32()
	if err != nil {
		return err
	}
	// Each target is at least one byte; a count beyond the remaining body
	// cannot be honest, and pre-allocating for it would be an unbounded
	// attacker-controlled allocation.
	if uint64(n) > uint64(len(v.d.buf)-v.d.pos) {
		return v.errf(api.CodeUnexpectedEOF, "br_table target count %d exceeds body size", n)
	}
	targets := make([]uint32, 0, n)
	for i := uint32(0); i <= n; i++ {
		t, err := v.d.readU32()
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}
	if err := v.popExpect(api.ValueTypeI32); err != nil {
		return err
	}
	def, err := v.frameAt(targets[len(targets)-1])
	if err != nil {
		return err
	}
	want := v.labelTypes(def)
	for _, depth := range targets[:len(targets)-1] {
		frame, err := v.frameAt(depth)
		if err != nil {
			return err
		}
		got := v.labelTypes(frame)
		if len(got) != len(want) {
			return v.errf(api.CodeTypeMismatch, "br_table targets disagree on arity")
		}
		for i := range got {
			if got[i] != want[i] {
				return v.errf(api.CodeTypeMismatch, "br_table targets disagree on types")
			}
		}
	}
	if err := v.popExpects(want); err != nil {
		return err
	}
	v.setUnreachable()
	return nil
}

// memargAndMemory consumes a load/store's align+offset immediates and
// checks a memory exists.
func (v *funcValidator) memargAndMemory() error {
	if _, err := v.d.readU32(); err != nil {
		return err
	}
	if _, err := v.d.readU32(); err != nil {
		return err
	}
	return v.requireMemory()
}

// stepFixedArity covers the dense single-byte opcode ranges whose typing is
// a pure pop/push signature: loads/stores (0x28-0x3e) and the numeric
// instructions (0x45-0xc4).
func (v *funcValidator) stepFixedArity(op byte) error {
	switch {
	case op >= 0x28 && op <= 0x35: // loads
		if err := v.memargAndMemory(); err != nil {
			return err
		}
		if err := v.popExpect(api.ValueTypeI32); err != nil {
			return err
		}
		v.pushVal(loadResultType(op))
		return nil
	case op >= 0x36 && op <= 0x3e: // stores
		if err := v.memargAndMemory(); err != nil {
			return err
		}
		if err := v.popExpect(storeOperandType(op)); err != nil {
			return err
		}
		return v.popExpect(api.ValueTypeI32)
	}

	sig, ok := numericSignature(op)
	if !ok {
		return v.errf(api.CodeUnreachable, "unsupported opcode 0x%02x", op)
	}
	if err := v.popExpects(sig.in); err != nil {
		return err
	}
	v.pushVal(sig.out)
	return nil
}

func loadResultType(op byte) api.ValueType {
	switch op {
	case 0x28, 0x2c, 0x2d, 0x2e, 0x2f:
		return api.ValueTypeI32
	case 0x29, 0x30, 0x31, 0x32, 0x33, 0x34, 0x35:
		return api.ValueTypeI64
	case 0x2a:
		return api.ValueTypeF32
	default: // 0x2b
		return api.ValueTypeF64
	}
}

func storeOperandType(op byte) api.ValueType {
	switch op {
	case 0x36, 0x3a, 0x3b:
		return api.ValueTypeI32
	case 0x37, 0x3c, 0x3d, 0x3e:
		return api.ValueTypeI64
	case 0x38:
		return api.ValueTypeF32
	default: // 0x39
		return api.ValueTypeF64
	}
}

type opSignature struct {
	in  []api.ValueType
	out api.ValueType
}

var (
	tI32 = api.ValueTypeI32
	tI64 = api.ValueTypeI64
	tF32 = api.ValueTypeF32
	tF64 = api.ValueTypeF64
)

func sig(out api.ValueType, in ...api.ValueType) opSignature {
	return opSignature{in: in, out: out}
}

// numericSignature maps the numeric opcode space (0x45-0xc4) to its typing.
func numericSignature(op byte) (opSignature, bool) {
	switch {
	case op == 0x45: // i32.eqz
		return sig(tI32, tI32), true
	case op >= 0x46 && op <= 0x4f: // i32 comparisons
		return sig(tI32, tI32, tI32), true
	case op == 0x50: // i64.eqz
		return sig(tI32, tI64), true
	case op >= 0x51 && op <= 0x5a: // i64 comparisons
		return sig(tI32, tI64, tI64), true
	case op >= 0x5b && op <= 0x60: // f32 comparisons
		return sig(tI32, tF32, tF32), true
	case op >= 0x61 && op <= 0x66: // f64 comparisons
		return sig(tI32, tF64, tF64), true
	case op >= 0x67 && op <= 0x69: // i32 clz/ctz/popcnt
		return sig(tI32, tI32), true
	case op >= 0x6a && op <= 0x78: // i32 arithmetic
		return sig(tI32, tI32, tI32), true
	case op >= 0x79 && op <= 0x7b: // i64 clz/ctz/popcnt
		return sig(tI64, tI64), true
	case op >= 0x7c && op <= 0x8a: // i64 arithmetic
		return sig(tI64, tI64, tI64), true
	case op >= 0x8b && op <= 0x91: // f32 unary
		return sig(tF32, tF32), true
	case op >= 0x92 && op <= 0x98: // f32 binary
		return sig(tF32, tF32, tF32), true
	case op >= 0x99 && op <= 0x9f: // f64 unary
		return sig(tF64, tF64), true
	case op >= 0xa0 && op <= 0xa6: // f64 binary
		return sig(tF64, tF64, tF64), true
	}

	switch op {
	case 0xa7: // i32.wrap_i64
		return sig(tI32, tI64), true
	case 0xa8, 0xa9: // i32.trunc_f32
		return sig(tI32, tF32), true
	case 0xaa, 0xab: // i32.trunc_f64
		return sig(tI32, tF64), true
	case 0xac, 0xad: // i64.extend_i32
		return sig(tI64, tI32), true
	case 0xae, 0xaf: // i64.trunc_f32
		return sig(tI64, tF32), true
	case 0xb0, 0xb1: // i64.trunc_f64
		return sig(tI64, tF64), true
	case 0xb2, 0xb3: // f32.convert_i32
		return sig(tF32, tI32), true
	case 0xb4, 0xb5: // f32.convert_i64
		return sig(tF32, tI64), true
	case 0xb6: // f32.demote_f64
		return sig(tF32, tF64), true
	case 0xb7, 0xb8: // f64.convert_i32
		return sig(tF64, tI32), true
	case 0xb9, 0xba: // f64.convert_i64
		return sig(tF64, tI64), true
	case 0xbb: // f64.promote_f32
		return sig(tF64, tF32), true
	case 0xbc: // i32.reinterpret_f32
		return sig(tI32, tF32), true
	case 0xbd: // i64.reinterpret_f64
		return sig(tI64, tF64), true
	case 0xbe: // f32.reinterpret_i32
		return sig(tF32, tI32), true
	case 0xbf: // f64.reinterpret_i64
		return sig(tF64, tI64), true
	case 0xc0, 0xc1: // i32.extend8_s/extend16_s
		return sig(tI32, tI32), true
	case 0xc2, 0xc3, 0xc4: // i64.extend8_s/extend16_s/extend32_s
		return sig(tI64, tI64), true
	}
	return opSignature{}, false
}
