package engine

import (
	"bytes"
	"encoding/binary"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/leb128"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/wasm"
)

// checkpointMagic/checkpointVersion identify the container format produced
// by EncodeSnapshot, the same way the WebAssembly binary format itself
// opens with a magic number and version (internal/wasmbinary). A mismatch
// on either means the bytes are not one of this engine's checkpoints, or
// were produced by an incompatible version of it.
var checkpointMagic = [4]byte{'W', 'R', 'T', 'K'}

const checkpointVersion = 1

// Snapshot is a Module reference plus every piece of state needed to
// resume execution bit-identically: instance state (memories, tables,
// globals), the call stack, the operand stack, and each frame's pc.
type Snapshot struct {
	ModuleID uint64

	Memory  *MemorySnapshot // nil if the instance declares no memory
	Tables  [][]int64       // one []int64 of raw refs per table, in table-index order
	Globals []GlobalSnapshot

	Frames  []FrameSnapshot // outermost (caller) first, innermost (current) last
	Operand []api.Value

	State   State
	Results []api.Value
}

// MemorySnapshot is a linear memory's page count and byte contents.
type MemorySnapshot struct {
	Pages uint32
	Bytes []byte
}

// GlobalSnapshot is a single global's raw storage.
type GlobalSnapshot struct {
	Val, ValHi uint64
}

// FrameSnapshot is one call-stack activation: its function, its locals, its
// structured-control label stack, and its pc.
type FrameSnapshot struct {
	FuncIndex   uint32
	Locals      []api.Value
	PC          int
	StackBase   int
	ResultArity int
	Labels      []LabelSnapshot
}

// LabelSnapshot is one entry of a frame's block/loop/if label stack.
type LabelSnapshot struct {
	Kind        int
	EndArity    int
	BranchArity int
	StackBase   int
	LoopStart   int
	EndPC       int
}

// Snapshot captures it's entire resumable state: the module it is running,
// its instance's memories/tables/globals, and its call/operand stacks. The
// interpreter keeps running after Snapshot returns; the result is a copy.
func (it *Interpreter) Snapshot() Snapshot {
	snap := Snapshot{
		ModuleID: it.inst.Module.ID,
		State:    it.state,
		Results:  append([]api.Value(nil), it.results...),
	}

	if it.inst.Memory != nil {
		snap.Memory = &MemorySnapshot{
			Pages: it.inst.Memory.Size(),
			Bytes: append([]byte(nil), it.inst.Memory.Bytes()...),
		}
	}

	snap.Tables = make([][]int64, len(it.inst.Tables))
	for i, t := range it.inst.Tables {
		snap.Tables[i] = append([]int64(nil), t.Refs.Slice()...)
	}

	snap.Globals = make([]GlobalSnapshot, len(it.inst.Globals))
	for i, g := range it.inst.Globals {
		snap.Globals[i] = GlobalSnapshot{Val: g.Val, ValHi: g.ValHi}
	}

	for _, fr := range it.frames.Slice() {
		fs := FrameSnapshot{
			FuncIndex:   uint32(fr.FuncIndex),
			Locals:      append([]api.Value(nil), fr.Locals...),
			PC:          fr.PC,
			StackBase:   fr.StackBase,
			ResultArity: fr.ResultArity,
		}
		for _, lbl := range fr.Labels.Slice() {
			fs.Labels = append(fs.Labels, LabelSnapshot{
				Kind: int(lbl.kind), EndArity: lbl.endArity, BranchArity: lbl.branchArity,
				StackBase: lbl.stackBase, LoopStart: lbl.loopStart, EndPC: lbl.endPC,
			})
		}
		snap.Frames = append(snap.Frames, fs)
	}

	snap.Operand = append([]api.Value(nil), it.operand.Slice()...)
	return snap
}

// NewInterpreterFromSnapshot rebuilds an Interpreter over a freshly
// instantiated inst (same Module that produced snap — the caller is
// responsible for checking snap.ModuleID against inst.Module.ID), restoring
// memory/table/global contents and the call/operand stacks so execution
// resumes exactly where Snapshot captured it.
func NewInterpreterFromSnapshot(inst *wasm.Instance, limits Limits, snap Snapshot) (*Interpreter, error) {
	it := NewInterpreter(inst, limits)

	if snap.Memory != nil && inst.Memory != nil {
		if err := inst.Memory.RestoreBytes(snap.Memory.Pages, snap.Memory.Bytes); err != nil {
			return nil, err
		}
	}
	for i, refs := range snap.Tables {
		if i >= len(inst.Tables) {
			continue
		}
		if err := inst.Tables[i].RestoreRefs(refs); err != nil {
			return nil, err
		}
	}
	for i, g := range snap.Globals {
		if i >= len(inst.Globals) {
			continue
		}
		inst.Globals[i].Val = g.Val
		inst.Globals[i].ValHi = g.ValHi
	}

	it.operand = substrate.NewBoundedStack[api.Value](limits.MaxOperandStack)
	for _, v := range snap.Operand {
		if err := it.operand.Push(v); err != nil {
			return nil, err
		}
	}

	it.frames = substrate.NewBoundedStack[*Frame](limits.MaxCallDepth)
	for _, fs := range snap.Frames {
		fr := &Frame{
			FuncIndex:   Index(fs.FuncIndex),
			Locals:      append([]api.Value(nil), fs.Locals...),
			PC:          fs.PC,
			StackBase:   fs.StackBase,
			ResultArity: fs.ResultArity,
			Labels:      substrate.NewBoundedStack[label](limits.MaxLabelsPerFrame),
		}
		if int(fs.FuncIndex) < len(it.compiled) {
			fr.Body = it.compiled[fs.FuncIndex]
		}
		for _, ls := range fs.Labels {
			if err := fr.Labels.Push(label{
				kind: labelKind(ls.Kind), endArity: ls.EndArity, branchArity: ls.BranchArity,
				stackBase: ls.StackBase, loopStart: ls.LoopStart, endPC: ls.EndPC,
			}); err != nil {
				return nil, err
			}
		}
		if err := it.frames.Push(fr); err != nil {
			return nil, err
		}
	}

	it.state = snap.State
	it.results = append([]api.Value(nil), snap.Results...)
	return it, nil
}

// EncodeSnapshot serializes snap into the engine's private checkpoint
// container: a magic/version header, the 8-byte little-endian module ID, an
// optional memory image (LEB128 page count and byte length, then the bytes),
// then LEB128-count-prefixed lists of tables, globals (16 little-endian
// bytes each) and frames, closed by an FNV-1a checksum trailer — no
// third-party codec is warranted for a format this engine both produces and
// consumes exclusively.
func EncodeSnapshot(snap Snapshot) []byte {
	var buf bytes.Buffer
	buf.Write(checkpointMagic[:])
	buf.WriteByte(checkpointVersion)

	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], snap.ModuleID)
	buf.Write(id[:])

	if snap.Memory == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		buf.Write(leb128.EncodeUint32(snap.Memory.Pages))
		buf.Write(leb128.EncodeUint32(uint32(len(snap.Memory.Bytes))))
		buf.Write(snap.Memory.Bytes)
	}

	buf.Write(leb128.EncodeUint32(uint32(len(snap.Tables))))
	for _, refs := range snap.Tables {
		buf.Write(leb128.EncodeUint32(uint32(len(refs))))
		for _, r := range refs {
			buf.Write(leb128.EncodeInt64(r))
		}
	}

	buf.Write(leb128.EncodeUint32(uint32(len(snap.Globals))))
	for _, g := range snap.Globals {
		var b [16]byte
		binary.LittleEndian.PutUint64(b[0:8], g.Val)
		binary.LittleEndian.PutUint64(b[8:16], g.ValHi)
		buf.Write(b[:])
	}

	buf.Write(leb128.EncodeUint32(uint32(len(snap.Frames))))
	for _, fs := range snap.Frames {
		buf.Write(leb128.EncodeUint32(fs.FuncIndex))
		buf.Write(leb128.EncodeUint32(uint32(fs.PC)))
		buf.Write(leb128.EncodeUint32(uint32(fs.StackBase)))
		buf.Write(leb128.EncodeUint32(uint32(fs.ResultArity)))
		encodeValues(&buf, fs.Locals)
		buf.Write(leb128.EncodeUint32(uint32(len(fs.Labels))))
		for _, ls := range fs.Labels {
			buf.Write(leb128.EncodeUint32(uint32(ls.Kind)))
			buf.Write(leb128.EncodeUint32(uint32(ls.EndArity)))
			buf.Write(leb128.EncodeUint32(uint32(ls.BranchArity)))
			buf.Write(leb128.EncodeUint32(uint32(ls.StackBase)))
			buf.Write(leb128.EncodeUint32(uint32(ls.LoopStart)))
			buf.Write(leb128.EncodeUint32(uint32(ls.EndPC)))
		}
	}

	encodeValues(&buf, snap.Operand)
	buf.Write(leb128.EncodeUint32(uint32(snap.State)))
	encodeValues(&buf, snap.Results)

	// Integrity trailer: FNV-1a over everything above, verified on load
	// per the restore-time VerificationLevel.
	cs := substrate.NewChecksum()
	cs.Write(buf.Bytes())
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], cs.Sum())
	buf.Write(sum[:])

	return buf.Bytes()
}

// DecodeSnapshot parses the container EncodeSnapshot produces, verifying
// its integrity trailer at VerificationLevelStandard.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	return DecodeSnapshotAt(raw, substrate.VerificationLevelStandard)
}

// DecodeSnapshotAt parses the container EncodeSnapshot produces. At
// VerificationLevelStandard or above, the trailing FNV-1a checksum is
// recomputed and a mismatch fails with Corruption before any field is
// trusted; below Standard the trailer is skipped without verification.
func DecodeSnapshotAt(raw []byte, level substrate.VerificationLevel) (Snapshot, error) {
	var snap Snapshot
	if len(raw) < 4 {
		return snap, errBadCheckpoint("truncated checksum trailer")
	}
	payload, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	if level >= substrate.VerificationLevelStandard {
		cs := substrate.NewChecksum()
		cs.Write(payload)
		if cs.Sum() != binary.LittleEndian.Uint32(trailer) {
			return snap, api.NewError(api.ErrorCategoryMemory, api.CodeCorruption, "checkpoint checksum mismatch")
		}
	}
	raw = payload
	if len(raw) < 5 || !bytes.Equal(raw[:4], checkpointMagic[:]) {
		return snap, errBadCheckpoint("bad magic")
	}
	if raw[4] != checkpointVersion {
		return snap, errBadCheckpoint("unsupported version")
	}
	pc := 5

	if pc+8 > len(raw) {
		return snap, errBadCheckpoint("truncated module id")
	}
	snap.ModuleID = binary.LittleEndian.Uint64(raw[pc : pc+8])
	pc += 8

	if pc >= len(raw) {
		return snap, errBadCheckpoint("truncated memory flag")
	}
	hasMem := raw[pc]
	pc++
	if hasMem != 0 {
		pages, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return snap, err
		}
		pc += int(n)
		size, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return snap, err
		}
		pc += int(n)
		if pc+int(size) > len(raw) {
			return snap, errBadCheckpoint("truncated memory bytes")
		}
		snap.Memory = &MemorySnapshot{Pages: pages, Bytes: append([]byte(nil), raw[pc:pc+int(size)]...)}
		pc += int(size)
	}

	numTables, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return snap, err
	}
	pc += int(n)
	snap.Tables = make([][]int64, numTables)
	for i := range snap.Tables {
		count, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return snap, err
		}
		pc += int(n)
		refs := make([]int64, count)
		for j := range refs {
			v, n, err := leb128.LoadInt64(raw[pc:])
			if err != nil {
				return snap, err
			}
			pc += int(n)
			refs[j] = v
		}
		snap.Tables[i] = refs
	}

	numGlobals, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return snap, err
	}
	pc += int(n)
	snap.Globals = make([]GlobalSnapshot, numGlobals)
	for i := range snap.Globals {
		if pc+16 > len(raw) {
			return snap, errBadCheckpoint("truncated global")
		}
		snap.Globals[i] = GlobalSnapshot{
			Val:   binary.LittleEndian.Uint64(raw[pc : pc+8]),
			ValHi: binary.LittleEndian.Uint64(raw[pc+8 : pc+16]),
		}
		pc += 16
	}

	numFrames, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return snap, err
	}
	pc += int(n)
	snap.Frames = make([]FrameSnapshot, numFrames)
	for i := range snap.Frames {
		var fs FrameSnapshot
		var v uint32
		if v, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
			return snap, err
		}
		fs.FuncIndex = v
		pc += int(n)
		if v, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
			return snap, err
		}
		fs.PC = int(v)
		pc += int(n)
		if v, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
			return snap, err
		}
		fs.StackBase = int(v)
		pc += int(n)
		if v, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
			return snap, err
		}
		fs.ResultArity = int(v)
		pc += int(n)

		fs.Locals, pc, err = decodeValues(raw, pc)
		if err != nil {
			return snap, err
		}

		numLabels, n, err := leb128.LoadUint32(raw[pc:])
		if err != nil {
			return snap, err
		}
		pc += int(n)
		fs.Labels = make([]LabelSnapshot, numLabels)
		for j := range fs.Labels {
			var ls LabelSnapshot
			var lv uint32
			if lv, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
				return snap, err
			}
			ls.Kind = int(lv)
			pc += int(n)
			if lv, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
				return snap, err
			}
			ls.EndArity = int(lv)
			pc += int(n)
			if lv, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
				return snap, err
			}
			ls.BranchArity = int(lv)
			pc += int(n)
			if lv, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
				return snap, err
			}
			ls.StackBase = int(lv)
			pc += int(n)
			if lv, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
				return snap, err
			}
			ls.LoopStart = int(lv)
			pc += int(n)
			if lv, n, err = leb128.LoadUint32(raw[pc:]); err != nil {
				return snap, err
			}
			ls.EndPC = int(lv)
			pc += int(n)
			fs.Labels[j] = ls
		}
		snap.Frames[i] = fs
	}

	snap.Operand, pc, err = decodeValues(raw, pc)
	if err != nil {
		return snap, err
	}

	st, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return snap, err
	}
	snap.State = State(st)
	pc += int(n)

	snap.Results, pc, err = decodeValues(raw, pc)
	if err != nil {
		return snap, err
	}
	_ = pc

	return snap, nil
}

// encodeValues writes a length-prefixed list of Values, each as its type
// byte plus 16 bytes of raw lo/hi storage (api.Value.Bits/BitsHi) — a fixed
// layout regardless of type keeps the codec free of per-type branching.
func encodeValues(buf *bytes.Buffer, values []api.Value) {
	buf.Write(leb128.EncodeUint32(uint32(len(values))))
	for _, v := range values {
		buf.WriteByte(byte(v.Type))
		var b [16]byte
		binary.LittleEndian.PutUint64(b[0:8], v.Bits())
		binary.LittleEndian.PutUint64(b[8:16], v.BitsHi())
		buf.Write(b[:])
	}
}

func decodeValues(raw []byte, pc int) ([]api.Value, int, error) {
	count, n, err := leb128.LoadUint32(raw[pc:])
	if err != nil {
		return nil, pc, err
	}
	pc += int(n)
	out := make([]api.Value, count)
	for i := range out {
		if pc+17 > len(raw) {
			return nil, pc, errBadCheckpoint("truncated value")
		}
		t := api.ValueType(raw[pc])
		pc++
		lo := binary.LittleEndian.Uint64(raw[pc : pc+8])
		hi := binary.LittleEndian.Uint64(raw[pc+8 : pc+16])
		pc += 16
		out[i] = api.ValueFromRaw(t, lo, hi)
	}
	return out, pc, nil
}

func errBadCheckpoint(reason string) error {
	return api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF, "malformed checkpoint: %s", reason)
}
