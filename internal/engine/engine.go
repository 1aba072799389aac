// Package engine is the stackless, fuel-metered execution engine: it walks a
// decoded function body one instruction at a time using an explicit operand
// stack and an explicit frame stack, never the Go call stack, so a guest
// call depth of thousands never grows host stack usage past O(1). Execution
// pauses when its fuel counter reaches zero and resumes exactly where it
// left off on the next Run call — there is no recursion to unwind or
// re-enter.
package engine

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/trap"
	"github.com/avrabe/wrt/internal/wasm"
)

// State is the Interpreter's run state.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateFinished
	StateTrapped
)

// Limits bounds the interpreter's own data structures — all sized once at
// construction, never grown afterward.
type Limits struct {
	MaxOperandStack uint
	MaxCallDepth    uint
	MaxLabelsPerFrame uint
}

// DefaultLimits are generous enough for realistic guest code while still
// bounding worst-case memory use deterministically.
var DefaultLimits = Limits{
	MaxOperandStack:   4096,
	MaxCallDepth:      512,
	MaxLabelsPerFrame: 256,
}

// Interpreter drives execution of a single wasm.Instance. It is not safe for
// concurrent use — the async executor (internal/async) serializes access to
// any Interpreter it steps.
type Interpreter struct {
	inst   *wasm.Instance
	limits Limits

	// compiled holds each local function's pre-decoded Instruction stream,
	// indexed the same way inst.Functions is. It is populated once, at
	// construction, and never touched again by the dispatch loop: no raw
	// bytecode is re-parsed at execution time.
	compiled [][]Instruction

	operand *substrate.BoundedStack[api.Value]
	frames  *substrate.BoundedStack[*Frame]

	state State
	trap  *trap.Trap
	results []api.Value

	// instructions counts every dispatched instruction across the
	// interpreter's lifetime, for ExecutionStats and fuel accounting
	// checks (one unit of fuel buys exactly one instruction).
	instructions uint64
}

// NewInterpreter prepares an Interpreter over inst using limits for its own
// bookkeeping structures, compiling every local (non-host) function's body
// up front so Run never decodes an instruction's immediates more than once.
func NewInterpreter(inst *wasm.Instance, limits Limits) *Interpreter {
	compiled := make([][]Instruction, len(inst.Functions))
	for i := range inst.Functions {
		fn := &inst.Functions[i]
		if fn.Host != nil || fn.Body == nil {
			continue
		}
		instrs, err := compile(fn.Body.Body, inst.Module.TypeSection)
		if err != nil {
			// A module that reached instantiation already passed the
			// decoder's validation gate; a compile failure here is
			// a decoder/validator bug, not an input the engine recovers
			// from. Leave this function's slot empty — calling it traps
			// as an unresolvable function rather than panicking.
			continue
		}
		compiled[i] = instrs
	}
	return &Interpreter{
		inst:     inst,
		limits:   limits,
		compiled: compiled,
		operand:  substrate.NewBoundedStack[api.Value](limits.MaxOperandStack),
		frames:   substrate.NewBoundedStack[*Frame](limits.MaxCallDepth),
		state:    StateRunning,
	}
}

// State returns the interpreter's current run state.
func (it *Interpreter) State() State { return it.state }

// Instance returns the wasm.Instance this interpreter is driving.
func (it *Interpreter) Instance() *wasm.Instance { return it.inst }

// Trap returns the trap record that stopped execution, or nil if the
// interpreter never trapped.
func (it *Interpreter) Trap() *trap.Trap { return it.trap }

// Results returns the top-level call's return values once State is
// StateFinished.
func (it *Interpreter) Results() []api.Value { return it.results }

// Instructions returns how many instructions the interpreter has dispatched
// since construction.
func (it *Interpreter) Instructions() uint64 { return it.instructions }

// Reset unwinds any in-flight call — frame stack, operand stack, trap
// record, and pending results — in one step, leaving the interpreter ready
// for a fresh StartCall. Instance state (memory, tables, globals) is
// untouched: cancellation frees only per-run state.
func (it *Interpreter) Reset() {
	it.frames.Truncate(0)
	it.operand.Truncate(0)
	it.trap = nil
	it.results = nil
	it.state = StateRunning
}

// StartCall begins invoking the function at funcIdx with args, replacing any
// prior call state. Call Run afterward to actually execute it.
func (it *Interpreter) StartCall(funcIdx Index, args []api.Value) error {
	if int(funcIdx) >= len(it.inst.Functions) {
		return api.NewError(api.ErrorCategorySystem, api.CodeUnknownInstance, "unknown function index %d", funcIdx)
	}
	it.frames.Truncate(0)
	it.operand.Truncate(0)
	it.state = StateRunning
	it.trap = nil
	it.results = nil
	fn := &it.inst.Functions[funcIdx]
	if fn.Host != nil {
		results, err := fn.Host(args)
		if err != nil {
			it.state = StateTrapped
			it.trap = trap.New(trap.KindUnreachable, "%v", err)
			return nil
		}
		it.state = StateFinished
		it.results = results
		return nil
	}
	frame := newFrame(funcIdx, fn, it.compiled[funcIdx], args, it.limits.MaxLabelsPerFrame)
	if err := it.frames.Push(frame); err != nil {
		it.state = StateTrapped
		it.trap = trap.New(trap.KindCallStackExhausted, "call stack exhausted")
		return nil
	}
	return nil
}

// Run executes instructions until fuel is exhausted (State becomes
// StatePaused), the call completes (StateFinished), or a trap fires
// (StateTrapped). A nil fuel runs unmetered; otherwise fuel is decremented
// in place so the caller can observe how much remains. Calling Run again
// after StatePaused resumes exactly where execution left off.
func (it *Interpreter) Run(fuel *uint64) error {
	if it.state == StatePaused {
		it.state = StateRunning
	}
	if it.state != StateRunning {
		return nil
	}
	for {
		if fuel != nil && *fuel == 0 {
			it.state = StatePaused
			return nil
		}
		fr, ok := it.frames.Peek()
		if !ok {
			it.state = StateFinished
			return nil
		}
		if fr.PC >= len(fr.Body) {
			if it.unwindFrame(fr) {
				return nil
			}
			continue
		}
		if fuel != nil {
			*fuel--
		}
		it.instructions++
		trapped, err := it.step(fr)
		if err != nil {
			return err
		}
		if trapped != nil {
			// Traps unwind the frame and operand stacks atomically; only
			// the trap record (with its call-stack snapshot) survives for
			// the host to inspect.
			trapped.WithTrace(it.captureTrace())
			it.frames.Truncate(0)
			it.operand.Truncate(0)
			it.state = StateTrapped
			it.trap = trapped
			return nil
		}
		if it.state != StateRunning {
			return nil
		}
	}
}

// captureTrace snapshots the live call stack, outermost first, resolving
// function names from the module's name section when one was decoded.
func (it *Interpreter) captureTrace() []trap.Frame {
	frames := it.frames.Slice()
	out := make([]trap.Frame, 0, len(frames))
	ns := it.inst.Module.NameSection
	for _, fr := range frames {
		f := trap.Frame{FunctionIndex: uint32(fr.FuncIndex), InstrOffset: uint32(fr.PC)}
		if ns != nil {
			f.FunctionName = ns.FunctionNames[fr.FuncIndex]
		}
		out = append(out, f)
	}
	return out
}

// unwindFrame pops fr (which just fell off the end of its body), moving its
// top ResultArity operand values down to its caller. It reports true when
// that was the outermost frame (execution finished).
func (it *Interpreter) unwindFrame(fr *Frame) bool {
	it.frames.Pop()
	results := it.popN(fr.ResultArity)
	it.truncateOperandTo(fr.StackBase)
	for _, v := range results {
		_ = it.operand.Push(v)
	}
	if it.frames.Len() == 0 {
		it.state = StateFinished
		it.results = results
		return true
	}
	return false
}

func (it *Interpreter) popN(n int) []api.Value {
	out := make([]api.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, _ := it.operand.Pop()
		out[i] = v
	}
	return out
}

func (it *Interpreter) truncateOperandTo(base int) {
	it.operand.Truncate(base)
}

func (it *Interpreter) operandDepth() int { return it.operand.Len() }
