package wrt

import (
	"time"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/async"
	"github.com/avrabe/wrt/internal/engine"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/wasm"
)

// RunState mirrors internal/engine.State without exposing that package's
// type through the public API surface.
type RunState int

const (
	RunRunning RunState = iota
	RunPaused
	RunFinished
	RunTrapped
)

func fromEngineState(s engine.State) RunState {
	switch s {
	case engine.StatePaused:
		return RunPaused
	case engine.StateFinished:
		return RunFinished
	case engine.StateTrapped:
		return RunTrapped
	default:
		return RunRunning
	}
}

// InvokeResult reports what one Invoke/Step call against a ComponentId
// produced.
type InvokeResult struct {
	State   RunState
	Values  []api.Value
	TrapMsg string
}

func (rt *Runtime) lookup(id ComponentId) (*component, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c, ok := rt.components[id]
	if !ok {
		return nil, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown component %d", id)
	}
	return c, nil
}

func exportedFunc(comp *component, name string) (wasm.Index, error) {
	exp, ok := comp.interp.Instance().Exports[name]
	if !ok || exp.Kind != wasm.ImportKindFunc {
		return 0, api.NewError(api.ErrorCategoryValidation, api.CodeIndexOutOfRange, "no exported function named %q", name)
	}
	return exp.Index, nil
}

// Invoke starts a call to component id's exported function name with args,
// running it to completion, a trap, or a fuel pause (whichever comes first).
// A caller that gets back RunPaused should call Step with more fuel to
// continue; the interceptor chain registered for id (if any) wraps the
// call.
func (rt *Runtime) Invoke(id ComponentId, name string, args []api.Value, fuel *uint64) (InvokeResult, error) {
	comp, err := rt.lookup(id)
	if err != nil {
		return InvokeResult{}, err
	}
	idx, err := exportedFunc(comp, name)
	if err != nil {
		return InvokeResult{}, err
	}
	if fuel == nil {
		fuel = comp.fuel
	}

	invoke := func(a []api.Value) ([]api.Value, error) {
		if err := comp.interp.StartCall(idx, a); err != nil {
			return nil, err
		}
		if err := comp.interp.Run(fuel); err != nil {
			return nil, err
		}
		return comp.interp.Results(), nil
	}

	values, err := comp.interceptor.Call(name, name, args, invoke)
	if err != nil {
		return InvokeResult{}, err
	}
	return rt.resultFor(comp, values), nil
}

// Step resumes a paused call on id (see InvokeResult.State == RunPaused)
// with additional fuel.
func (rt *Runtime) Step(id ComponentId, fuel *uint64) (InvokeResult, error) {
	comp, err := rt.lookup(id)
	if err != nil {
		return InvokeResult{}, err
	}
	if fuel == nil {
		fuel = comp.fuel
	}
	if err := comp.interp.Run(fuel); err != nil {
		return InvokeResult{}, err
	}
	return rt.resultFor(comp, comp.interp.Results()), nil
}

func (rt *Runtime) resultFor(comp *component, values []api.Value) InvokeResult {
	res := InvokeResult{State: fromEngineState(comp.interp.State()), Values: values}
	if t := comp.interp.Trap(); t != nil {
		res.TrapMsg = t.Message
	}
	return res
}

// SetFuel installs a default fuel allotment for id, consulted whenever
// Invoke or Step is called with a nil fuel pointer. nil removes metering:
// calls run to completion or trap.
func (rt *Runtime) SetFuel(id ComponentId, fuel *uint64) error {
	comp, err := rt.lookup(id)
	if err != nil {
		return err
	}
	comp.fuel = fuel
	return nil
}

// Cancel unwinds any in-flight call on id — frames and operand stack in one
// step — leaving the component's instance state (memory, tables, globals)
// intact and the engine ready for a fresh Invoke. In-flight host calls are
// not interrupted; there are none once Cancel can run, since the engine is
// single-threaded.
func (rt *Runtime) Cancel(id ComponentId) error {
	comp, err := rt.lookup(id)
	if err != nil {
		return err
	}
	comp.interp.Reset()
	return nil
}

// ExecutionStats is the per-component counterpart of Runtime.Stats.
type ExecutionStats struct {
	State        RunState
	Instructions uint64
	MemoryPages  uint32
	Tables       int
	Globals      int
}

// ComponentStats returns a point-in-time snapshot of id's execution
// counters and instance shape.
func (rt *Runtime) ComponentStats(id ComponentId) (ExecutionStats, error) {
	comp, err := rt.lookup(id)
	if err != nil {
		return ExecutionStats{}, err
	}
	inst := comp.interp.Instance()
	stats := ExecutionStats{
		State:        fromEngineState(comp.interp.State()),
		Instructions: comp.interp.Instructions(),
		Tables:       len(inst.Tables),
		Globals:      len(inst.Globals),
	}
	if inst.Memory != nil {
		stats.MemoryPages = inst.Memory.Size()
	}
	return stats, nil
}

// Interceptor returns the LinkInterceptor wired around calls into id, so
// callers can register Strategy chains before invoking.
func (rt *Runtime) Interceptor(id ComponentId) (*intercept.LinkInterceptor, error) {
	comp, err := rt.lookup(id)
	if err != nil {
		return nil, err
	}
	return comp.interceptor, nil
}

// StartAsync registers name/args as a new async execution against id,
// returning its ExecutionID. Stepping it forward is the caller's
// responsibility via Runtime.StepAsync.
func (rt *Runtime) StartAsync(id ComponentId, name string, args []api.Value) (async.ExecutionID, error) {
	if _, err := rt.lookup(id); err != nil {
		return 0, err
	}
	op := async.Operation{Kind: async.OpFunctionCall, FunctionName: name, Args: args}
	initial := async.ExecutionContext{ComponentInstance: uint32(id), FunctionName: name}
	execID, err := rt.async.StartExecutionWithContext(async.TaskID(id), op, nil, initial)
	if err != nil {
		return 0, err
	}
	return execID, nil
}

// StepAsync advances execID by one cooperative step.
func (rt *Runtime) StepAsync(execID async.ExecutionID) (async.StepResult, error) {
	return rt.async.Step(execID)
}

// CancelAsync cancels execID and, recursively, every subtask it spawned.
func (rt *Runtime) CancelAsync(execID async.ExecutionID) error {
	return rt.async.Cancel(execID)
}

// WaitAsync blocks the calling host thread until execID reaches a terminal
// state or timeout elapses (nil waits indefinitely). Some other thread must
// keep stepping the executor, or the wait can only ever time out.
func (rt *Runtime) WaitAsync(execID async.ExecutionID, timeout *time.Duration) (async.ExecutionState, error) {
	return rt.async.WaitTerminal(execID, timeout)
}

// asyncFuelQuantum bounds how much fuel a single async step grants the
// underlying interpreter before yielding control back to the scheduler,
// keeping any one execution from starving its siblings.
const asyncFuelQuantum = 10_000

// StepFunctionCall implements async.FunctionStepper, bridging the async
// scheduler to this runtime's per-component interpreters.
func (rt *Runtime) StepFunctionCall(ctx *async.ExecutionContext, name string, args []api.Value) (async.FunctionStepOutcome, error) {
	comp, err := rt.lookup(ComponentId(ctx.ComponentInstance))
	if err != nil {
		return async.FunctionStepOutcome{}, err
	}
	if comp.interp.State() != engine.StateRunning && comp.interp.State() != engine.StatePaused {
		idx, err := exportedFunc(comp, name)
		if err != nil {
			return async.FunctionStepOutcome{}, err
		}
		if err := comp.interp.StartCall(idx, args); err != nil {
			return async.FunctionStepOutcome{}, err
		}
	}
	fuel := uint64(asyncFuelQuantum)
	if err := comp.interp.Run(&fuel); err != nil {
		return async.FunctionStepOutcome{}, err
	}
	switch comp.interp.State() {
	case engine.StateFinished:
		return async.FunctionStepOutcome{Done: true, Values: comp.interp.Results()}, nil
	case engine.StateTrapped:
		return async.FunctionStepOutcome{Done: true, Trapped: true}, nil
	default:
		return async.FunctionStepOutcome{Done: false}, nil
	}
}
