// Package async layers cooperative many-task scheduling on top of the core
// execution engine: executions, futures, streams, and wait-sets stepped in
// FIFO order at the host's direction. It is an explicit state machine with
// no hidden goroutine scheduler — every step is driven by an explicit
// Engine.Step call, so scheduling stays deterministic and inspectable.
package async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
)

// TaskID identifies a unit of guest work; ExecutionID identifies one
// invocation of that work (a task may be stepped by more than one
// execution across its lifetime, e.g. a retried subtask).
type TaskID uint64
type ExecutionID uint64

// FutureHandle and StreamHandle identify component-model futures/streams by
// opaque handle, resolved against the Engine's futures/streams tables.
type FutureHandle uint32
type StreamHandle uint32

// TaskState is a Task's coarse lifecycle state, independent of any one
// execution stepping it.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskActive
	TaskDone
)

// Task is a unit of guest work an AsyncExecution steps.
type Task struct {
	ID      TaskID
	State   TaskState
	Context string // opaque host-assigned label, carried for trace/log purposes only
}

// ExecutionState is an AsyncExecution's run state.
type ExecutionState int

const (
	ExecutionReady ExecutionState = iota
	ExecutionRunning
	ExecutionWaiting
	ExecutionSuspended
	ExecutionCompleted
	ExecutionFailed
	ExecutionCancelled
)

func (s ExecutionState) String() string {
	switch s {
	case ExecutionReady:
		return "ready"
	case ExecutionRunning:
		return "running"
	case ExecutionWaiting:
		return "waiting"
	case ExecutionSuspended:
		return "suspended"
	case ExecutionCompleted:
		return "completed"
	case ExecutionFailed:
		return "failed"
	case ExecutionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OperationKind tags which variant an Operation carries.
type OperationKind int

const (
	OpFunctionCall OperationKind = iota
	OpStreamRead
	OpStreamWrite
	OpFutureGet
	OpFutureSet
	OpWaitMultiple
	OpSpawnSubtask
)

// WaitSet names the futures and streams a WaitMultiple operation is blocked
// on; it is ready as soon as any one member is ready.
type WaitSet struct {
	Futures []FutureHandle
	Streams []StreamHandle
}

// Operation is the tagged union of async operations an execution can be
// stepped through. Exactly one field group is meaningful per Kind.
type Operation struct {
	Kind OperationKind

	// OpFunctionCall / OpSpawnSubtask
	FunctionName string
	Args         []api.Value

	// OpStreamRead / OpStreamWrite
	Stream    StreamHandle
	ReadCount uint32
	WriteData []byte

	// OpFutureGet / OpFutureSet
	Future     FutureHandle
	FutureVal  api.Value

	// OpWaitMultiple
	Wait WaitSet
}

// FrameAsyncState is the suspension state of a single CallFrame within an
// ExecutionContext's call stack. Sync means the frame is not suspended;
// everything else names exactly one of the three permitted suspension
// points.
type FrameAsyncState int

const (
	FrameSync FrameAsyncState = iota
	FrameAwaitingFuture
	FrameAwaitingStream
	FrameAwaitingMultiple
)

// CallFrame is one activation record inside an ExecutionContext's call
// stack — distinct from engine.Frame, which belongs to the core
// interpreter; this frame exists only to track async suspension across
// cooperative steps.
type CallFrame struct {
	Function     string
	ReturnPC     int
	StackPointer int
	AsyncState   FrameAsyncState
	Wait         WaitSet // valid when AsyncState == FrameAwaitingMultiple
}

// ExecutionContext carries one execution's call stack and locals across
// cooperative steps. MaxAsyncCallDepth bounds CallStack; exceeding it is
// ResourceExhausted, never a panic.
type ExecutionContext struct {
	ComponentInstance uint32
	FunctionName      string
	CallStack         []CallFrame
	Locals            []api.Value
}

// MaxAsyncCallDepth bounds an ExecutionContext's call stack.
const MaxAsyncCallDepth = 128

// Result is what an execution produced when it reached ExecutionCompleted.
type Result struct {
	Values               []api.Value
	InstructionsExecuted uint64
}

// Execution is one invocation of a Task: its state, its suspendable
// context, the operation it is stepping through, and its place in the
// parent/child subtask tree.
type Execution struct {
	ID        ExecutionID
	TaskID    TaskID
	State     ExecutionState
	Context   ExecutionContext
	Operation Operation
	Result    *Result
	Parent    *ExecutionID
	Children  []ExecutionID
}

// StepResult reports what Engine.Step observed this call.
type StepResult int

const (
	StepContinue StepResult = iota
	StepWaiting
	StepSuspended
	StepCompleted
	StepFailed
	StepCancelled
)

// FunctionStepper runs the core-engine side of an OpFunctionCall /
// OpSpawnSubtask operation: the underlying engine runs until it traps,
// returns, pauses on fuel, or reaches an explicit await point. The async
// package depends only on this interface, not on internal/engine directly,
// so the Runtime wires a concrete adapter at construction.
type FunctionStepper interface {
	StepFunctionCall(ctx *ExecutionContext, name string, args []api.Value) (FunctionStepOutcome, error)
}

// FunctionStepOutcome is what one core-engine step produced.
type FunctionStepOutcome struct {
	Done    bool // true if the call returned or trapped
	Trapped bool
	Values  []api.Value
	// AwaitFuture/AwaitStream/AwaitMultiple, when non-nil, name the
	// suspension point the call hit instead of completing.
	AwaitFuture  *FutureHandle
	AwaitStream  *StreamHandle
	AwaitWait    *WaitSet
	Instructions uint64
}

// Future is a component-model future's runtime state: not-ready until
// FutureSet resolves it, after which Get returns the stored value.
type Future struct {
	ready bool
	value api.Value
}

// Stream is a component-model stream's runtime state: a FIFO byte buffer
// plus a closed flag (a read of a closed, empty stream completes with an
// empty Result rather than waiting forever).
type Stream struct {
	buf    []byte
	closed bool
}

// Stats is a bundle of scheduler counters: informational only, never used
// for control flow.
type Stats struct {
	ExecutionsStarted   uint64
	ExecutionsCompleted uint64
	ExecutionsFailed    uint64
	ExecutionsCancelled uint64
	SubtasksSpawned     uint64
	AsyncOperations     uint64
}

// MaxConcurrentExecutions bounds how many executions an Engine holds live
// at once; exceeding it is ResourceExhausted.
const MaxConcurrentExecutions = 64

// Engine is the single-threaded, cooperative async scheduler: it owns every
// Execution, steps them in FIFO order at the host's direction, and never
// preempts mid-instruction. Nothing here spawns a background goroutine —
// concurrency only appears inside Cancel, which fans children out with
// errgroup and waits for all of them before returning, keeping cancellation
// synchronous.
type Engine struct {
	mu         sync.Mutex
	stepper    FunctionStepper
	executions map[ExecutionID]*Execution
	order      []ExecutionID // FIFO stepping order
	nextID     uint64
	sem        *semaphore.Weighted
	futures    map[FutureHandle]*Future
	streams    map[StreamHandle]*Stream
	nextHandle uint32
	stats      Stats

	// futex and doneWord back WaitTerminal: doneWord counts terminal
	// transitions, and every one wakes blocked waiters.
	futex    substrate.FutexLike
	doneWord uint32
}

// NewEngine creates an Engine that delegates OpFunctionCall/OpSpawnSubtask
// stepping to stepper, gated at maxConcurrent simultaneous live executions
// (0 selects MaxConcurrentExecutions).
func NewEngine(stepper FunctionStepper, maxConcurrent int64) *Engine {
	if maxConcurrent <= 0 {
		maxConcurrent = MaxConcurrentExecutions
	}
	return &Engine{
		stepper:    stepper,
		executions: make(map[ExecutionID]*Execution),
		sem:        semaphore.NewWeighted(maxConcurrent),
		futures:    make(map[FutureHandle]*Future),
		streams:    make(map[StreamHandle]*Stream),
		nextHandle: 1,
		futex:      substrate.NewSpinFutex(0),
	}
}

// signalTerminal records one execution reaching a terminal state and wakes
// any WaitTerminal callers.
func (e *Engine) signalTerminal() {
	atomic.AddUint32(&e.doneWord, 1)
	_ = e.futex.Wake(&e.doneWord, ^uint32(0))
}

// WaitTerminal blocks the calling host thread until id reaches a terminal
// state (completed, failed, or cancelled) or timeout elapses — the one
// blocking operation the async executor offers, built on the substrate's
// FutexLike contract (spurious wakeups are legal and simply re-check).
// It must not be called from the thread that steps the engine: nothing
// would ever drive id forward.
func (e *Engine) WaitTerminal(id ExecutionID, timeout *time.Duration) (ExecutionState, error) {
	var deadline time.Time
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}
	for {
		seen := atomic.LoadUint32(&e.doneWord)
		ex, ok := e.Get(id)
		if !ok {
			return ExecutionFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown execution %d", id)
		}
		switch ex.State {
		case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
			return ex.State, nil
		}
		var remaining *time.Duration
		if timeout != nil {
			d := time.Until(deadline)
			if d <= 0 {
				return ex.State, substrate.ErrTimedOut
			}
			remaining = &d
		}
		if err := e.futex.Wait(&e.doneWord, seen, remaining); err != nil {
			if ex, ok := e.Get(id); ok {
				switch ex.State {
				case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
					return ex.State, nil
				}
			}
			return ExecutionRunning, err
		}
	}
}

// Stats returns a snapshot of the engine's running counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// NewFuture allocates a not-ready future and returns its handle.
func (e *Engine) NewFuture() FutureHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := FutureHandle(e.nextHandle)
	e.nextHandle++
	e.futures[h] = &Future{}
	return h
}

// NewStream allocates an empty, open stream and returns its handle.
func (e *Engine) NewStream() StreamHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := StreamHandle(e.nextHandle)
	e.nextHandle++
	e.streams[h] = &Stream{}
	return h
}

// StartExecution registers a new Execution for task running operation,
// optionally parented under parent (for subtasks spawned mid-execution).
// It fails with ResourceExhausted if MaxConcurrentExecutions live
// executions already exist.
func (e *Engine) StartExecution(task TaskID, operation Operation, parent *ExecutionID) (ExecutionID, error) {
	return e.StartExecutionWithContext(task, operation, parent, ExecutionContext{})
}

// StartExecutionWithContext is StartExecution, but lets the caller seed the
// new execution's ExecutionContext (e.g. ComponentInstance) before any Step
// runs against it.
func (e *Engine) StartExecutionWithContext(task TaskID, operation Operation, parent *ExecutionID, initial ExecutionContext) (ExecutionID, error) {
	if !e.sem.TryAcquire(1) {
		return 0, api.NewError(api.ErrorCategoryResource, api.CodeResourceExhausted, "too many concurrent executions")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := ExecutionID(e.nextID)
	ex := &Execution{
		ID:        id,
		TaskID:    task,
		State:     ExecutionReady,
		Context:   initial,
		Operation: operation,
		Parent:    parent,
	}
	e.executions[id] = ex
	e.order = append(e.order, id)
	e.stats.ExecutionsStarted++

	if parent != nil {
		if pe, ok := e.executions[*parent]; ok {
			pe.Children = append(pe.Children, id)
		}
	}
	return id, nil
}

// Step advances execution id by one async step: for an OpFunctionCall this
// runs the core engine until it traps, returns, pauses, or awaits; for the
// other operation kinds it checks whether the named future/stream/wait-set
// is ready and either completes or stays ExecutionWaiting — the only
// suspension points are a FutureGet, StreamRead, or WaitMultiple with
// nothing ready.
func (e *Engine) Step(id ExecutionID) (StepResult, error) {
	e.mu.Lock()
	ex, ok := e.executions[id]
	if !ok {
		e.mu.Unlock()
		return StepFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown execution %d", id)
	}
	switch ex.State {
	case ExecutionCompleted:
		e.mu.Unlock()
		return StepCompleted, nil
	case ExecutionFailed:
		e.mu.Unlock()
		return StepFailed, nil
	case ExecutionCancelled:
		e.mu.Unlock()
		return StepCancelled, nil
	}
	ex.State = ExecutionRunning
	e.mu.Unlock()

	result, err := e.runOperation(ex)
	if err != nil {
		return StepFailed, err
	}

	e.mu.Lock()
	e.stats.AsyncOperations++
	terminal := false
	switch result {
	case StepWaiting:
		ex.State = ExecutionWaiting
	case StepSuspended:
		ex.State = ExecutionSuspended
	case StepCompleted:
		ex.State = ExecutionCompleted
		e.stats.ExecutionsCompleted++
		e.sem.Release(1)
		terminal = true
	case StepFailed:
		ex.State = ExecutionFailed
		e.stats.ExecutionsFailed++
		e.sem.Release(1)
		terminal = true
	}
	e.mu.Unlock()
	if terminal {
		e.signalTerminal()
	}
	return result, nil
}

func (e *Engine) runOperation(ex *Execution) (StepResult, error) {
	switch ex.Operation.Kind {
	case OpFunctionCall, OpSpawnSubtask:
		outcome, err := e.stepper.StepFunctionCall(&ex.Context, ex.Operation.FunctionName, ex.Operation.Args)
		if err != nil {
			return StepFailed, err
		}
		if (outcome.AwaitFuture != nil || outcome.AwaitStream != nil || outcome.AwaitWait != nil) &&
			len(ex.Context.CallStack) >= MaxAsyncCallDepth {
			return StepFailed, api.NewError(api.ErrorCategoryResource, api.CodeResourceExhausted,
				"async call depth %d exceeded", MaxAsyncCallDepth)
		}
		if outcome.AwaitFuture != nil {
			ex.Context.CallStack = append(ex.Context.CallStack, CallFrame{AsyncState: FrameAwaitingFuture})
			return e.awaitFuture(*outcome.AwaitFuture)
		}
		if outcome.AwaitStream != nil {
			ex.Context.CallStack = append(ex.Context.CallStack, CallFrame{AsyncState: FrameAwaitingStream})
			return e.awaitStream(*outcome.AwaitStream)
		}
		if outcome.AwaitWait != nil {
			ex.Context.CallStack = append(ex.Context.CallStack, CallFrame{AsyncState: FrameAwaitingMultiple, Wait: *outcome.AwaitWait})
			return e.awaitMultiple(*outcome.AwaitWait)
		}
		if !outcome.Done {
			return StepSuspended, nil // fuel-paused; resume on next Step
		}
		if outcome.Trapped {
			return StepFailed, nil
		}
		ex.Result = &Result{Values: outcome.Values, InstructionsExecuted: outcome.Instructions}
		return StepCompleted, nil

	case OpFutureGet:
		return e.awaitFuture(ex.Operation.Future)

	case OpFutureSet:
		e.mu.Lock()
		f, ok := e.futures[ex.Operation.Future]
		e.mu.Unlock()
		if !ok {
			return StepFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown future %d", ex.Operation.Future)
		}
		f.ready = true
		f.value = ex.Operation.FutureVal
		ex.Result = &Result{}
		return StepCompleted, nil

	case OpStreamRead:
		return e.readStream(ex)

	case OpStreamWrite:
		e.mu.Lock()
		s, ok := e.streams[ex.Operation.Stream]
		e.mu.Unlock()
		if !ok {
			return StepFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown stream %d", ex.Operation.Stream)
		}
		s.buf = append(s.buf, ex.Operation.WriteData...)
		ex.Result = &Result{}
		return StepCompleted, nil

	case OpWaitMultiple:
		return e.awaitMultiple(ex.Operation.Wait)

	default:
		return StepFailed, api.NewError(api.ErrorCategoryValidation, api.CodeUnreachable, "unknown async operation kind %d", ex.Operation.Kind)
	}
}

func (e *Engine) awaitFuture(h FutureHandle) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.futures[h]
	if !ok {
		return StepFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown future %d", h)
	}
	if !f.ready {
		return StepWaiting, nil
	}
	return StepCompleted, nil
}

// awaitStream is ready once the stream has buffered data or is closed.
func (e *Engine) awaitStream(h StreamHandle) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[h]
	if !ok {
		return StepFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown stream %d", h)
	}
	if len(s.buf) == 0 && !s.closed {
		return StepWaiting, nil
	}
	return StepCompleted, nil
}

func (e *Engine) readStream(ex *Execution) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[ex.Operation.Stream]
	if !ok {
		return StepFailed, api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown stream %d", ex.Operation.Stream)
	}
	if len(s.buf) == 0 {
		if s.closed {
			ex.Result = &Result{}
			return StepCompleted, nil
		}
		return StepWaiting, nil
	}
	n := ex.Operation.ReadCount
	if uint32(len(s.buf)) < n {
		n = uint32(len(s.buf))
	}
	ex.Result = &Result{}
	s.buf = s.buf[n:]
	return StepCompleted, nil
}

// awaitMultiple is ready as soon as any named future is ready or any named
// stream has buffered data.
func (e *Engine) awaitMultiple(ws WaitSet) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, fh := range ws.Futures {
		if f, ok := e.futures[fh]; ok && f.ready {
			return StepCompleted, nil
		}
	}
	for _, sh := range ws.Streams {
		if s, ok := e.streams[sh]; ok && (len(s.buf) > 0 || s.closed) {
			return StepCompleted, nil
		}
	}
	return StepWaiting, nil
}

// Cancel recursively cancels id's children first, then marks id itself
// Cancelled and returns its context to the pool (here: simply drops it —
// Go's GC is the pool). Cancellation is synchronous, but an in-flight host
// call a child is mid-way through is not interrupted.
func (e *Engine) Cancel(id ExecutionID) error {
	e.mu.Lock()
	ex, ok := e.executions[id]
	if !ok {
		e.mu.Unlock()
		return api.NewError(api.ErrorCategoryState, api.CodeUnknownInstance, "unknown execution %d", id)
	}
	children := append([]ExecutionID(nil), ex.Children...)
	e.mu.Unlock()

	g, _ := errgroup.WithContext(context.Background())
	for _, child := range children {
		child := child
		g.Go(func() error { return e.Cancel(child) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.mu.Lock()
	wasLive := ex.State != ExecutionCompleted && ex.State != ExecutionFailed && ex.State != ExecutionCancelled
	ex.State = ExecutionCancelled
	if wasLive {
		e.stats.ExecutionsCancelled++
		e.sem.Release(1)
	}
	e.mu.Unlock()
	e.signalTerminal()
	return nil
}

// Get returns a copy of the execution record for id, or ok=false if no such
// execution exists.
func (e *Engine) Get(id ExecutionID) (Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[id]
	if !ok {
		return Execution{}, false
	}
	return *ex, true
}

// Order returns the FIFO execution order new executions were started in,
// for callers that step the whole ready set each tick.
func (e *Engine) Order() []ExecutionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecutionID(nil), e.order...)
}
