package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
)

// fakeStepper completes a function call in a fixed number of steps (to
// exercise StepSuspended), or completes immediately when steps==0.
type fakeStepper struct {
	stepsRemaining map[string]int
}

func (f *fakeStepper) StepFunctionCall(ctx *ExecutionContext, name string, args []api.Value) (FunctionStepOutcome, error) {
	if f.stepsRemaining != nil {
		if n, ok := f.stepsRemaining[name]; ok && n > 0 {
			f.stepsRemaining[name] = n - 1
			return FunctionStepOutcome{Done: false}, nil
		}
	}
	sum := int32(0)
	for _, a := range args {
		sum += a.I32()
	}
	return FunctionStepOutcome{Done: true, Values: []api.Value{api.ValueI32(sum)}, Instructions: 3}, nil
}

func TestEngine_FunctionCallCompletesImmediately(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	id, err := e.StartExecution(1, Operation{Kind: OpFunctionCall, FunctionName: "add", Args: []api.Value{api.ValueI32(2), api.ValueI32(3)}}, nil)
	require.NoError(t, err)

	res, err := e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)

	ex, ok := e.Get(id)
	require.True(t, ok)
	require.Equal(t, ExecutionCompleted, ex.State)
	require.Equal(t, int32(5), ex.Result.Values[0].I32())
}

func TestEngine_FunctionCallPausesOnFuel(t *testing.T) {
	e := NewEngine(&fakeStepper{stepsRemaining: map[string]int{"slow": 2}}, 0)
	id, err := e.StartExecution(1, Operation{Kind: OpFunctionCall, FunctionName: "slow"}, nil)
	require.NoError(t, err)

	res, err := e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepSuspended, res)

	res, err = e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepSuspended, res)

	res, err = e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)
}

func TestEngine_FutureGetWaitsThenCompletes(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	fh := e.NewFuture()

	id, err := e.StartExecution(1, Operation{Kind: OpFutureGet, Future: fh}, nil)
	require.NoError(t, err)

	res, err := e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepWaiting, res)

	setID, err := e.StartExecution(2, Operation{Kind: OpFutureSet, Future: fh, FutureVal: api.ValueI32(7)}, nil)
	require.NoError(t, err)
	res, err = e.Step(setID)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)

	res, err = e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)
}

func TestEngine_StreamReadWaitsUntilData(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	sh := e.NewStream()

	id, err := e.StartExecution(1, Operation{Kind: OpStreamRead, Stream: sh, ReadCount: 4}, nil)
	require.NoError(t, err)

	res, err := e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepWaiting, res)

	writeID, err := e.StartExecution(2, Operation{Kind: OpStreamWrite, Stream: sh, WriteData: []byte{1, 2, 3, 4}}, nil)
	require.NoError(t, err)
	res, err = e.Step(writeID)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)

	res, err = e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)
}

func TestEngine_WaitMultipleReadyOnAnyMember(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	f1 := e.NewFuture()
	f2 := e.NewFuture()

	id, err := e.StartExecution(1, Operation{Kind: OpWaitMultiple, Wait: WaitSet{Futures: []FutureHandle{f1, f2}}}, nil)
	require.NoError(t, err)

	res, err := e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepWaiting, res)

	setID, err := e.StartExecution(2, Operation{Kind: OpFutureSet, Future: f2, FutureVal: api.ValueI32(1)}, nil)
	require.NoError(t, err)
	_, err = e.Step(setID)
	require.NoError(t, err)

	res, err = e.Step(id)
	require.NoError(t, err)
	require.Equal(t, StepCompleted, res)
}

func TestEngine_CapacityExceeded(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 1)
	_, err := e.StartExecution(1, Operation{Kind: OpFunctionCall, FunctionName: "f"}, nil)
	require.NoError(t, err)

	_, err = e.StartExecution(2, Operation{Kind: OpFunctionCall, FunctionName: "g"}, nil)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, api.ErrorCategoryResource, apiErr.Category)
}

func TestEngine_CancelChildrenFirst(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	parentID, err := e.StartExecution(1, Operation{Kind: OpFunctionCall, FunctionName: "parent"}, nil)
	require.NoError(t, err)

	childID, err := e.StartExecution(2, Operation{Kind: OpFunctionCall, FunctionName: "child"}, &parentID)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(parentID))

	parent, ok := e.Get(parentID)
	require.True(t, ok)
	require.Equal(t, ExecutionCancelled, parent.State)

	child, ok := e.Get(childID)
	require.True(t, ok)
	require.Equal(t, ExecutionCancelled, child.State)

	require.Equal(t, uint64(2), e.Stats().ExecutionsCancelled)
}

func TestEngine_UnknownExecution(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	_, err := e.Step(999)
	require.Error(t, err)
}

func TestEngine_WaitTerminalReturnsCompletedState(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	id, err := e.StartExecution(1, Operation{Kind: OpFunctionCall, FunctionName: "add", Args: []api.Value{api.ValueI32(1)}}, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		state, err := e.WaitTerminal(id, nil)
		require.NoError(t, err)
		require.Equal(t, ExecutionCompleted, state)
	}()

	_, err = e.Step(id)
	require.NoError(t, err)
	<-done
}

func TestEngine_WaitTerminalTimesOut(t *testing.T) {
	e := NewEngine(&fakeStepper{}, 0)
	id, err := e.StartExecution(1, Operation{Kind: OpFunctionCall, FunctionName: "never"}, nil)
	require.NoError(t, err)

	timeout := 5 * time.Millisecond
	state, err := e.WaitTerminal(id, &timeout)
	require.Error(t, err)
	require.NotEqual(t, ExecutionCompleted, state)
}
