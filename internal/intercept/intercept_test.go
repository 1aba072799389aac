package intercept

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
)

type recordingStrategy struct {
	DefaultStrategy
	name         string // prefixed to each recorded call
	bypass       bool
	modifyArgs   bool
	modifyResult bool
	beforeCalls  *[]string
	afterCalls   *[]string
}

func (s recordingStrategy) BeforeCall(source, target, function string, args []api.Value) ([]api.Value, bool, error) {
	if s.beforeCalls != nil {
		*s.beforeCalls = append(*s.beforeCalls, s.name+function)
	}
	if s.modifyArgs {
		return []api.Value{api.ValueI32(42)}, s.bypass, nil
	}
	return args, s.bypass, nil
}

func (s recordingStrategy) AfterCall(source, target, function string, args []api.Value, result []api.Value, callErr error) ([]api.Value, error) {
	if s.afterCalls != nil {
		*s.afterCalls = append(*s.afterCalls, s.name+function)
	}
	if s.modifyResult && callErr == nil {
		return []api.Value{api.ValueI32(99)}, nil
	}
	return result, callErr
}

func TestLinkInterceptor_Passthrough(t *testing.T) {
	li := New("test")
	li.AddStrategy(recordingStrategy{})

	called := false
	result, err := li.Call("target", "add", []api.Value{api.ValueI32(10), api.ValueI32(20)}, func(args []api.Value) ([]api.Value, error) {
		called = true
		require.Equal(t, int32(10), args[0].I32())
		return []api.Value{api.ValueI32(30)}, nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, int32(30), result[0].I32())
}

func TestLinkInterceptor_ModifiesArgs(t *testing.T) {
	li := New("test")
	li.AddStrategy(recordingStrategy{modifyArgs: true})

	result, err := li.Call("target", "add", []api.Value{api.ValueI32(10)}, func(args []api.Value) ([]api.Value, error) {
		require.Equal(t, int32(42), args[0].I32())
		return []api.Value{api.ValueI32(20)}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(20), result[0].I32())
}

func TestLinkInterceptor_ModifiesResult(t *testing.T) {
	li := New("test")
	li.AddStrategy(recordingStrategy{modifyResult: true})

	result, err := li.Call("target", "add", []api.Value{api.ValueI32(10)}, func(args []api.Value) ([]api.Value, error) {
		return []api.Value{api.ValueI32(20)}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(99), result[0].I32())
}

// A strategy that bypasses skips the target entirely; its substituted args
// become the call's result.
func TestLinkInterceptor_Bypass(t *testing.T) {
	li := New("test")
	li.AddStrategy(recordingStrategy{bypass: true, modifyArgs: true})

	result, err := li.Call("target", "add", []api.Value{api.ValueI32(10), api.ValueI32(20)}, func(args []api.Value) ([]api.Value, error) {
		t.Fatal("underlying call must not run when a strategy bypasses")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.ValueI32(42)}, result)
}

func TestLinkInterceptor_OrderIsNestedMiddleware(t *testing.T) {
	var before, after []string
	li := New("test")
	li.AddStrategy(recordingStrategy{name: "a", beforeCalls: &before, afterCalls: &after})
	li.AddStrategy(recordingStrategy{name: "b", beforeCalls: &before, afterCalls: &after})

	_, err := li.Call("target", "f", nil, func(args []api.Value) ([]api.Value, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"af", "bf"}, before)
	require.Equal(t, []string{"bf", "af"}, after)
}

func TestApplyModifications_ReplaceInsertRemove(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	out, err := ApplyModifications(data, []Modification{
		{Kind: ModificationReplace, Offset: 1, Data: []byte{9, 9}},
		{Kind: ModificationInsert, Offset: 0, Data: []byte{0}},
		{Kind: ModificationRemove, Offset: 1, Length: 1},
	})
	require.NoError(t, err)
	// original: [1 2 3 4 5]
	// replace [1:3) -> [1 9 9 4 5]
	// insert at 0    -> [0 1 9 9 4 5]
	// remove [1:2)   -> [0 9 9 4 5]
	require.Equal(t, []byte{0, 9, 9, 4, 5}, out)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, data, "ApplyModifications must not mutate its input")
}

func TestApplyModifications_OutOfBoundsIsHardError(t *testing.T) {
	_, err := ApplyModifications([]byte{1, 2, 3}, []Modification{{Kind: ModificationReplace, Offset: 2, Data: []byte{9, 9, 9}}})
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, api.ErrorCategoryValidation, apiErr.Category)
}
