package component

import (
	"encoding/binary"

	"github.com/avrabe/wrt/internal/intercept"
)

// InterceptStrategy adapts a ResourceTable into an intercept.Strategy so a
// LinkInterceptor chain always has a resource-handle-aware link without
// every call site having to know the table exists. It only overrides
// InterceptResourceOperation; BeforeCall/AfterCall/lift/lower pass through
// via the embedded intercept.DefaultStrategy, so a strategy author only
// overrides what it cares about.
type InterceptStrategy struct {
	intercept.DefaultStrategy
	table *ResourceTable
}

// NewInterceptStrategy wraps table as a Strategy.
func NewInterceptStrategy(table *ResourceTable) *InterceptStrategy {
	return &InterceptStrategy{table: table}
}

// InterceptResourceOperation handles "drop" by releasing the handle through
// the table and "rep" by returning the resource's little-endian-encoded
// type index, deferring every other operation (including "borrow") to the
// next strategy (or the default no-op) by returning handled=false.
func (s *InterceptStrategy) InterceptResourceOperation(handle uint32, operation string) ([]byte, bool, error) {
	switch operation {
	case "drop":
		if err := s.table.Drop(Handle(handle)); err != nil {
			return nil, true, err
		}
		return nil, true, nil
	case "rep":
		r, err := s.table.Get(Handle(handle))
		if err != nil {
			return nil, true, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, r.TypeIdx)
		return buf, true, nil
	default:
		return nil, false, nil
	}
}
