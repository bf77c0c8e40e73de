// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package log

import (
	"sync"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
)

// OperationRecorder retains recorded operations in order. Used in tests.
type OperationRecorder struct {
	mu  sync.Mutex
	ops []fs.Operation
}

func (r *OperationRecorder) Record(op fs.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return nil
}

func (r *OperationRecorder) Operations() []fs.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fs.Operation, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *OperationRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

func NewOperationRecorder() *OperationRecorder {
	return &OperationRecorder{}
}
