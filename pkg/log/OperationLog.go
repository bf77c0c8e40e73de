// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package log

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
	"github.com/mirrorsync/mirrorsync/pkg/ts"
)

// OperationLog writes one timestamped line per replica mutation, e.g.
//
//	[2026-08-26 09:15:02] File copied/updated: /replica/a.txt
//
// Lines are serialized, so a single OperationLog may be shared.
type OperationLog struct {
	mu       sync.Mutex
	writer   io.Writer
	layout   ts.Layout
	location *time.Location
}

func (l *OperationLog) Record(op fs.Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.writer, "[%s] %s\n", l.layout.Format(time.Now().In(l.location)), op)
	return err
}

func NewOperationLog(w io.Writer, layout ts.Layout, location *time.Location) *OperationLog {
	if len(layout) == 0 {
		layout = ts.DefaultLayout
	}
	if location == nil {
		location = time.Local
	}
	return &OperationLog{
		writer:   w,
		layout:   layout,
		location: location,
	}
}
