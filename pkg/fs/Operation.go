// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package fs

import (
	"encoding/json"
	"fmt"
)

type OperationType int

// The four mutations the synchronizer performs on a replica.
const (
	OperationDirectoryCreated OperationType = iota
	OperationFileCopied
	OperationDirectoryRemoved
	OperationFileRemoved
)

func (t OperationType) String() string {
	switch t {
	case OperationDirectoryCreated:
		return "Directory created"
	case OperationFileCopied:
		return "File copied/updated"
	case OperationDirectoryRemoved:
		return "Directory removed"
	case OperationFileRemoved:
		return "File removed"
	}
	return fmt.Sprintf("Unknown operation (%d)", int(t))
}

// Operation is a single mutation applied to the replica, identified by the
// affected path. Operations are handed to an OperationLogger as they happen
// and are not retained.
type Operation struct {
	Type OperationType
	Path string
}

func (o Operation) String() string {
	return o.Type.String() + ": " + o.Path
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": o.Type.String(),
		"path": o.Path,
	})
}

// OperationLogger records each mutation synchronously, in the order the
// mutation was performed. Formatting and output are the logger's concern.
type OperationLogger interface {
	Record(op Operation) error
}
