// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package mirror

import (
	"fmt"
)

// ReadError reports a directory or file that could not be listed or read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("error reading %q: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed create, copy, or remove on the replica.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error writing %q: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// TypeMismatchError reports an entry that is a file on one side and a
// directory on the other. The pass fails rather than guessing a resolution,
// since replacing a directory with a file is destructive.
type TypeMismatchError struct {
	Path string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("entry %q is a file on one side and a directory on the other", e.Path)
}
