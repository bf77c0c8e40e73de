// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package fs

import (
	"context"
	"os"
	"time"
)

// FileSystem is the set of filesystem operations the synchronizer needs.
// Implementations for the source side may reject every mutating call.
type FileSystem interface {
	Chmod(ctx context.Context, name string, mode os.FileMode) error
	Chtimes(ctx context.Context, name string, atime time.Time, mtime time.Time) error
	Join(name ...string) string
	MkdirAll(ctx context.Context, name string, mode os.FileMode) error
	Open(ctx context.Context, name string) (File, error)
	OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (File, error)
	ReadDir(ctx context.Context, name string) ([]DirectoryEntry, error)
	Remove(ctx context.Context, name string) error
	RemoveAll(ctx context.Context, name string) error
	Size(ctx context.Context, name string) (int64, error)
	Stat(ctx context.Context, name string) (FileInfo, error)
}
