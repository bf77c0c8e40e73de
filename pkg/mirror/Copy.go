// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package mirror

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// copyFile copies the bytes of one regular file from source to replica,
// overwriting any existing replica file of that name, and preserves the
// source modification time. Permission bits are applied best-effort.
func copyFile(ctx context.Context, input *PassInput, sourceName string, replicaName string) error {
	if input.Logger != nil {
		_ = input.Logger.Log("Copying file", map[string]interface{}{
			"src": sourceName,
			"dst": replicaName,
		})
	}

	sourceFileInfo, err := input.SourceFileSystem.Stat(ctx, sourceName)
	if err != nil {
		return &ReadError{Path: sourceName, Err: err}
	}

	sourceFile, err := input.SourceFileSystem.Open(ctx, sourceName)
	if err != nil {
		return &ReadError{Path: sourceName, Err: err}
	}

	replicaFile, err := input.ReplicaFileSystem.OpenFile(ctx, replicaName, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		_ = sourceFile.Close() // silently close source file
		return &WriteError{Path: replicaName, Err: err}
	}

	sourceReader := &readFailureRecorder{reader: sourceFile}
	written, err := io.Copy(replicaFile, sourceReader)
	if err != nil {
		_ = sourceFile.Close()  // silently close source file
		_ = replicaFile.Close() // silently close replica file
		if sourceReader.err != nil {
			return &ReadError{Path: sourceName, Err: sourceReader.err}
		}
		return &WriteError{Path: replicaName, Err: err}
	}

	err = sourceFile.Close()
	if err != nil {
		_ = replicaFile.Close() // silently close replica file
		return &ReadError{Path: sourceName, Err: err}
	}

	err = replicaFile.Close()
	if err != nil {
		return &WriteError{Path: replicaName, Err: err}
	}

	// preserve modification time
	err = input.ReplicaFileSystem.Chtimes(ctx, replicaName, time.Now(), sourceFileInfo.ModTime())
	if err != nil {
		return &WriteError{Path: replicaName, Err: err}
	}

	// permission bits are best-effort
	_ = input.ReplicaFileSystem.Chmod(ctx, replicaName, sourceFileInfo.Mode().Perm())

	if input.Logger != nil {
		_ = input.Logger.Log("Done copying file", map[string]interface{}{
			"src":     sourceName,
			"dst":     replicaName,
			"written": humanize.IBytes(uint64(written)),
		})
	}

	return nil
}

// readFailureRecorder notes the first read failure it sees, so a failed
// io.Copy can be attributed to the side that actually failed.
type readFailureRecorder struct {
	reader io.Reader
	err    error
}

func (r *readFailureRecorder) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}

// copyTree deep-copies a source directory that has no counterpart in the
// replica. The caller records a single DirectoryCreated operation for the
// top of the subtree; descendants are not individually logged.
func copyTree(ctx context.Context, input *PassInput, sourceDirectory string, replicaDirectory string) error {
	sourceFileInfo, err := input.SourceFileSystem.Stat(ctx, sourceDirectory)
	if err != nil {
		return &ReadError{Path: sourceDirectory, Err: err}
	}

	if err := input.ReplicaFileSystem.MkdirAll(ctx, replicaDirectory, sourceFileInfo.Mode().Perm()|0700); err != nil {
		return &WriteError{Path: replicaDirectory, Err: err}
	}

	sourceDirectoryEntries, err := input.SourceFileSystem.ReadDir(ctx, sourceDirectory)
	if err != nil {
		return &ReadError{Path: sourceDirectory, Err: err}
	}

	for _, sourceDirectoryEntry := range sourceDirectoryEntries {
		if err := ctx.Err(); err != nil {
			return err
		}
		sourceName := input.SourceFileSystem.Join(sourceDirectory, sourceDirectoryEntry.Name())
		replicaName := input.ReplicaFileSystem.Join(replicaDirectory, sourceDirectoryEntry.Name())
		sourceEntryInfo, err := input.SourceFileSystem.Stat(ctx, sourceName)
		if err != nil {
			return &ReadError{Path: sourceName, Err: err}
		}
		if sourceEntryInfo.IsDir() {
			if err := copyTree(ctx, input, sourceName, replicaName); err != nil {
				return err
			}
		} else {
			if err := copyFile(ctx, input, sourceName, replicaName); err != nil {
				return err
			}
		}
	}

	return nil
}
