// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package mirror

import (
	"bytes"
	"context"
	"crypto/md5"
	"io"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
)

// DigestChunkSize is the fixed buffer size used when streaming a file
// through the digest.
const DigestChunkSize = 4096

// Digest returns the MD5 content digest of the named file, streaming the
// file in fixed-size chunks rather than loading it into memory.
func Digest(ctx context.Context, fileSystem fs.FileSystem, name string) ([]byte, error) {
	file, err := fileSystem.Open(ctx, name)
	if err != nil {
		return nil, &ReadError{Path: name, Err: err}
	}
	h := md5.New()
	if _, err := io.CopyBuffer(h, file, make([]byte, DigestChunkSize)); err != nil {
		_ = file.Close() // silently close source file
		return nil, &ReadError{Path: name, Err: err}
	}
	if err := file.Close(); err != nil {
		return nil, &ReadError{Path: name, Err: err}
	}
	return h.Sum(nil), nil
}

// contentEqual reports whether two regular files hold identical bytes.
// Unequal sizes short-circuit before any bytes are hashed; equality is never
// decided by size or modification time alone.
func contentEqual(ctx context.Context, sourceFileSystem fs.FileSystem, sourceName string, replicaFileSystem fs.FileSystem, replicaName string) (bool, error) {
	sourceSize, err := sourceFileSystem.Size(ctx, sourceName)
	if err != nil {
		return false, &ReadError{Path: sourceName, Err: err}
	}
	replicaSize, err := replicaFileSystem.Size(ctx, replicaName)
	if err != nil {
		return false, &ReadError{Path: replicaName, Err: err}
	}
	if sourceSize != replicaSize {
		return false, nil
	}
	sourceDigest, err := Digest(ctx, sourceFileSystem, sourceName)
	if err != nil {
		return false, err
	}
	replicaDigest, err := Digest(ctx, replicaFileSystem, replicaName)
	if err != nil {
		return false, err
	}
	return bytes.Equal(sourceDigest, replicaDigest), nil
}
