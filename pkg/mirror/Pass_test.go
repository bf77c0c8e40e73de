// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
	"github.com/mirrorsync/mirrorsync/pkg/lfs"
	"github.com/mirrorsync/mirrorsync/pkg/log"
)

func writeFile(t *testing.T, root string, name string, content string) {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func readFile(t *testing.T, root string, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(b)
}

func pathExists(root string, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}

func newPassInput(source string, replica string, recorder *log.OperationRecorder) *PassInput {
	return &PassInput{
		Source:            "/",
		SourceFileSystem:  lfs.NewReadOnlyLocalFileSystem(source),
		Replica:           "/",
		ReplicaFileSystem: lfs.NewLocalFileSystem(replica),
		Operations:        recorder,
	}
}

func TestPassConvergence(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "alpha")
	writeFile(t, source, "b/c.txt", "charlie")
	writeFile(t, source, "b/d/e.txt", "echo")

	recorder := log.NewOperationRecorder()
	count, err := Pass(ctx, newPassInput(source, replica, recorder))
	require.NoError(t, err)
	assert.Equal(t, 2, count) // a.txt copied, b created as one subtree

	assert.Equal(t, "alpha", readFile(t, replica, "a.txt"))
	assert.Equal(t, "charlie", readFile(t, replica, "b/c.txt"))
	assert.Equal(t, "echo", readFile(t, replica, "b/d/e.txt"))
}

func TestPassIdempotence(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "alpha")
	writeFile(t, source, "b/c.txt", "charlie")

	recorder := log.NewOperationRecorder()
	input := newPassInput(source, replica, recorder)

	_, err := Pass(ctx, input)
	require.NoError(t, err)

	recorder.Reset()
	count, err := Pass(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, recorder.Operations())
}

func TestPassExampleScenario(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "hello")
	writeFile(t, source, "sub/b.txt", "x")
	writeFile(t, replica, "a.txt", "hello")
	writeFile(t, replica, "c.txt", "old")

	recorder := log.NewOperationRecorder()
	count, err := Pass(ctx, newPassInput(source, replica, recorder))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ops := recorder.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, fs.Operation{Type: fs.OperationDirectoryCreated, Path: "/sub"}, ops[0])
	assert.Equal(t, fs.Operation{Type: fs.OperationFileRemoved, Path: "/c.txt"}, ops[1])

	assert.Equal(t, "hello", readFile(t, replica, "a.txt"))
	assert.Equal(t, "x", readFile(t, replica, "sub/b.txt"))
	assert.False(t, pathExists(replica, "c.txt"))
}

func TestPassMinimality(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "same.txt", "identical content")
	writeFile(t, replica, "same.txt", "identical content")
	writeFile(t, source, "diff.txt", "content a")
	writeFile(t, replica, "diff.txt", "content b") // same size, different bytes

	recorder := log.NewOperationRecorder()
	count, err := Pass(ctx, newPassInput(source, replica, recorder))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ops := recorder.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, fs.Operation{Type: fs.OperationFileCopied, Path: "/diff.txt"}, ops[0])
	assert.Equal(t, "content a", readFile(t, replica, "diff.txt"))
}

func TestPassDeletion(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, replica, "stale.txt", "old")
	writeFile(t, replica, "staledir/inner.txt", "old")

	recorder := log.NewOperationRecorder()
	count, err := Pass(ctx, newPassInput(source, replica, recorder))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.False(t, pathExists(replica, "stale.txt"))
	assert.False(t, pathExists(replica, "staledir"))

	removed := map[fs.OperationType]int{}
	for _, op := range recorder.Operations() {
		removed[op.Type]++
	}
	assert.Equal(t, 1, removed[fs.OperationFileRemoved])
	assert.Equal(t, 1, removed[fs.OperationDirectoryRemoved])
}

func TestPassNewSubtreeNotPruned(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "sub/deep/file.txt", "payload")

	recorder := log.NewOperationRecorder()
	count, err := Pass(ctx, newPassInput(source, replica, recorder))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ops := recorder.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, fs.Operation{Type: fs.OperationDirectoryCreated, Path: "/sub"}, ops[0])
	assert.Equal(t, "payload", readFile(t, replica, "sub/deep/file.txt"))
}

func TestPassTypeMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("directory in source, file in replica", func(t *testing.T) {
		source := t.TempDir()
		replica := t.TempDir()
		writeFile(t, source, "entry/file.txt", "x")
		writeFile(t, replica, "entry", "i am a file")

		_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
		require.Error(t, err)
		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "/entry", mismatch.Path)
		assert.Equal(t, "i am a file", readFile(t, replica, "entry"))
	})

	t.Run("file in source, directory in replica", func(t *testing.T) {
		source := t.TempDir()
		replica := t.TempDir()
		writeFile(t, source, "entry", "i am a file")
		writeFile(t, replica, "entry/file.txt", "x")

		_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
		require.Error(t, err)
		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "/entry", mismatch.Path)
		assert.True(t, pathExists(replica, "entry/file.txt"))
	})
}

func TestPassReadError(t *testing.T) {
	ctx := context.Background()
	replica := t.TempDir()

	input := newPassInput(filepath.Join(t.TempDir(), "missing"), replica, log.NewOperationRecorder())
	_, err := Pass(ctx, input)
	require.Error(t, err)
	var readError *ReadError
	assert.ErrorAs(t, err, &readError)
}

func TestPassPreservesModTime(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "alpha")
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(source, "a.txt"), past, past))

	_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
	require.NoError(t, err)

	sourceInfo, err := os.Stat(filepath.Join(source, "a.txt"))
	require.NoError(t, err)
	replicaInfo, err := os.Stat(filepath.Join(replica, "a.txt"))
	require.NoError(t, err)
	assert.WithinDuration(t, sourceInfo.ModTime(), replicaInfo.ModTime(), time.Second)
}

func TestPassCancelled(t *testing.T) {
	source := t.TempDir()
	replica := t.TempDir()
	writeFile(t, source, "a.txt", "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPassInterruptionRecovery(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "alpha")
	writeFile(t, source, "b/c.txt", "charlie")

	// replica left in a partial state by an interrupted pass
	writeFile(t, replica, "a.txt", "alpha")
	writeFile(t, replica, "stale.txt", "leftover")

	recorder := log.NewOperationRecorder()
	input := newPassInput(source, replica, recorder)

	_, err := Pass(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, "alpha", readFile(t, replica, "a.txt"))
	assert.Equal(t, "charlie", readFile(t, replica, "b/c.txt"))
	assert.False(t, pathExists(replica, "stale.txt"))

	recorder.Reset()
	count, err := Pass(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPassSourceNeverMutated(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "alpha")
	writeFile(t, source, "b/c.txt", "charlie")

	_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
	require.NoError(t, err)

	assert.Equal(t, "alpha", readFile(t, source, "a.txt"))
	assert.Equal(t, "charlie", readFile(t, source, "b/c.txt"))
}

func TestPassSymlinkToDirectory(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "real/inner.txt", "hello")
	require.NoError(t, os.Symlink(filepath.Join(source, "real"), filepath.Join(source, "link")))

	recorder := log.NewOperationRecorder()
	_, err := Pass(ctx, newPassInput(source, replica, recorder))
	require.NoError(t, err)

	// the link is mirrored as a real directory holding its target's tree
	linkInfo, err := os.Lstat(filepath.Join(replica, "link"))
	require.NoError(t, err)
	assert.True(t, linkInfo.IsDir())
	assert.Zero(t, linkInfo.Mode()&os.ModeSymlink)
	assert.Equal(t, "hello", readFile(t, replica, "link/inner.txt"))
	assert.Equal(t, "hello", readFile(t, replica, "real/inner.txt"))

	count, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPassSymlinkToFile(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	writeFile(t, source, "a.txt", "alpha")
	require.NoError(t, os.Symlink(filepath.Join(source, "a.txt"), filepath.Join(source, "link.txt")))

	_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
	require.NoError(t, err)

	// the link is mirrored as a real file holding its target's bytes
	linkInfo, err := os.Lstat(filepath.Join(replica, "link.txt"))
	require.NoError(t, err)
	assert.Zero(t, linkInfo.Mode()&os.ModeSymlink)
	assert.Equal(t, "alpha", readFile(t, replica, "link.txt"))
}

func TestPassBrokenSymlink(t *testing.T) {
	ctx := context.Background()
	source := t.TempDir()
	replica := t.TempDir()

	require.NoError(t, os.Symlink(filepath.Join(source, "missing"), filepath.Join(source, "link")))

	_, err := Pass(ctx, newPassInput(source, replica, log.NewOperationRecorder()))
	require.Error(t, err)
	var readError *ReadError
	require.ErrorAs(t, err, &readError)
	assert.Equal(t, "/link", readError.Path)
}
