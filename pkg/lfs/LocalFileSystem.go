// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package lfs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
)

// LocalFileSystem implements fs.FileSystem on top of a directory of the
// local filesystem. All names are relative to the root path.
type LocalFileSystem struct {
	fs afero.Fs
}

func (lfs *LocalFileSystem) Chmod(ctx context.Context, name string, mode os.FileMode) error {
	return lfs.fs.Chmod(name, mode)
}

func (lfs *LocalFileSystem) Chtimes(ctx context.Context, name string, atime time.Time, mtime time.Time) error {
	return lfs.fs.Chtimes(name, atime, mtime)
}

func (lfs *LocalFileSystem) Join(name ...string) string {
	return filepath.Join(name...)
}

func (lfs *LocalFileSystem) MkdirAll(ctx context.Context, name string, mode os.FileMode) error {
	return lfs.fs.MkdirAll(name, mode)
}

func (lfs *LocalFileSystem) Open(ctx context.Context, name string) (fs.File, error) {
	f, err := lfs.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return NewLocalFile(f), nil
}

func (lfs *LocalFileSystem) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (fs.File, error) {
	f, err := lfs.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return NewLocalFile(f), nil
}

func (lfs *LocalFileSystem) ReadDir(ctx context.Context, name string) ([]fs.DirectoryEntry, error) {
	directoryEntries := []fs.DirectoryEntry{}
	readDirOutput, err := afero.ReadDir(lfs.fs, name)
	if err != nil {
		return nil, err
	}
	for _, fileInfo := range readDirOutput {
		directoryEntries = append(directoryEntries, &LocalDirectoryEntry{
			fi: fileInfo,
		})
	}
	return directoryEntries, nil
}

func (lfs *LocalFileSystem) Remove(ctx context.Context, name string) error {
	return lfs.fs.Remove(name)
}

func (lfs *LocalFileSystem) RemoveAll(ctx context.Context, name string) error {
	return lfs.fs.RemoveAll(name)
}

func (lfs *LocalFileSystem) Size(ctx context.Context, name string) (int64, error) {
	fi, err := lfs.fs.Stat(name)
	if err != nil {
		return int64(0), err
	}
	return fi.Size(), nil
}

func (lfs *LocalFileSystem) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	fi, err := lfs.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	return NewLocalFileInfo(fi.Name(), fi.ModTime(), fi.IsDir(), fi.Size(), fi.Mode()), nil
}

func NewLocalFileSystem(rootPath string) *LocalFileSystem {
	return &LocalFileSystem{
		fs: afero.NewBasePathFs(afero.NewOsFs(), rootPath),
	}
}

// NewReadOnlyLocalFileSystem returns a filesystem that rejects every
// mutating call. The synchronizer reads the source tree through one of
// these so the source can never be modified.
func NewReadOnlyLocalFileSystem(rootPath string) *LocalFileSystem {
	return &LocalFileSystem{
		fs: afero.NewBasePathFs(afero.NewReadOnlyFs(afero.NewOsFs()), rootPath),
	}
}
