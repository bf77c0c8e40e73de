// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package lfs

import (
	"encoding/json"
	"os"
	"time"
)

type LocalDirectoryEntry struct {
	fi os.FileInfo
}

func (lde *LocalDirectoryEntry) IsDir() bool {
	return lde.fi.IsDir()
}

func (lde *LocalDirectoryEntry) Name() string {
	return lde.fi.Name()
}

func (lde *LocalDirectoryEntry) ModTime() time.Time {
	return lde.fi.ModTime()
}

func (lde *LocalDirectoryEntry) Size() int64 {
	return lde.fi.Size()
}

func (lde *LocalDirectoryEntry) String() string {
	return lde.fi.Name()
}

func (lde *LocalDirectoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"dir":     lde.IsDir(),
		"modTime": lde.ModTime(),
		"name":    lde.Name(),
		"size":    lde.Size(),
	})
}
