// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package mirror

import (
	"github.com/mirrorsync/mirrorsync/pkg/fs"
)

type PassInput struct {
	Source            string // root of the authoritative tree, never mutated
	SourceFileSystem  fs.FileSystem
	Replica           string // root of the derived tree, mutated in place
	ReplicaFileSystem fs.FileSystem
	Operations        fs.OperationLogger // receives one record per mutation
	Logger            fs.Logger          // optional diagnostics
}
