// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

// Package mirror makes a replica directory tree content-identical to a
// source directory tree. One Pass reconciles the replica against the source
// (creates and updates) and then prunes entries the source no longer has,
// recording every mutation through an injected operation logger.
//
// A pass is stateless between invocations and idempotent: re-running after
// any failure or interruption converges the replica toward the source.
// Symbolic links in the source are dereferenced: entries are classified by
// following links, so a link to a directory is mirrored as a real directory
// and a link to a regular file as a real file holding its target's bytes.
// A broken link is unreadable and fails the pass. The replica never
// contains links.
package mirror

import (
	"context"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
)

// Pass runs one complete synchronization pass. Source and Replica must both
// exist as directories. It returns the number of operations performed. The
// first error aborts the pass; entries not yet reached are left for the next
// pass.
func Pass(ctx context.Context, input *PassInput) (int, error) {
	if input.Logger != nil {
		_ = input.Logger.Log("Synchronizing", map[string]interface{}{
			"src": input.Source,
			"dst": input.Replica,
		})
	}
	return pass(ctx, input, input.Source, input.Replica)
}

func pass(ctx context.Context, input *PassInput, sourceDirectory string, replicaDirectory string) (int, error) {
	count := 0

	// Capture both listings before mutating anything. Pruning candidates
	// come from these listings, so an entry created during reconciliation
	// is never a candidate for removal.
	sourceDirectoryEntries, err := input.SourceFileSystem.ReadDir(ctx, sourceDirectory)
	if err != nil {
		return count, &ReadError{Path: sourceDirectory, Err: err}
	}
	replicaDirectoryEntries, err := input.ReplicaFileSystem.ReadDir(ctx, replicaDirectory)
	if err != nil {
		return count, &ReadError{Path: replicaDirectory, Err: err}
	}

	sourceNames := make(map[string]struct{}, len(sourceDirectoryEntries))
	for _, sourceDirectoryEntry := range sourceDirectoryEntries {
		sourceNames[sourceDirectoryEntry.Name()] = struct{}{}
	}
	replicaByName := make(map[string]fs.DirectoryEntry, len(replicaDirectoryEntries))
	for _, replicaDirectoryEntry := range replicaDirectoryEntries {
		replicaByName[replicaDirectoryEntry.Name()] = replicaDirectoryEntry
	}

	// reconciliation: source wins
	for _, sourceDirectoryEntry := range sourceDirectoryEntries {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		sourceName := input.SourceFileSystem.Join(sourceDirectory, sourceDirectoryEntry.Name())
		replicaName := input.ReplicaFileSystem.Join(replicaDirectory, sourceDirectoryEntry.Name())
		replicaDirectoryEntry, exists := replicaByName[sourceDirectoryEntry.Name()]

		// Classify by following links, so a link to a directory recurses
		// and a link to a regular file copies its target's bytes.
		sourceFileInfo, err := input.SourceFileSystem.Stat(ctx, sourceName)
		if err != nil {
			return count, &ReadError{Path: sourceName, Err: err}
		}

		if sourceFileInfo.IsDir() {
			switch {
			case !exists:
				if err := copyTree(ctx, input, sourceName, replicaName); err != nil {
					return count, err
				}
				count++
				if input.Operations != nil {
					_ = input.Operations.Record(fs.Operation{Type: fs.OperationDirectoryCreated, Path: replicaName})
				}
			case replicaDirectoryEntry.IsDir():
				c, err := pass(ctx, input, sourceName, replicaName)
				count += c
				if err != nil {
					return count, err
				}
			default:
				return count, &TypeMismatchError{Path: replicaName}
			}
			continue
		}

		if exists && replicaDirectoryEntry.IsDir() {
			return count, &TypeMismatchError{Path: replicaName}
		}

		copyNeeded := !exists
		if exists {
			equal, err := contentEqual(ctx,
				input.SourceFileSystem, sourceName,
				input.ReplicaFileSystem, replicaName)
			if err != nil {
				return count, err
			}
			copyNeeded = !equal
		}
		if copyNeeded {
			if err := copyFile(ctx, input, sourceName, replicaName); err != nil {
				return count, err
			}
			count++
			if input.Operations != nil {
				_ = input.Operations.Record(fs.Operation{Type: fs.OperationFileCopied, Path: replicaName})
			}
		}
	}

	// pruning: replica entries with no counterpart in the captured source listing
	for _, replicaDirectoryEntry := range replicaDirectoryEntries {
		if _, ok := sourceNames[replicaDirectoryEntry.Name()]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}

		replicaName := input.ReplicaFileSystem.Join(replicaDirectory, replicaDirectoryEntry.Name())
		if replicaDirectoryEntry.IsDir() {
			if err := input.ReplicaFileSystem.RemoveAll(ctx, replicaName); err != nil {
				return count, &WriteError{Path: replicaName, Err: err}
			}
			count++
			if input.Operations != nil {
				_ = input.Operations.Record(fs.Operation{Type: fs.OperationDirectoryRemoved, Path: replicaName})
			}
		} else {
			if err := input.ReplicaFileSystem.Remove(ctx, replicaName); err != nil {
				return count, &WriteError{Path: replicaName, Err: err}
			}
			count++
			if input.Operations != nil {
				_ = input.Operations.Record(fs.Operation{Type: fs.OperationFileRemoved, Path: replicaName})
			}
		}
	}

	return count, nil
}
