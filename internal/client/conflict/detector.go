// Package conflict decides whether a candidate remote write would clobber
// newer remote state. The policy is last-writer-wins guarded by a version
// counter at whole-document granularity: baseline and the entire follow-up
// array are replaced wholesale, never merged field by field. Two concurrent
// edits to different follow-up visits therefore still arbitrate as one
// document; per-visit merging is deliberately not attempted.
package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kollectcare/trialsync/internal/client/models"
)

// Resolution says which side wins arbitration.
type Resolution string

const (
	// UseLocal means the local write proceeds, with its version bumped
	// past the remote one.
	UseLocal Resolution = "use-local"
	// UseServer means the write is skipped: the server already holds
	// equal-or-newer data and the queue entry is treated as synced.
	UseServer Resolution = "use-server"
)

// Result is the outcome of arbitration. A conflict is a resolved outcome,
// never an error.
type Result struct {
	Conflict   bool
	Resolution Resolution
	// WriteVersion is the version the outgoing document must carry when
	// Resolution is UseLocal, so readers can always tell which side
	// produced the current remote state.
	WriteVersion int64
}

// Checksum returns a stable content fingerprint: sha256 over the canonical
// JSON encoding (objects with sorted keys, per encoding/json map ordering).
func Checksum(doc models.Document) string {
	b, err := json.Marshal(doc)
	if err != nil {
		// Documents come from JSON and always re-marshal; an error here
		// means a non-serializable value sneaked in, and a constant
		// fingerprint forces version arbitration instead of a false match.
		b = []byte("unserializable")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Detect arbitrates a local write against the current remote snapshot.
//
// Identical fingerprints mean no divergence: no conflict, nothing to write.
// Differing fingerprints fall back to version comparison: unless the local
// version is strictly ahead, the server is assumed to hold equal-or-newer
// data and wins; otherwise the local write proceeds at remoteVersion+1.
func Detect(localWrite, remoteSnapshot models.Document, localVersion, remoteVersion int64) Result {
	if Checksum(localWrite) == Checksum(remoteSnapshot) {
		return Result{Conflict: false, Resolution: UseServer, WriteVersion: remoteVersion}
	}

	if localVersion <= remoteVersion {
		return Result{Conflict: true, Resolution: UseServer, WriteVersion: remoteVersion}
	}

	return Result{Conflict: true, Resolution: UseLocal, WriteVersion: remoteVersion + 1}
}
