package models

import "github.com/kollectcare/trialsync/internal/common"

// WithoutSyncFields returns a copy of the document with the sync engine's
// bookkeeping fields removed, leaving only caller content. Fingerprints are
// computed over this shape so a version bump alone never reads as a
// content change.
func (d Document) WithoutSyncFields() Document {
	out := Document{}
	for k, v := range d {
		switch k {
		case common.VersionField, common.ChecksumField:
		default:
			out[k] = v
		}
	}
	return out
}
