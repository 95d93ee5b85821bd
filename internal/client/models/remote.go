package models

import "github.com/kollectcare/trialsync/internal/common"

// SplitRemoteDocument breaks a consolidated remote document back into the
// record's field groups. Top-level fields other than the embedded groups and
// the sync-engine bookkeeping fields belong to patient_info.
func SplitRemoteDocument(doc Document) (info Document, baseline Document, followups []Document) {
	info = Document{}
	for k, v := range doc {
		switch k {
		case "baseline", "followups", common.VersionField, common.ChecksumField:
		default:
			info[k] = v
		}
	}
	if b, ok := doc["baseline"].(map[string]any); ok {
		baseline = Document(b)
	}
	if raw, ok := doc["followups"].([]any); ok {
		for _, item := range raw {
			if f, ok := item.(map[string]any); ok {
				followups = append(followups, Document(f))
			}
		}
	}
	return info, baseline, followups
}

// RemoteVersion extracts the _version counter from a remote document.
func RemoteVersion(doc Document) int64 {
	switch v := doc[common.VersionField].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
