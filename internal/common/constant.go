package common

const (
	// AuthHeaderName carries the bearer token on HTTP and WebSocket requests.
	AuthHeaderName = "Authorization"

	// Reserved top-level fields the sync engine adds to every remote
	// document. The UI never sets these.
	VersionField  = "_version"
	ChecksumField = "_sync_checksum"
)
