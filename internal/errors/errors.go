package errors

import "errors"

// Sync cycle errors.
var (
	// ErrCycleInFlight is returned when a cycle is requested while another
	// is still running. Informational: the caller should not treat it as a
	// failure, the running cycle picks up later writes on its next run.
	ErrCycleInFlight = errors.New("sync cycle already in flight")

	// ErrNoSnapshot means the remote replica holds no snapshot document
	// yet. A pull cycle degrades to upload-only when it sees this.
	ErrNoSnapshot = errors.New("no remote snapshot")
)

// Crypto and schema errors.
var (
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted snapshot")
	ErrUnknownSchema   = errors.New("unknown snapshot schema version")
)
