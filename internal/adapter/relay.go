package adapter

import "context"

// RelayHost starts an out-of-band relay session for one gateway session.
// Implemented by internal/backendsandbox so that adapter stays free of any
// container-runtime dependency; the native-relay adapter only ever talks to
// this narrow interface.
type RelayHost interface {
	StartSession(ctx context.Context, gatewaySessionID string) (RelaySession, error)
}

// RelaySession is a framed, bidirectional channel to one child process.
// Frames are opaque JSON-encoded envelopes; RelaySession does not interpret
// them beyond relaying bytes.
type RelaySession interface {
	// Write sends one frame to the child process.
	Write(ctx context.Context, frame []byte) error

	// Read blocks for the next frame from the child process. It returns
	// io.EOF-wrapping errors once the child's output stream closes.
	Read(ctx context.Context) ([]byte, error)

	// Close tears the session down by closing the relay connection. The
	// Docker-backed implementation in internal/backendsandbox does not signal
	// the child process here; its container is stopped (SIGTERM, then killed
	// after a 10 s grace) only when the host's TTL reaper expires it.
	Close(ctx context.Context) error
}
