package snapshot

import "errors"

var (
	// ErrNothingToSend is returned by EndMessage when no entity or remote call
	// was queued. The writer is reset and no bytes are produced.
	ErrNothingToSend = errors.New("nothing to send")

	ErrNotStarted       = errors.New("message not started")
	ErrUnknownRole      = errors.New("unknown network role")
	ErrUnknownKind      = errors.New("unknown parameter kind")
	ErrUnknownMessage   = errors.New("unknown message kind")
	ErrUnknownEncoding  = errors.New("unknown snapshot encoding")
	ErrBufferFull       = errors.New("snapshot buffer full")
	ErrShortMessage     = errors.New("message shorter than header")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrVersionMismatch  = errors.New("protocol version mismatch")
	ErrMalformed        = errors.New("malformed message")
)
