// Package engineerr defines the typed error kinds surfaced by the
// engine's control-plane operations, plus the buffer-length error
// ProcessAudio returns when its automation frame is malformed.
package engineerr

import "errors"

// Sentinel errors identifying each error kind from the engine's error
// handling design. Call sites should use errors.Is/errors.As against
// these; wrapping call sites use fmt.Errorf("...: %w", ErrX).
var (
	// ErrUnknownNode is returned when an operation names a node ID that
	// was never created, or has since been deleted.
	ErrUnknownNode = errors.New("engine: unknown node id")

	// ErrWrongNodeKind is returned when update<Kind> is called on a node
	// of a different kind.
	ErrWrongNodeKind = errors.New("engine: node is not of the requested kind")

	// ErrPortTypeMismatch is returned when a connection's source and
	// destination ports disagree in role (e.g. audio into a gate port).
	ErrPortTypeMismatch = errors.New("engine: source and destination port roles are incompatible")

	// ErrCycleWithoutFeedback is returned when a connection would close
	// a cycle that does not cross a feedback-capable edge.
	ErrCycleWithoutFeedback = errors.New("engine: connection would create a cycle with no feedback-capable edge")

	// ErrImportFailure is returned when a WAV byte slice cannot be
	// decoded, or decodes to a zero-length sample.
	ErrImportFailure = errors.New("engine: import failed")

	// ErrGraphFull is returned when node creation would exceed the
	// engine's node capacity.
	ErrGraphFull = errors.New("engine: node graph is full")

	// ErrUnknownKind is returned when a node creation operation names a
	// node kind the engine does not implement.
	ErrUnknownKind = errors.New("engine: unknown node kind")

	// ErrVoiceOutOfRange is returned when a macro connection names a
	// voice index outside the configured voice pool.
	ErrVoiceOutOfRange = errors.New("engine: voice index out of range")

	// ErrInvalidVoiceCount is returned by Init when voiceCount is
	// outside [1, MaxVoices].
	ErrInvalidVoiceCount = errors.New("engine: voice count out of range")

	// ErrBufferLengthMismatch is returned by ProcessAudio, in every
	// build, when it is given mismatched buffer lengths.
	ErrBufferLengthMismatch = errors.New("engine: buffer length mismatch")
)
