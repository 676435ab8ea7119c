package pipeline

import "errors"

// Stage failures. They are contained inside a turn and reported to the
// client as an error event or a degraded answer.
var (
	ErrTranscodeFailure     = errors.New("transcode failure")
	ErrTranscriptionFailure = errors.New("transcription failure")
	ErrRetrievalFailure     = errors.New("retrieval failure")
	ErrGenerationFailure    = errors.New("generation failure")
	ErrSynthesisFailure     = errors.New("synthesis failure")
)

// Session-terminal conditions. HandleFrame returns only these.
var (
	ErrProtocol        = errors.New("protocol error")
	ErrTransportClosed = errors.New("transport closed")
)

// Client-facing messages for error events.
const (
	msgNoCollection    = "no collection selected"
	msgEmptyCollection = "collection name is empty"
	msgEmptyQuestion   = "question is empty"
	msgTranscode       = "could not decode audio"
	msgTranscription   = "speech recognition failed"
	msgGeneration      = "failed to generate an answer"
)
