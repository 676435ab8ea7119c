package session

// State is the pipeline stage a session is currently in.
type State int32

const (
	StateIdle State = iota
	StateTranscoding
	StateTranscribing
	StateRetrieving
	StateGenerating
	StateSynthesizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTranscoding:
		return "transcoding"
	case StateTranscribing:
		return "transcribing"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	default:
		return "unknown"
	}
}
