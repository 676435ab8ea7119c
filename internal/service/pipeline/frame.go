package pipeline

import (
	"fmt"
	"strings"
)

// FrameKind tells text control frames from binary audio frames.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Frame is one inbound transport message.
type Frame struct {
	Kind FrameKind
	Text string
	Data []byte
}

func TextFrame(text string) Frame {
	return Frame{Kind: FrameText, Text: text}
}

func BinaryFrame(data []byte) Frame {
	return Frame{Kind: FrameBinary, Data: data}
}

const (
	setCollectionPrefix = "SET_COLLECTION:"
	askPrefix           = "ASK:"
)

type directiveKind int

const (
	directiveSetCollection directiveKind = iota + 1
	directiveAsk
)

type directive struct {
	kind directiveKind
	arg  string
}

// parseDirective recognizes the text control frames. Prefixes are
// case-sensitive; anything else is a protocol error.
func parseDirective(text string) (directive, error) {
	switch {
	case strings.HasPrefix(text, setCollectionPrefix):
		return directive{kind: directiveSetCollection, arg: strings.TrimSpace(text[len(setCollectionPrefix):])}, nil
	case strings.HasPrefix(text, askPrefix):
		return directive{kind: directiveAsk, arg: strings.TrimSpace(text[len(askPrefix):])}, nil
	default:
		return directive{}, fmt.Errorf("%w: unrecognized text frame %q", ErrProtocol, truncate(text, 64))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
