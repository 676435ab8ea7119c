package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/rag-voice/backend/internal/model/assistant"
)

// TurnArchiver writes each answered turn to blob storage under
// sessions/<session>/<turn>/.
type TurnArchiver struct {
	store BlobStorage
	now   func() time.Time
}

func NewTurnArchiver(store BlobStorage) *TurnArchiver {
	return &TurnArchiver{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type turnRecord struct {
	SessionID   string    `json:"sessionId"`
	Seq         int64     `json:"seq"`
	Query       string    `json:"query"`
	Context     string    `json:"context,omitempty"`
	Answer      string    `json:"answer"`
	Grounded    bool      `json:"grounded"`
	AudioFormat string    `json:"audioFormat,omitempty"`
	ArchivedAt  time.Time `json:"archivedAt"`
}

// Archive stores the inbound chunk (if any), the synthesized answer audio
// (if any) and a JSON summary of the turn. All puts are attempted; the
// first failures are joined.
func (a *TurnArchiver) Archive(ctx context.Context, sessionID string, turn assistant.Turn, inbound []byte) error {
	prefix := fmt.Sprintf("sessions/%s/%04d", sessionID, turn.Seq)

	var errs []error
	if len(inbound) > 0 {
		errs = append(errs, a.put(ctx, prefix+"/inbound.webm", inbound, "audio/webm"))
	}
	if len(turn.Audio) > 0 {
		format := turn.AudioFormat
		if format == "" {
			format = "bin"
		}
		errs = append(errs, a.put(ctx, prefix+"/answer."+format, turn.Audio, contentType(format)))
	}

	record, err := json.Marshal(turnRecord{
		SessionID:   sessionID,
		Seq:         turn.Seq,
		Query:       turn.Query,
		Context:     turn.RetrievedContext,
		Answer:      turn.Answer,
		Grounded:    turn.Grounded(),
		AudioFormat: turn.AudioFormat,
		ArchivedAt:  a.now(),
	})
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, a.put(ctx, prefix+"/turn.json", record, "application/json"))
	}

	return errors.Join(errs...)
}

func (a *TurnArchiver) put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := a.store.Put(ctx, key, bytes.NewReader(data), PutOptions{
		Size:        int64(len(data)),
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func contentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "pcm":
		return "audio/L16"
	case "opus", "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
