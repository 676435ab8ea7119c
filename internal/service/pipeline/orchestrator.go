package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/rag-voice/backend/internal/model/assistant"
	"github.com/zhouzirui/rag-voice/backend/internal/service/session"
)

// Transcoder normalizes an inbound audio chunk into canonical PCM.
type Transcoder interface {
	Transcode(ctx context.Context, chunk []byte) ([]byte, error)
}

// Transcriber turns canonical PCM into text. Silence yields "".
type Transcriber interface {
	Transcribe(ctx context.Context, sessionID string, pcm []byte) (string, error)
}

// Retriever returns the best passages for query within collection.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string) ([]string, error)
}

// Generator answers query grounded on passages.
type Generator interface {
	Generate(ctx context.Context, query, passages string) (string, error)
}

// Synthesizer renders an answer as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, sessionID, text string) ([]byte, string, error)
}

// Emitter delivers outbound events to the client.
type Emitter interface {
	Emit(ctx context.Context, ev assistant.Event) error
}

// Archiver stores a finished turn's audio.
type Archiver interface {
	Archive(ctx context.Context, sessionID string, turn assistant.Turn, inbound []byte) error
}

// Config tunes turn behaviour. Zero timeouts disable the per-stage bound.
type Config struct {
	DefaultCollection string
	EmitTranscript    bool

	TranscodeTimeout  time.Duration
	TranscribeTimeout time.Duration
	RetrieveTimeout   time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
	ArchiveTimeout    time.Duration
}

// Dependencies are the capabilities a turn is built from. Generator is
// required; the others may be nil, which disables the matching stage.
type Dependencies struct {
	Transcoder  Transcoder
	Transcriber Transcriber
	Retriever   Retriever
	Generator   Generator
	Synthesizer Synthesizer
	Archiver    Archiver
	Recorder    Recorder
}

// Orchestrator runs turns for any number of sessions. It holds no
// per-session state; callers must not run two frames of the same session
// concurrently.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
}

// New validates deps and returns an orchestrator.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 30 * time.Second
	}
	cfg.DefaultCollection = strings.TrimSpace(cfg.DefaultCollection)
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// HandleFrame processes one inbound frame to completion. Stage failures are
// reported through emit and swallowed; the returned error is nil, or wraps
// ErrProtocol or ErrTransportClosed, both of which end the session.
func (o *Orchestrator) HandleFrame(ctx context.Context, sess *session.Session, frame Frame, emit Emitter) error {
	sess.Touch(time.Now())
	defer sess.Touch(time.Now())

	switch frame.Kind {
	case FrameBinary:
		return o.runTurn(ctx, sess, emit, turnInput{isAudio: true, audio: frame.Data})
	case FrameText:
		d, err := parseDirective(frame.Text)
		if err != nil {
			return err
		}
		switch d.kind {
		case directiveSetCollection:
			if d.arg == "" {
				return o.send(ctx, emit, assistant.ErrorEvent(msgEmptyCollection))
			}
			sess.SetCollection(d.arg)
			log.Printf("[pipeline] session=%s collection=%s", sess.ID, d.arg)
			return nil
		case directiveAsk:
			if d.arg == "" {
				return o.send(ctx, emit, assistant.ErrorEvent(msgEmptyQuestion))
			}
			return o.runTurn(ctx, sess, emit, turnInput{query: d.arg})
		}
	}
	return fmt.Errorf("%w: unknown frame kind %d", ErrProtocol, frame.Kind)
}

type turnInput struct {
	isAudio bool
	audio   []byte
	query   string
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *session.Session, emit Emitter, in turnInput) (err error) {
	turn := assistant.Turn{Seq: sess.NextTurn(), Query: in.query}
	outcome := OutcomeAnswered
	defer func() {
		sess.SetState(session.StateIdle)
		if err != nil {
			outcome = OutcomeAborted
		}
		o.deps.Recorder.ObserveTurn(outcome)
	}()

	collection := sess.Collection()
	if collection == "" {
		collection = o.cfg.DefaultCollection
	}
	if collection == "" {
		outcome = OutcomeRejected
		return o.send(ctx, emit, assistant.ErrorEvent(msgNoCollection))
	}

	if in.isAudio {
		query, err := o.transcribe(ctx, sess, in.audio)
		if err != nil {
			if ctx.Err() != nil {
				return closed(ctx.Err())
			}
			outcome = OutcomeFailed
			log.Printf("[pipeline] session=%s turn=%d: %v", sess.ID, turn.Seq, err)
			return o.send(ctx, emit, assistant.ErrorEvent(clientMessage(err)))
		}
		if query == "" {
			outcome = OutcomeDiscarded
			log.Printf("[pipeline] session=%s turn=%d: empty transcript, discarded", sess.ID, turn.Seq)
			return nil
		}
		turn.Query = query

		if o.cfg.EmitTranscript {
			if err := o.send(ctx, emit, assistant.TranscriptEvent(query)); err != nil {
				return err
			}
		}
	}

	if err := o.send(ctx, emit, assistant.UserEvent(turn.Query)); err != nil {
		return err
	}

	turn.RetrievedContext = o.retrieve(ctx, sess, turn.Query, collection)
	if ctx.Err() != nil {
		return closed(ctx.Err())
	}
	grounding := sess.Memory.Combine(turn.RetrievedContext)

	answer, err := runStage(ctx, o, sess, session.StateGenerating, o.cfg.GenerateTimeout, func(ctx context.Context) (string, error) {
		return o.deps.Generator.Generate(ctx, turn.Query, grounding)
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty answer")
	}
	if err != nil {
		if ctx.Err() != nil {
			return closed(ctx.Err())
		}
		outcome = OutcomeFailed
		log.Printf("[pipeline] session=%s turn=%d: %v", sess.ID, turn.Seq, fmt.Errorf("%w: %w", ErrGenerationFailure, err))
		return o.send(ctx, emit, assistant.ErrorEvent(msgGeneration))
	}
	turn.Answer = strings.TrimSpace(answer)

	sess.Memory.Record(turn.RetrievedContext, turn.Answer)

	turn.Audio, turn.AudioFormat = o.synthesize(ctx, sess, turn.Answer)
	if ctx.Err() != nil {
		return closed(ctx.Err())
	}

	if err := o.send(ctx, emit, assistant.AssistantEvent(turn.Answer, turn.Audio, turn.AudioFormat)); err != nil {
		return err
	}

	o.archive(ctx, sess, turn, in.audio)
	log.Printf("[pipeline] session=%s turn=%d answered grounded=%t audio=%d", sess.ID, turn.Seq, turn.Grounded(), len(turn.Audio))
	return nil
}

// transcribe runs the two audio stages and returns the trimmed transcript.
func (o *Orchestrator) transcribe(ctx context.Context, sess *session.Session, chunk []byte) (string, error) {
	if o.deps.Transcoder == nil || o.deps.Transcriber == nil {
		return "", fmt.Errorf("%w: speech input is not configured", ErrTranscriptionFailure)
	}
	if len(chunk) == 0 {
		return "", fmt.Errorf("%w: empty audio frame", ErrTranscodeFailure)
	}

	pcm, err := runStage(ctx, o, sess, session.StateTranscoding, o.cfg.TranscodeTimeout, func(ctx context.Context) ([]byte, error) {
		return o.deps.Transcoder.Transcode(ctx, chunk)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscodeFailure, err)
	}

	text, err := runStage(ctx, o, sess, session.StateTranscribing, o.cfg.TranscribeTimeout, func(ctx context.Context) (string, error) {
		return o.deps.Transcriber.Transcribe(ctx, sess.ID, pcm)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailure, err)
	}
	return strings.TrimSpace(text), nil
}

// retrieve returns the space-joined passages, or "" when retrieval is
// unavailable or fails.
func (o *Orchestrator) retrieve(ctx context.Context, sess *session.Session, query, collection string) string {
	if o.deps.Retriever == nil {
		o.deps.Recorder.ObserveDegraded(session.StateRetrieving.String())
		return ""
	}

	passages, err := runStage(ctx, o, sess, session.StateRetrieving, o.cfg.RetrieveTimeout, func(ctx context.Context) ([]string, error) {
		return o.deps.Retriever.Retrieve(ctx, query, collection)
	})
	if err != nil {
		if ctx.Err() == nil {
			o.deps.Recorder.ObserveDegraded(session.StateRetrieving.String())
			log.Printf("[pipeline] session=%s: %v, continuing without context", sess.ID, fmt.Errorf("%w: %w", ErrRetrievalFailure, err))
		}
		return ""
	}
	return strings.TrimSpace(strings.Join(passages, " "))
}

// synthesize returns the answer audio, or nil when synthesis is
// unavailable or fails.
func (o *Orchestrator) synthesize(ctx context.Context, sess *session.Session, answer string) ([]byte, string) {
	if o.deps.Synthesizer == nil {
		return nil, ""
	}

	type synthResult struct {
		audio  []byte
		format string
	}
	res, err := runStage(ctx, o, sess, session.StateSynthesizing, o.cfg.SynthesizeTimeout, func(ctx context.Context) (synthResult, error) {
		audio, format, err := o.deps.Synthesizer.Synthesize(ctx, sess.ID, answer)
		return synthResult{audio: audio, format: format}, err
	})
	if err != nil {
		if ctx.Err() == nil {
			o.deps.Recorder.ObserveDegraded(session.StateSynthesizing.String())
			log.Printf("[pipeline] session=%s: %v, sending text only", sess.ID, fmt.Errorf("%w: %w", ErrSynthesisFailure, err))
		}
		return nil, ""
	}
	return res.audio, res.format
}

func (o *Orchestrator) archive(ctx context.Context, sess *session.Session, turn assistant.Turn, inbound []byte) {
	if o.deps.Archiver == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ArchiveTimeout)
	defer cancel()
	if err := o.deps.Archiver.Archive(archiveCtx, sess.ID, turn, inbound); err != nil {
		log.Printf("[pipeline] session=%s turn=%d archive failed: %v", sess.ID, turn.Seq, err)
	}
}

// send emits ev unless the session is already over.
func (o *Orchestrator) send(ctx context.Context, emit Emitter, ev assistant.Event) error {
	if err := ctx.Err(); err != nil {
		return closed(err)
	}
	if err := emit.Emit(ctx, ev); err != nil {
		return closed(err)
	}
	return nil
}

// runStage moves sess into state and runs fn under its own deadline.
func runStage[T any](ctx context.Context, o *Orchestrator, sess *session.Session, state session.State, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	sess.SetState(state)

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := fn(stageCtx)
	if err == nil && stageCtx.Err() != nil {
		err = stageCtx.Err()
	}
	o.deps.Recorder.ObserveStage(state.String(), time.Since(start), err)
	return v, err
}

func closed(err error) error {
	return fmt.Errorf("%w: %w", ErrTransportClosed, err)
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrTranscodeFailure):
		return msgTranscode
	case errors.Is(err, ErrTranscriptionFailure):
		return msgTranscription
	default:
		return msgGeneration
	}
}
