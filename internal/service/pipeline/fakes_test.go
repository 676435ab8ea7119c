package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/rag-voice/backend/internal/model/assistant"
	"github.com/zhouzirui/rag-voice/backend/internal/service/session"
)

// callLog records the order stages ran in across all fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

type fakeTranscoder struct {
	log *callLog
	err error
}

func (f *fakeTranscoder) Transcode(_ context.Context, chunk []byte) ([]byte, error) {
	f.log.add("transcode")
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("pcm:"), chunk...), nil
}

type fakeTranscriber struct {
	log  *callLog
	text string
	err  error
	// block waits for ctx to end before returning.
	block bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, _ string, _ []byte) (string, error) {
	f.log.add("transcribe")
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

type fakeRetriever struct {
	mu         sync.Mutex
	log        *callLog
	passages   []string
	err        error
	collection string
	calls      int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, collection string) ([]string, error) {
	f.log.add("retrieve")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.collection = collection
	return f.passages, f.err
}

type fakeGenerator struct {
	mu       sync.Mutex
	log      *callLog
	answer   string
	err      error
	contexts []string
	states   []session.State
	sess     *session.Session
	// onGenerate runs inside the generation stage.
	onGenerate func(ctx context.Context) error
}

func (f *fakeGenerator) Generate(ctx context.Context, query, passages string) (string, error) {
	f.log.add("generate")
	f.mu.Lock()
	f.contexts = append(f.contexts, passages)
	if f.sess != nil {
		f.states = append(f.states, f.sess.State())
	}
	f.mu.Unlock()
	if f.onGenerate != nil {
		if err := f.onGenerate(ctx); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	if f.answer != "" {
		return f.answer, nil
	}
	return "answer to " + query, nil
}

type fakeSynthesizer struct {
	log *callLog
	err error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, text string) ([]byte, string, error) {
	f.log.add("synthesize")
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("audio:" + text), "mp3", nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	turns   []assistant.Turn
	inbound [][]byte
}

func (f *fakeArchiver) Archive(_ context.Context, _ string, turn assistant.Turn, inbound []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	f.inbound = append(f.inbound, inbound)
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []assistant.Event
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, ev assistant.Event) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	return nil
}

func (e *recordingEmitter) types() []assistant.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]assistant.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	degraded []string
	failures []string
}

func (r *countingRecorder) ObserveStage(stage string, _ time.Duration, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.failures = append(r.failures, stage)
	r.mu.Unlock()
}

func (r *countingRecorder) ObserveTurn(outcome string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *countingRecorder) ObserveDegraded(stage string) {
	r.mu.Lock()
	r.degraded = append(r.degraded, stage)
	r.mu.Unlock()
}

// harness bundles an orchestrator with its fakes.
type harness struct {
	log         *callLog
	transcoder  *fakeTranscoder
	transcriber *fakeTranscriber
	retriever   *fakeRetriever
	generator   *fakeGenerator
	synthesizer *fakeSynthesizer
	archiver    *fakeArchiver
	recorder    *countingRecorder
	registry    *session.Registry
	cfg         Config
}

func newHarness() *harness {
	log := &callLog{}
	return &harness{
		log:         log,
		transcoder:  &fakeTranscoder{log: log},
		transcriber: &fakeTranscriber{log: log, text: "what is X"},
		retriever:   &fakeRetriever{log: log, passages: []string{"X is", "a letter"}},
		generator:   &fakeGenerator{log: log},
		synthesizer: &fakeSynthesizer{log: log},
		archiver:    &fakeArchiver{},
		recorder:    &countingRecorder{},
		registry:    session.NewRegistry(session.Limits{}),
		cfg: Config{
			TranscodeTimeout:  time.Second,
			TranscribeTimeout: time.Second,
			RetrieveTimeout:   time.Second,
			GenerateTimeout:   time.Second,
			SynthesizeTimeout: time.Second,
		},
	}
}

func (h *harness) build() *Orchestrator {
	o, err := New(h.cfg, Dependencies{
		Transcoder:  h.transcoder,
		Transcriber: h.transcriber,
		Retriever:   h.retriever,
		Generator:   h.generator,
		Synthesizer: h.synthesizer,
		Archiver:    h.archiver,
		Recorder:    h.recorder,
	})
	if err != nil {
		panic(err)
	}
	return o
}

func (h *harness) newSession(collection string) *session.Session {
	sess := h.registry.Create(nil)
	if collection != "" {
		sess.SetCollection(collection)
	}
	h.generator.sess = sess
	return sess
}

var errBoom = errors.New("boom")
