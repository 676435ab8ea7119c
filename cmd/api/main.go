package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zhouzirui/rag-voice/backend/internal/archive"
	"github.com/zhouzirui/rag-voice/backend/internal/config"
	"github.com/zhouzirui/rag-voice/backend/internal/handler"
	"github.com/zhouzirui/rag-voice/backend/internal/handler/assistant"
	"github.com/zhouzirui/rag-voice/backend/internal/metrics"
	speechModel "github.com/zhouzirui/rag-voice/backend/internal/model/speech"
	"github.com/zhouzirui/rag-voice/backend/internal/service/ai"
	"github.com/zhouzirui/rag-voice/backend/internal/service/audio"
	"github.com/zhouzirui/rag-voice/backend/internal/service/pipeline"
	"github.com/zhouzirui/rag-voice/backend/internal/service/rag"
	"github.com/zhouzirui/rag-voice/backend/internal/service/session"
	"github.com/zhouzirui/rag-voice/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(promRegistry)

	// Initialize AI service
	if !cfg.AI.Enabled() {
		log.Fatalf("AI provider %q 凭证未配置，无法启动助手", cfg.AI.Provider)
	}
	aiService, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize AI service: %v", err)
	}
	log.Printf("AI service initialized successfully (provider=%s)", cfg.AI.Provider)

	deps := pipeline.Dependencies{
		Transcoder: audio.NewTranscoder(cfg.Transcoder.FFmpegPath, cfg.Transcoder.SampleRate, cfg.Transcoder.TempDir, cfg.Pipeline.TranscodeTimeout),
		Generator:  aiService,
		Recorder:   appMetrics,
	}
	caps := assistant.Capabilities{
		Provider:          cfg.AI.Provider,
		DefaultCollection: cfg.Pipeline.DefaultCollection,
	}

	// Initialize Speech service
	speechService := speech.NewService(&speechModel.SpeechConfig{
		VoskURL:           cfg.Speech.VoskURL,
		SampleRate:        cfg.Transcoder.SampleRate,
		ElevenLabsAPIKey:  cfg.Speech.ElevenLabsAPIKey,
		ElevenLabsBaseURL: cfg.Speech.ElevenLabsBaseURL,
		VoiceID:           cfg.Speech.VoiceID,
		ModelID:           cfg.Speech.ModelID,
		OutputFormat:      cfg.Speech.OutputFormat,
		Stability:         cfg.Speech.Stability,
		SimilarityBoost:   cfg.Speech.SimilarityBoost,
		Timeout:           cfg.Pipeline.SynthesizeTimeout,
	})
	if cfg.Speech.VoskURL != "" {
		deps.Transcriber = speechService
		caps.SpeechInput = true
		log.Printf("Speech recognition via Vosk at %s", cfg.Speech.VoskURL)
	} else {
		log.Println("VOSK_URL 未配置，仅支持 ASK 文本提问")
	}
	if speechService.TTSEnabled() {
		deps.Synthesizer = speechService
		caps.SpeechOutput = true
		log.Println("Speech synthesis via ElevenLabs enabled")
	} else {
		log.Println("ElevenLabs 凭证未配置，回答将不带音频")
	}

	// Initialize retrieval
	if cfg.Retrieval.Enabled() {
		embedder, err := rag.NewGeminiEmbedder(ctx, cfg.Retrieval.GeminiAPIKey, cfg.Retrieval.EmbeddingModel)
		if err != nil {
			log.Fatalf("failed to initialize embedder: %v", err)
		}
		chroma := rag.NewChromaRetriever(rag.ChromaConfig{
			BaseURL:  cfg.Retrieval.ChromaURL,
			APIKey:   cfg.Retrieval.ChromaAPIKey,
			Tenant:   cfg.Retrieval.Tenant,
			Database: cfg.Retrieval.Database,
			Timeout:  cfg.Pipeline.RetrieveTimeout,
		}, embedder)
		deps.Retriever = rag.NewService(chroma, cfg.Pipeline.TopK)
		caps.Retrieval = true
		log.Printf("Retrieval via Chroma at %s (top_k=%d)", cfg.Retrieval.ChromaURL, cfg.Pipeline.TopK)
	} else {
		log.Println("检索凭证未配置，回答将不带知识库上下文")
	}

	// Initialize turn archive
	if cfg.Archive.Enabled() {
		store, err := archive.NewMinioStorage(cfg.Archive)
		if err != nil {
			log.Fatalf("failed to initialize archive storage: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("failed to ensure archive bucket %q: %v", cfg.Archive.Bucket, err)
		}
		deps.Archiver = archive.NewTurnArchiver(store)
		caps.Archive = true
		log.Printf("Turn archive enabled (bucket=%s)", cfg.Archive.Bucket)
	}

	orchestrator, err := pipeline.New(pipeline.Config{
		DefaultCollection: cfg.Pipeline.DefaultCollection,
		EmitTranscript:    cfg.Pipeline.EmitTranscript,
		TranscodeTimeout:  cfg.Pipeline.TranscodeTimeout,
		TranscribeTimeout: cfg.Pipeline.TranscribeTimeout,
		RetrieveTimeout:   cfg.Pipeline.RetrieveTimeout,
		GenerateTimeout:   cfg.Pipeline.GenerateTimeout,
		SynthesizeTimeout: cfg.Pipeline.SynthesizeTimeout,
	}, deps)
	if err != nil {
		log.Fatalf("failed to initialize pipeline: %v", err)
	}

	registry := session.NewRegistry(session.Limits{
		MaxChars:   cfg.Pipeline.MemoryMaxChars,
		MaxEntries: cfg.Pipeline.MemoryMaxEntries,
	})
	go registry.RunReaper(ctx, reaperInterval(cfg.Pipeline.IdleTimeout), cfg.Pipeline.IdleTimeout, func(ids []string) {
		appMetrics.SessionsReaped.Add(float64(len(ids)))
	})

	assistantHandler := assistant.New(registry, orchestrator, caps, assistant.Options{
		MaxFrameBytes: cfg.Pipeline.MaxFrameBytes,
		ReadTimeout:   cfg.Pipeline.ReadTimeout,
	}, appMetrics)

	router := handler.NewRouter(assistantHandler, promRegistry)

	startServer(ctx, cfg.Server, router)

	if n := registry.CancelAll(); n > 0 {
		log.Printf("cancelled %d open sessions on shutdown", n)
	}
}

// reaperInterval 扫描间隔取空闲超时的一半，最短 1 秒。
func reaperInterval(idle time.Duration) time.Duration {
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("RAG voice assistant listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
