package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/sethvargo/go-envconfig"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Pipeline   PipelineConfig
	Transcoder TranscoderConfig
	Speech     SpeechConfig
	Retrieval  RetrievalConfig
	Archive    ArchiveConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{Server: server, AI: ai}

	ctx := context.Background()
	sections := []struct {
		name   string
		target any
	}{
		{"pipeline", &cfg.Pipeline},
		{"transcoder", &cfg.Transcoder},
		{"speech", &cfg.Speech},
		{"retrieval", &cfg.Retrieval},
		{"archive", &cfg.Archive},
	}
	for _, section := range sections {
		if err := envconfig.Process(ctx, section.target); err != nil {
			return nil, fmt.Errorf("load %s config: %w", section.name, err)
		}
	}

	if err := cfg.Pipeline.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	GeminiAPIKey string
	GeminiModel  string
}

// Enabled 表示当前 provider 是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != "" && c.GeminiModel != ""
	default:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
}

// NewChatModel 使用 Ark 配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))
	if provider != ProviderArk && provider != ProviderGemini {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q: want %s or %s", provider, ProviderArk, ProviderGemini)
	}

	return AIConfig{
		Provider:     provider,
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash-lite"),
	}, nil
}

// PipelineConfig 描述实时会话流水线的行为与各阶段超时。
type PipelineConfig struct {
	// DefaultCollection 为空时客户端必须先发送 SET_COLLECTION。
	DefaultCollection string `env:"PIPELINE_DEFAULT_COLLECTION"`
	EmitTranscript    bool   `env:"PIPELINE_EMIT_TRANSCRIPT, default=false"`
	TopK              int    `env:"PIPELINE_TOP_K, default=3"`

	MemoryMaxChars   int `env:"PIPELINE_MEMORY_MAX_CHARS, default=8000"`
	MemoryMaxEntries int `env:"PIPELINE_MEMORY_MAX_ENTRIES, default=16"`

	TranscodeTimeout  time.Duration `env:"PIPELINE_TRANSCODE_TIMEOUT, default=15s"`
	TranscribeTimeout time.Duration `env:"PIPELINE_TRANSCRIBE_TIMEOUT, default=30s"`
	RetrieveTimeout   time.Duration `env:"PIPELINE_RETRIEVE_TIMEOUT, default=10s"`
	GenerateTimeout   time.Duration `env:"PIPELINE_GENERATE_TIMEOUT, default=60s"`
	SynthesizeTimeout time.Duration `env:"PIPELINE_SYNTHESIZE_TIMEOUT, default=30s"`

	MaxFrameBytes int64         `env:"PIPELINE_MAX_FRAME_BYTES, default=10485760"`
	ReadTimeout   time.Duration `env:"PIPELINE_READ_TIMEOUT, default=60s"`
	IdleTimeout   time.Duration `env:"PIPELINE_IDLE_TIMEOUT, default=10m"`
}

func (c PipelineConfig) validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("invalid PIPELINE_TOP_K value %d: must be >= 1", c.TopK)
	}
	if c.MemoryMaxChars < 0 || c.MemoryMaxEntries < 0 {
		return fmt.Errorf("memory bounds must not be negative")
	}
	timeouts := map[string]time.Duration{
		"PIPELINE_TRANSCODE_TIMEOUT":  c.TranscodeTimeout,
		"PIPELINE_TRANSCRIBE_TIMEOUT": c.TranscribeTimeout,
		"PIPELINE_RETRIEVE_TIMEOUT":   c.RetrieveTimeout,
		"PIPELINE_GENERATE_TIMEOUT":   c.GenerateTimeout,
		"PIPELINE_SYNTHESIZE_TIMEOUT": c.SynthesizeTimeout,
		"PIPELINE_READ_TIMEOUT":       c.ReadTimeout,
	}
	for key, value := range timeouts {
		if value <= 0 {
			return fmt.Errorf("invalid %s value %s: must be positive", key, value)
		}
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("invalid PIPELINE_MAX_FRAME_BYTES value %d", c.MaxFrameBytes)
	}
	return nil
}

// TranscoderConfig 描述 ffmpeg 转码配置。
type TranscoderConfig struct {
	FFmpegPath string `env:"FFMPEG_PATH, default=ffmpeg"`
	SampleRate int    `env:"TRANSCODE_SAMPLE_RATE, default=16000"`
	TempDir    string `env:"TRANSCODE_TEMP_DIR"`
}

// SpeechConfig 描述语音识别 (Vosk) 与语音合成 (ElevenLabs) 配置。
type SpeechConfig struct {
	VoskURL string `env:"VOSK_URL, default=ws://localhost:2700"`

	ElevenLabsAPIKey  string  `env:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL string  `env:"ELEVENLABS_BASE_URL, default=https://api.elevenlabs.io"`
	VoiceID           string  `env:"ELEVENLABS_VOICE_ID, default=siw1N9V8LmYeEWKyWBxv"`
	ModelID           string  `env:"ELEVENLABS_MODEL_ID, default=eleven_multilingual_v2"`
	OutputFormat      string  `env:"ELEVENLABS_OUTPUT_FORMAT, default=mp3_44100_128"`
	Stability         float64 `env:"ELEVENLABS_STABILITY, default=0.7"`
	SimilarityBoost   float64 `env:"ELEVENLABS_SIMILARITY_BOOST, default=0.75"`
}

// TTSEnabled 表示是否配置了语音合成密钥。
func (c SpeechConfig) TTSEnabled() bool {
	return c.ElevenLabsAPIKey != ""
}

// RetrievalConfig 描述向量检索 (Chroma) 与查询向量化配置。
type RetrievalConfig struct {
	ChromaURL      string `env:"CHROMA_URL, default=https://api.trychroma.com"`
	ChromaAPIKey   string `env:"CHROMA_API_KEY"`
	Tenant         string `env:"CHROMA_TENANT, default=default_tenant"`
	Database       string `env:"CHROMA_DATABASE, default=default_database"`
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	EmbeddingModel string `env:"GEMINI_EMBED_MODEL, default=text-embedding-004"`
}

// Enabled 表示检索所需的向量化凭证是否可用。
func (c RetrievalConfig) Enabled() bool {
	return c.ChromaURL != "" && c.GeminiAPIKey != ""
}

// ArchiveConfig 描述可选的 S3 兼容音频归档。
type ArchiveConfig struct {
	Endpoint string `env:"MINIO_ENDPOINT"`
	Username string `env:"MINIO_USERNAME"`
	Password string `env:"MINIO_PASSWORD"`
	Bucket   string `env:"MINIO_BUCKET, default=rag-voice"`
	Secure   bool   `env:"MINIO_SECURE, default=false"`
}

// Enabled 表示是否启用归档。
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
