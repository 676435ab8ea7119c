package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/rag-voice/backend/internal/model/speech"
)

const defaultElevenLabsBaseURL = "https://api.elevenlabs.io"

var ErrEmptyText = errors.New("TTS text is empty")

// ElevenLabsTTSClient ElevenLabs HTTP 合成客户端
type ElevenLabsTTSClient struct {
	config     *speech.SpeechConfig
	httpClient *http.Client
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id,omitempty"`
	VoiceSettings elevenLabsSettings `json:"voice_settings"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewElevenLabsTTSClient 创建 ElevenLabs 客户端
func NewElevenLabsTTSClient(config *speech.SpeechConfig) *ElevenLabsTTSClient {
	timeout := 30 * time.Second
	if config != nil && config.Timeout > 0 {
		timeout = config.Timeout
	}
	return &ElevenLabsTTSClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SynthesizeSpeech 调用 text-to-speech 接口，返回完整音频
func (c *ElevenLabsTTSClient) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	apiKey, err := resolveElevenLabsKey(c.config)
	if err != nil {
		return nil, err
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.config.VoiceID
	}
	if voice == "" {
		return nil, fmt.Errorf("TTS voice id is empty")
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: c.config.ModelID,
		VoiceSettings: elevenLabsSettings{
			Stability:       c.config.Stability,
			SimilarityBoost: c.config.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(voice), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build TTS request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("TTS API error %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("TTS returned empty audio")
	}

	return &speech.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    c.format(),
		RequestID: resp.Header.Get("request-id"),
		CreatedAt: time.Now(),
	}, nil
}

func (c *ElevenLabsTTSClient) endpoint(voice string) string {
	base := strings.TrimRight(strings.TrimSpace(c.config.ElevenLabsBaseURL), "/")
	if base == "" {
		base = defaultElevenLabsBaseURL
	}
	endpoint := base + "/v1/text-to-speech/" + url.PathEscape(voice)
	if format := strings.TrimSpace(c.config.OutputFormat); format != "" {
		endpoint += "?output_format=" + url.QueryEscape(format)
	}
	return endpoint
}

// format 从 output_format（如 mp3_44100_128）提取容器名
func (c *ElevenLabsTTSClient) format() string {
	format := strings.TrimSpace(c.config.OutputFormat)
	if format == "" {
		return "mp3"
	}
	if idx := strings.IndexByte(format, '_'); idx > 0 {
		return format[:idx]
	}
	return format
}
