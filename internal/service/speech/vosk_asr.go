package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zhouzirui/rag-voice/backend/internal/model/speech"
)

const (
	// voskChunkSize 每帧 PCM 字节数（16kHz 单声道约 250ms）
	voskChunkSize     = 8000
	defaultSampleRate = 16000
)

var ErrEmptyAudio = errors.New("no audio data to send")

// VoskASRClient vosk-server WebSocket 客户端
type VoskASRClient struct {
	config *speech.SpeechConfig
	dialer *websocket.Dialer
}

type voskConfigMessage struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// NewVoskASRClient 创建 Vosk 识别客户端
func NewVoskASRClient(config *speech.SpeechConfig) *VoskASRClient {
	return &VoskASRClient{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// TranscribeAudio 将整段 PCM 发送给 vosk-server 并返回最终文本。
// 静音或无法识别时返回空文本且不报错，由调用方决定如何处理。
func (c *VoskASRClient) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req == nil || len(req.AudioData) == 0 {
		return nil, ErrEmptyAudio
	}

	url, err := resolveVoskURL(c.config)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vosk: %w", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接，解除阻塞中的读写
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sampleRate := c.sampleRate(req)

	var cfgMsg voskConfigMessage
	cfgMsg.Config.SampleRate = sampleRate
	if err := conn.WriteJSON(cfgMsg); err != nil {
		return nil, c.wrapErr(ctx, "send vosk config", err)
	}

	var parts []string
	audio := req.AudioData
	for offset := 0; offset < len(audio); offset += voskChunkSize {
		end := offset + voskChunkSize
		if end > len(audio) {
			end = len(audio)
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
			return nil, c.wrapErr(ctx, "send audio chunk", err)
		}

		result, err := readVoskResult(conn)
		if err != nil {
			return nil, c.wrapErr(ctx, "read vosk result", err)
		}
		if text := strings.TrimSpace(result.Text); text != "" {
			parts = append(parts, text)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return nil, c.wrapErr(ctx, "send vosk eof", err)
	}

	final, err := readVoskResult(conn)
	if err != nil {
		return nil, c.wrapErr(ctx, "read vosk final result", err)
	}
	if text := strings.TrimSpace(final.Text); text != "" {
		parts = append(parts, text)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if text == "" {
		log.Printf("[asr] empty transcript for session %s", req.SessionID)
	}

	return &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      text,
		Duration:  pcmMillis(len(audio), sampleRate),
		CreatedAt: time.Now(),
	}, nil
}

func (c *VoskASRClient) sampleRate(req *speech.ASRRequest) int {
	if req.SampleRate > 0 {
		return req.SampleRate
	}
	if c.config != nil && c.config.SampleRate > 0 {
		return c.config.SampleRate
	}
	return defaultSampleRate
}

func (c *VoskASRClient) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func readVoskResult(conn *websocket.Conn) (voskResult, error) {
	var result voskResult
	_, data, err := conn.ReadMessage()
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("malformed vosk message: %w", err)
	}
	return result, nil
}

func pcmMillis(n, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(n/2) * 1000 / int64(sampleRate)
}
