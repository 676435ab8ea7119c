package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/zhouzirui/rag-voice/backend/internal/model/speech"
)

var (
	ErrASRNotConfigured = errors.New("语音识别服务未配置 (VOSK_URL)")
	ErrTTSNotConfigured = errors.New("语音合成服务未配置 (ELEVENLABS_API_KEY)")
)

// resolveVoskURL 返回规范化后的 Vosk 地址，缺失时给出明确错误。
func resolveVoskURL(cfg *speechmodel.SpeechConfig) (string, error) {
	if cfg == nil {
		return "", ErrASRNotConfigured
	}
	url := strings.TrimSpace(cfg.VoskURL)
	if url == "" {
		return "", ErrASRNotConfigured
	}
	return url, nil
}

// resolveElevenLabsKey 返回 ElevenLabs API Key。
func resolveElevenLabsKey(cfg *speechmodel.SpeechConfig) (string, error) {
	if cfg == nil {
		return "", ErrTTSNotConfigured
	}
	key := strings.TrimSpace(cfg.ElevenLabsAPIKey)
	if key == "" {
		return "", ErrTTSNotConfigured
	}
	return key, nil
}
