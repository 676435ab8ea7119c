package speech

import (
	"context"
	"strings"

	"github.com/zhouzirui/rag-voice/backend/internal/model/speech"
)

// Service 语音服务核心业务逻辑：Vosk 识别 + ElevenLabs 合成
type Service struct {
	config    *speech.SpeechConfig
	asrClient *VoskASRClient
	ttsClient *ElevenLabsTTSClient
}

// NewService 创建语音服务实例
func NewService(config *speech.SpeechConfig) *Service {
	return &Service{
		config:    config,
		asrClient: NewVoskASRClient(config),
		ttsClient: NewElevenLabsTTSClient(config),
	}
}

// TTSEnabled 是否配置了语音合成
func (s *Service) TTSEnabled() bool {
	return s.config != nil && strings.TrimSpace(s.config.ElevenLabsAPIKey) != ""
}

// TranscribeAudio 语音转文字
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	return s.asrClient.TranscribeAudio(ctx, req)
}

// SynthesizeSpeech 文字转语音
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	return s.ttsClient.SynthesizeSpeech(ctx, req)
}

// Transcribe 识别一段规范化 PCM，返回文本
func (s *Service) Transcribe(ctx context.Context, sessionID string, pcm []byte) (string, error) {
	resp, err := s.TranscribeAudio(ctx, &speech.ASRRequest{
		SessionID:  sessionID,
		AudioData:  pcm,
		SampleRate: s.config.SampleRate,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Synthesize 合成回答音频，返回音频字节与格式
func (s *Service) Synthesize(ctx context.Context, sessionID, text string) ([]byte, string, error) {
	resp, err := s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return nil, "", err
	}
	return resp.AudioData, resp.Format, nil
}
