package speech

import "time"

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// Vosk 识别服务
	VoskURL    string `json:"voskUrl"`    // ws://host:2700
	SampleRate int    `json:"sampleRate"` // 输入 PCM 采样率

	// ElevenLabs 合成服务
	ElevenLabsAPIKey  string  `json:"-"`
	ElevenLabsBaseURL string  `json:"elevenLabsBaseUrl"`
	VoiceID           string  `json:"voiceId"`
	ModelID           string  `json:"modelId"`
	OutputFormat      string  `json:"outputFormat"` // mp3_44100_128 等
	Stability         float64 `json:"stability"`
	SimilarityBoost   float64 `json:"similarityBoost"`

	// 通用配置
	Timeout time.Duration `json:"timeout"`
}
