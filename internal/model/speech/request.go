package speech

// ASRRequest 语音识别请求，AudioData 为单声道 16-bit 小端 PCM
type ASRRequest struct {
	SessionID  string `json:"sessionId"`
	AudioData  []byte `json:"-"`
	SampleRate int    `json:"sampleRate"`
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Voice     string `json:"voice"` // 为空时使用配置中的 VoiceID
}
