package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zhouzirui/rag-voice/backend/internal/model/speech"
)

func testTTSConfig(baseURL string) *speech.SpeechConfig {
	return &speech.SpeechConfig{
		ElevenLabsAPIKey:  "xi-key",
		ElevenLabsBaseURL: baseURL,
		VoiceID:           "voice-1",
		ModelID:           "eleven_multilingual_v2",
		OutputFormat:      "mp3_44100_128",
		Stability:         0.7,
		SimilarityBoost:   0.75,
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var gotBody elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "mp3_44100_128" {
			t.Errorf("unexpected output_format %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "xi-key" {
			t.Errorf("unexpected api key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body err: %v", err)
		}
		w.Header().Set("request-id", "req-42")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	client := NewElevenLabsTTSClient(testTTSConfig(srv.URL))
	resp, err := client.SynthesizeSpeech(context.Background(), &speech.TTSRequest{SessionID: "s1", Text: "hello there"})
	if err != nil {
		t.Fatalf("SynthesizeSpeech err: %v", err)
	}

	if string(resp.AudioData) != "ID3-audio" || resp.Format != "mp3" || resp.RequestID != "req-42" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	want := elevenLabsRequest{
		Text:          "hello there",
		ModelID:       "eleven_multilingual_v2",
		VoiceSettings: elevenLabsSettings{Stability: 0.7, SimilarityBoost: 0.75},
	}
	if diff := cmp.Diff(want, gotBody); diff != "" {
		t.Fatalf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestElevenLabsRequestVoiceOverride(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	client := NewElevenLabsTTSClient(testTTSConfig(srv.URL))
	if _, err := client.SynthesizeSpeech(context.Background(), &speech.TTSRequest{Text: "hi", Voice: "other"}); err != nil {
		t.Fatalf("SynthesizeSpeech err: %v", err)
	}
	if gotPath != "/v1/text-to-speech/other" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}

func TestElevenLabsErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"detail":"invalid key"}`, wantErr: "invalid key"},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: "500"},
		{name: "empty audio", status: http.StatusOK, body: "", wantErr: "empty audio"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewElevenLabsTTSClient(testTTSConfig(srv.URL))
			_, err := client.SynthesizeSpeech(context.Background(), &speech.TTSRequest{Text: "hi"})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestElevenLabsValidation(t *testing.T) {
	client := NewElevenLabsTTSClient(&speech.SpeechConfig{})
	if _, err := client.SynthesizeSpeech(context.Background(), &speech.TTSRequest{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := client.SynthesizeSpeech(context.Background(), &speech.TTSRequest{Text: "hi"}); !errors.Is(err, ErrTTSNotConfigured) {
		t.Fatalf("expected ErrTTSNotConfigured, got %v", err)
	}
}

func TestServiceSynthesizeAndTTSEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	svc := NewService(testTTSConfig(srv.URL))
	if !svc.TTSEnabled() {
		t.Fatal("expected TTS enabled with api key")
	}
	audio, format, err := svc.Synthesize(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(audio) != "audio" || format != "mp3" {
		t.Fatalf("unexpected synth result %q %q", audio, format)
	}

	if NewService(&speech.SpeechConfig{}).TTSEnabled() {
		t.Fatal("expected TTS disabled without api key")
	}
}
