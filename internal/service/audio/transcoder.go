package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultSampleRate is the canonical PCM rate handed to speech recognition.
const DefaultSampleRate = 16000

var (
	// ErrEmptyChunk is returned for zero-length input.
	ErrEmptyChunk = errors.New("audio chunk is empty")
	// ErrNoAudio is returned when ffmpeg exits cleanly but decodes nothing.
	ErrNoAudio = errors.New("transcoder produced no audio")
)

// Transcoder converts one compressed chunk (webm/opus, ogg, mp3, wav...)
// into canonical PCM.
type Transcoder struct {
	Binary     string
	SampleRate int
	TempDir    string
	Timeout    time.Duration
}

// NewTranscoder fills in defaults for empty values.
func NewTranscoder(binary string, sampleRate int, tempDir string, timeout time.Duration) *Transcoder {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Transcoder{
		Binary:     binary,
		SampleRate: sampleRate,
		TempDir:    tempDir,
		Timeout:    timeout,
	}
}

// Transcode runs ffmpeg over chunk and returns raw s16le mono PCM.
func (t *Transcoder) Transcode(ctx context.Context, chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, ErrEmptyChunk
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(t.TempDir, "transcode-*")
	if err != nil {
		return nil, fmt.Errorf("create transcode dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Printf("[transcode] cleanup %s failed: %v", dir, rmErr)
		}
	}()

	inPath := filepath.Join(dir, "input.webm")
	outPath := filepath.Join(dir, "output.pcm")

	if err := os.WriteFile(inPath, chunk, 0o600); err != nil {
		return nil, fmt.Errorf("write transcode input: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.Binary, t.args(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// The process is killed on ctx expiry; WaitDelay stops Wait from
	// blocking on descendants that still hold stderr.
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read transcode output: %w", err)
	}
	if len(pcm) < 2 {
		return nil, ErrNoAudio
	}

	// s16le samples are two bytes wide; a dangling byte is noise.
	pcm = pcm[:len(pcm)&^1]
	log.Printf("[transcode] %d bytes -> %s of pcm at %d Hz", len(chunk), PCMDuration(pcm, t.SampleRate), t.SampleRate)
	return pcm, nil
}

func (t *Transcoder) args(inPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(t.SampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		outPath,
	}
}

// PCMDuration reports how long a mono s16le buffer plays at sampleRate.
func PCMDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
