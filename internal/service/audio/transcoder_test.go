package audio

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeStub installs a fake ffmpeg. The body sees ffmpeg's argv; the
// output path is always the last argument.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub err: %v", err)
	}
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir err: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be cleaned, found %d entries", len(entries))
	}
}

func TestTranscodeProducesPCMAndCleansUp(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	stub := writeStub(t, `echo "$@" > "`+argsFile+`"
printf 'abcdefg' > "$last"`)
	work := t.TempDir()

	tc := NewTranscoder(stub, 16000, work, 5*time.Second)
	pcm, err := tc.Transcode(context.Background(), []byte("webm-bytes"))
	if err != nil {
		t.Fatalf("Transcode err: %v", err)
	}

	if string(pcm) != "abcdef" {
		t.Fatalf("expected odd trailing byte to be dropped, got %q", pcm)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args err: %v", err)
	}
	for _, want := range []string{"-ac 1", "-ar 16000", "-f s16le"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("expected ffmpeg args to contain %q, got %s", want, args)
		}
	}

	assertEmptyDir(t, work)
}

func TestTranscodeLogsPlaybackDuration(t *testing.T) {
	// 8000 bytes of s16le at 8 kHz is half a second.
	stub := writeStub(t, `head -c 8000 /dev/zero > "$last"`)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	tc := NewTranscoder(stub, 8000, t.TempDir(), 5*time.Second)
	pcm, err := tc.Transcode(context.Background(), []byte("webm-bytes"))
	if err != nil {
		t.Fatalf("Transcode err: %v", err)
	}
	if len(pcm) != 8000 {
		t.Fatalf("unexpected pcm length %d", len(pcm))
	}
	if !strings.Contains(buf.String(), "500ms of pcm at 8000 Hz") {
		t.Fatalf("expected duration in transcode log, got %q", buf.String())
	}
}

func TestTranscodeFailureCleansUp(t *testing.T) {
	stub := writeStub(t, `echo "Invalid data found when processing input" >&2
exit 1`)
	work := t.TempDir()

	tc := NewTranscoder(stub, 16000, work, 5*time.Second)
	_, err := tc.Transcode(context.Background(), []byte("garbage"))
	if err == nil {
		t.Fatal("expected transcode error")
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected ffmpeg stderr in error, got %v", err)
	}

	assertEmptyDir(t, work)
}

func TestTranscodeTimeoutCleansUp(t *testing.T) {
	stub := writeStub(t, `exec sleep 5`)
	work := t.TempDir()

	tc := NewTranscoder(stub, 16000, work, 100*time.Millisecond)
	start := time.Now()
	_, err := tc.Transcode(context.Background(), []byte("chunk"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("transcode did not honour timeout, took %s", elapsed)
	}

	assertEmptyDir(t, work)
}

func TestTranscodeCancellationCleansUp(t *testing.T) {
	stub := writeStub(t, `exec sleep 5`)
	work := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	tc := NewTranscoder(stub, 16000, work, 0)
	if _, err := tc.Transcode(ctx, []byte("chunk")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}

	assertEmptyDir(t, work)
}

func TestTranscodeRejectsEmptyChunk(t *testing.T) {
	tc := NewTranscoder("ffmpeg", 0, t.TempDir(), time.Second)
	if _, err := tc.Transcode(context.Background(), nil); !errors.Is(err, ErrEmptyChunk) {
		t.Fatalf("expected ErrEmptyChunk, got %v", err)
	}
}

func TestTranscodeEmptyOutput(t *testing.T) {
	stub := writeStub(t, `: > "$last"`)
	tc := NewTranscoder(stub, 16000, t.TempDir(), time.Second)
	if _, err := tc.Transcode(context.Background(), []byte("chunk")); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}

func TestPCMDuration(t *testing.T) {
	pcm := make([]byte, 2*16000*2)
	if got := PCMDuration(pcm, 16000); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := PCMDuration(pcm, 0); got != 0 {
		t.Fatalf("expected 0 for invalid rate, got %s", got)
	}
}
