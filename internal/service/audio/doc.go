// Package audio normalizes inbound audio chunks into the PCM layout the
// speech recognizer expects: mono, signed 16-bit little-endian, 16 kHz.
//
// Transcoding shells out to ffmpeg. Every invocation runs under a timeout
// and works inside a private temp directory that is removed on every exit
// path, including cancellation.
package audio
