// Package transcription turns uploaded call recordings into meeting records.
// Audio lands in object storage via the webhook intake, a queue task carries
// the recording id, and the local whisper.cpp engine produces the transcript
// that is then ingested through the regular parse pipeline.
package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/wav"

	"dealdesk_backend/platform/logger"
)

// Engine converts one audio stream into transcript text.
type Engine interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// WhisperEngine runs a local whisper.cpp model. The model is loaded once and
// kept resident; runs are serialized because a context pins model memory for
// the whole inference.
type WhisperEngine struct {
	model whisper.Model
	mu    sync.Mutex
	log   *logger.Logger
}

// NewWhisperEngine loads the model file at modelPath.
func NewWhisperEngine(modelPath string, log *logger.Logger) (*WhisperEngine, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %s: %w", modelPath, err)
	}
	log.Info("whisper model loaded", "path", modelPath, "multilingual", model.IsMultilingual())
	return &WhisperEngine{model: model, log: log}, nil
}

// Close releases the model memory.
func (e *WhisperEngine) Close() error {
	if e.model == nil {
		return nil
	}
	return e.model.Close()
}

// Transcribe decodes the WAV stream and runs inference. Recordings must be
// 16 kHz mono PCM; anything else is a permanent handoff error, not a
// transient one.
func (e *WhisperEngine) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	raw, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	samples, err := decodeWAV(raw)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper context: %w", err)
	}
	if e.model.IsMultilingual() {
		if err := wctx.SetLanguage("auto"); err != nil {
			return "", fmt.Errorf("whisper language: %w", err)
		}
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var sb strings.Builder
	for {
		segment, segErr := wctx.NextSegment()
		if segErr != nil {
			break
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// decodeWAV converts 16 kHz mono PCM WAV bytes into the float32 samples the
// model expects.
func decodeWAV(raw []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if int(dec.SampleRate) != whisper.SampleRate {
		return nil, fmt.Errorf("unsupported sample rate %d, want %d", dec.SampleRate, whisper.SampleRate)
	}
	if dec.NumChans != 1 {
		return nil, fmt.Errorf("unsupported channel count %d, want mono", dec.NumChans)
	}
	return buf.AsFloat32Buffer().Data, nil
}
