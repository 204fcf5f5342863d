// Package speech adapts the hosted transcription and synthesis APIs to
// the narrow contract the session controller consumes. Stateless and
// retry-safe; the retry decision itself belongs to the controller.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	openai "github.com/openai/openai-go/v3"

	"github.com/hotaka0908/raspi-voice/internal/fault"
)

type Config struct {
	WhisperModel string
	TTSModel     string
	Voice        string
	Speed        float64
	Language     string
}

type Adapter struct {
	client openai.Client
	cfg    Config
}

func New(client openai.Client, cfg Config) *Adapter {
	return &Adapter{client: client, cfg: cfg}
}

// Transcribe converts WAV audio to text.
func (a *Adapter) Transcribe(ctx context.Context, wav []byte) (string, error) {
	res, err := a.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    openai.AudioModel(a.cfg.WhisperModel),
		File:     openai.File(bytes.NewReader(wav), "speech.wav", "audio/wav"),
		Language: openai.String(a.cfg.Language),
	})
	if err != nil {
		return "", classify("transcribe", err)
	}
	return res.Text, nil
}

// Synthesize renders text as WAV audio.
func (a *Adapter) Synthesize(ctx context.Context, text string) ([]byte, error) {
	res, err := a.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(a.cfg.TTSModel),
		Voice:          openai.AudioSpeechNewParamsVoice(a.cfg.Voice),
		Input:          text,
		Speed:          openai.Float(a.cfg.Speed),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, classify("synthesize", err)
	}
	defer res.Body.Close()

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, classify("synthesize read", err)
	}
	return audio, nil
}

// classify folds provider errors into the shared taxonomy: rate limits,
// server errors and transport failures are retryable, a rejected audio
// payload is not.
func classify(op string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429 || apierr.StatusCode >= 500:
			return fault.New(fault.Transient, fmt.Errorf("%s: %w", op, err))
		case apierr.StatusCode >= 400:
			return fault.New(fault.InvalidInput, fmt.Errorf("%s: %w", op, err))
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return fault.New(fault.Transient, fmt.Errorf("%s: %w", op, err))
	}
	return fault.New(fault.SideEffect, fmt.Errorf("%s: %w", op, err))
}
