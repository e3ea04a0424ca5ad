package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	EngineAuto          = "auto"
	EngineWhisperCLI    = "whisper-cli"
	EngineOpenAIWhisper = "openai-whisper"
)

type TranscriptionRequest struct {
	AudioPath string
	// Model is a ggml model file for whisper-cli and a model name or
	// checkpoint path for openai-whisper.
	Model    string
	Language string
	Options  DecodeOptions
}

// Result is the decoder's native output before it is reshaped for callers.
type Result struct {
	Language string
	Segments []Segment
}

type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

type Word struct {
	Start       float64
	End         float64
	Text        string
	Probability float64
}

type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req TranscriptionRequest) (Result, error)
}

type EngineOptions struct {
	WhisperCLIPath    string
	OpenAIWhisperPath string
	// Progress receives the decoder's own console output. Nil discards it.
	Progress io.Writer
	Logger   *zap.Logger
}

func EngineNames() []string {
	return []string{EngineAuto, EngineWhisperCLI, EngineOpenAIWhisper}
}

// NewEngine builds the named engine. "auto" prefers the bundled whisper-cli
// and falls back to openai-whisper on PATH.
func NewEngine(name string, opts EngineOptions) (Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case EngineWhisperCLI:
		engine, err := newBundledEngine(opts)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case EngineOpenAIWhisper:
		engine, err := newOpenAIEngine(opts)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case "", EngineAuto:
		bundled, bundledErr := newBundledEngine(opts)
		if bundledErr == nil {
			return bundled, nil
		}
		opts.Logger.Debug("bundled whisper engine unavailable; trying openai-whisper", zap.Error(bundledErr))

		openai, openaiErr := newOpenAIEngine(opts)
		if openaiErr == nil {
			return openai, nil
		}
		return nil, fmt.Errorf("no whisper engine available: %w", errors.Join(bundledErr, openaiErr))
	default:
		return nil, fmt.Errorf("unknown engine %q (known engines: %s)", name, strings.Join(EngineNames(), ", "))
	}
}

func newBundledEngine(opts EngineOptions) (*BundledEngine, error) {
	engine, err := NewBundledEngine(opts.WhisperCLIPath, opts.Logger)
	if err != nil {
		return nil, err
	}
	engine.Progress = opts.Progress
	return engine, nil
}

func newOpenAIEngine(opts EngineOptions) (*OpenAIEngine, error) {
	engine, err := NewOpenAIEngine(opts.OpenAIWhisperPath, opts.Logger)
	if err != nil {
		return nil, err
	}
	engine.Progress = opts.Progress
	return engine, nil
}
