package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const openAIWhisperCommand = "whisper"

// OpenAIEngine drives the reference Python implementation through its
// `whisper` console script. Models are fetched and cached by the script.
type OpenAIEngine struct {
	Executable string
	Progress   io.Writer
	Logger     *zap.Logger
}

func NewOpenAIEngine(executable string, logger *zap.Logger) (*OpenAIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(executable); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("openai-whisper path is not executable: %w", err)
		}
		return &OpenAIEngine{Executable: override, Logger: logger}, nil
	}

	path, err := exec.LookPath(openAIWhisperCommand)
	if err != nil {
		return nil, fmt.Errorf("openai-whisper not found on PATH; install it with `pip install openai-whisper` or set VOXJSON_OPENAI_WHISPER_PATH: %w", err)
	}

	return &OpenAIEngine{Executable: path, Logger: logger}, nil
}

func (o *OpenAIEngine) Name() string {
	return EngineOpenAIWhisper
}

func (o *OpenAIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return Result{}, errors.New("model is required")
	}

	scratch, err := makeScratchDir()
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(scratch)

	args := append([]string{req.AudioPath, "--model", req.Model}, openAIDecodeArgs(req.Language, req.Options)...)
	args = append(args, "--output_format", "json", "--output_dir", scratch)

	cmd := exec.CommandContext(ctx, o.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = progressWriter(o.Progress)
	cmd.Stderr = io.MultiWriter(&stderr, progressWriter(o.Progress))

	o.log().Debug("running openai-whisper", zap.String("engine", o.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("openai-whisper transcribe failed: %w (%s)", err, lastLine(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	content, err := os.ReadFile(filepath.Join(scratch, base+".json"))
	if err != nil {
		return Result{}, fmt.Errorf("read openai-whisper output: %w", err)
	}

	return parseOpenAIOutput(content)
}

func (o *OpenAIEngine) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func openAIDecodeArgs(language string, opts DecodeOptions) []string {
	task := opts.Task
	if task == "" {
		task = TaskTranscribe
	}

	args := []string{
		"--task", task,
		"--verbose", pyBool(opts.Verbose),
		"--word_timestamps", pyBool(opts.WordTimestamps),
		"--condition_on_previous_text", pyBool(opts.ConditionOnPreviousText),
		"--temperature", formatArg(opts.Temperature),
		"--compression_ratio_threshold", formatArg(opts.CompressionRatioThreshold),
		"--logprob_threshold", formatArg(opts.LogProbThreshold),
		"--no_speech_threshold", formatArg(opts.NoSpeechThreshold),
	}

	lang := strings.TrimSpace(language)
	if lang != "" && lang != "auto" {
		args = append(args, "--language", lang)
	}
	if opts.NoTemperatureFallback {
		args = append(args, "--temperature_increment_on_fallback", "None")
	}
	if prompt := strings.TrimSpace(opts.InitialPrompt); prompt != "" {
		args = append(args, "--initial_prompt", prompt)
	}
	if opts.PrependPunctuations != "" {
		args = append(args, "--prepend_punctuations", opts.PrependPunctuations)
	}
	if opts.AppendPunctuations != "" {
		args = append(args, "--append_punctuations", opts.AppendPunctuations)
	}

	return args
}

type openAIOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

func parseOpenAIOutput(content []byte) (Result, error) {
	var out openAIOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return Result{}, fmt.Errorf("parse openai-whisper output: %w", err)
	}

	result := Result{
		Language: out.Language,
		Segments: make([]Segment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		segment := Segment{Start: s.Start, End: s.End, Text: s.Text}
		for _, w := range s.Words {
			segment.Words = append(segment.Words, Word{Start: w.Start, End: w.End, Text: w.Word, Probability: w.Probability})
		}
		result.Segments = append(result.Segments, segment)
	}

	return result, nil
}

// pyBool renders the only two spellings the script's argument parser accepts.
func pyBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
