package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/voxjson/internal/download"
	"github.com/fmueller/voxjson/internal/transcript"
	"github.com/fmueller/voxjson/internal/whisper"
	"go.uber.org/zap"
)

func (a *appState) runTranscribe(ctx context.Context, audioPath string, out io.Writer) error {
	req := transcript.Request{AudioPath: audioPath, Model: a.model, Language: a.language}
	if err := req.Validate(); err != nil {
		a.log().Debug("rejecting request", zap.Error(err))
		if encodeErr := transcript.Encode(out, transcript.Failed(err), 0); encodeErr != nil {
			return encodeErr
		}
		return &ExitError{Code: 1, Err: err}
	}

	result := a.transcribe(ctx, req)
	return a.writeResult(out, result)
}

// transcribe never fails: load and decode errors become a failed result.
func (a *appState) transcribe(ctx context.Context, req transcript.Request) transcript.Result {
	engine, modelRef, err := a.loadModel(ctx)
	if err != nil {
		a.log().Warn("model load failed", zap.String("model", req.Model), zap.Error(err))
		return transcript.Failed(&transcript.DecodeError{Err: err})
	}

	a.log().Info("transcribing...",
		zap.String("audio", req.AudioPath),
		zap.String("engine", engine.Name()),
		zap.String("model", modelRef),
		zap.String("language", req.Language),
	)
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	native, err := engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: req.AudioPath,
		Model:     modelRef,
		Language:  req.Language,
		Options:   whisper.DefaultDecodeOptions(),
	})
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return transcript.Failed(&transcript.DecodeError{Err: err})
	}

	result := transcript.Format(native, req.Language)
	a.log().Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("segments", len(result.Segments)),
		zap.String("language", result.Language),
	)
	if len(result.Segments) == 0 {
		a.log().Warn(noSpeechHint())
	}

	return result
}

// loadModel picks the engine and resolves what it should load. whisper-cli
// needs a ggml file on disk; openai-whisper takes the model name as given.
func (a *appState) loadModel(ctx context.Context) (whisper.Engine, string, error) {
	newEngine := a.newEngineFn
	if newEngine == nil {
		newEngine = whisper.NewEngine
	}

	engine, err := newEngine(a.engine, whisper.EngineOptions{
		WhisperCLIPath:    a.whisperCLIPath,
		OpenAIWhisperPath: a.openAIWhisperPath,
		Progress:          a.engineProgress(),
		Logger:            a.log(),
	})
	if err != nil {
		return nil, "", err
	}

	if engine.Name() != whisper.EngineWhisperCLI {
		return engine, a.model, nil
	}

	model, err := a.ensureModelAvailable(ctx)
	if err != nil {
		return nil, "", err
	}
	return engine, model.Path, nil
}

func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(a.model, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.autoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `voxjson setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	downloadFn := a.downloadFn
	if downloadFn == nil {
		downloadFn = download.DownloadFile
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := downloadFn(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		ChecksumURL:    resolved.SHA256URL,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (a *appState) writeResult(out io.Writer, result transcript.Result) error {
	if a.output == "" {
		return transcript.Encode(out, result, 2)
	}

	if err := writeResultFile(a.output, result); err != nil {
		return fmt.Errorf("write result to %s: %w", a.output, err)
	}
	a.log().Debug("result written", zap.String("path", a.output), zap.Bool("success", result.Success()))
	fmt.Fprintf(out, "Result saved to %s\n", a.output)
	return nil
}

func writeResultFile(path string, result transcript.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := transcript.Encode(f, result, 2); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func noSpeechHint() string {
	return "No speech detected. Check that the audio file contains speech and that --language matches it."
}
