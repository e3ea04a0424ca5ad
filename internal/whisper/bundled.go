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
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BundledEngine drives the whisper.cpp command line tool shipped next to the
// voxjson binary.
type BundledEngine struct {
	Executable string
	Progress   io.Writer
	Logger     *zap.Logger
}

// NewBundledEngine uses executable when given, otherwise it looks for the
// engine relative to the running voxjson binary.
func NewBundledEngine(executable string, logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(executable); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("whisper-cli path is not executable: %w", err)
		}
		return &BundledEngine{Executable: override, Logger: logger}, nil
	}

	selfExe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve voxjson executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(selfExe)
	if err != nil {
		return nil, err
	}

	return &BundledEngine{Executable: whisperExe, Logger: logger}, nil
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("bundled whisper engine not found near %s; set VOXJSON_WHISPER_PATH or install whisper-cli at ../libexec/whisper/%s", selfExecutable, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Name() string {
	return EngineWhisperCLI
}

func (b *BundledEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return Result{}, errors.New("model path is required")
	}

	if err := ensureExecutable(b.Executable); err != nil {
		return Result{}, fmt.Errorf("bundled whisper engine missing or not executable: %w", err)
	}

	scratch, err := makeScratchDir()
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(scratch)

	outBase := filepath.Join(scratch, "transcript")
	args := append([]string{"-m", req.Model, "-f", req.AudioPath, "-of", outBase}, bundledDecodeArgs(req.Language, req.Options)...)

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = progressWriter(b.Progress)
	cmd.Stderr = io.MultiWriter(&stderr, progressWriter(b.Progress))

	b.log().Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Result{}, fmt.Errorf("bundled whisper engine at %s is missing required shared libraries (%s); reinstall whisper-cli or rebuild it with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Result{}, fmt.Errorf("bundled whisper engine crashed with an illegal CPU instruction; " +
				"your CPU may lack required instruction set extensions; " +
				"set VOXJSON_WHISPER_PATH to a whisper-cli binary built for your CPU")
		}
		return Result{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, lastLine(errText))
	}

	content, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	return parseBundledOutput(content)
}

func (b *BundledEngine) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// bundledDecodeArgs maps decode options onto whisper-cli flags. whisper-cli has
// no punctuation merging, so those fields are not forwarded.
func bundledDecodeArgs(language string, opts DecodeOptions) []string {
	args := []string{"-oj"}
	if opts.WordTimestamps {
		args = append(args, "-ojf")
	}

	// whisper-cli falls back to English without -l, so detection must be asked for.
	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = "auto"
	}
	args = append(args, "-l", lang)
	if opts.Task == TaskTranslate {
		args = append(args, "-tr")
	}
	if opts.Verbose {
		args = append(args, "-pp")
	}
	if !opts.ConditionOnPreviousText {
		args = append(args, "-mc", "0")
	}

	args = append(args,
		"-tp", formatArg(opts.Temperature),
		"-et", formatArg(opts.CompressionRatioThreshold),
		"-lpt", formatArg(opts.LogProbThreshold),
		"-nth", formatArg(opts.NoSpeechThreshold),
	)
	if opts.NoTemperatureFallback {
		args = append(args, "-nf")
	}
	if prompt := strings.TrimSpace(opts.InitialPrompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}

	return args
}

type bundledOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type bundledOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets bundledOffsets `json:"offsets"`
		Text    string         `json:"text"`
		Tokens  []struct {
			Text    string         `json:"text"`
			Offsets bundledOffsets `json:"offsets"`
			P       float64        `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

func parseBundledOutput(content []byte) (Result, error) {
	var out bundledOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return Result{}, fmt.Errorf("parse whisper output: %w", err)
	}

	result := Result{
		Language: out.Result.Language,
		Segments: make([]Segment, 0, len(out.Transcription)),
	}
	for _, entry := range out.Transcription {
		if IsBlankText(entry.Text) {
			continue
		}
		segment := Segment{
			Start: millisToSeconds(entry.Offsets.From),
			End:   millisToSeconds(entry.Offsets.To),
			Text:  entry.Text,
		}
		for _, token := range entry.Tokens {
			// special tokens such as [_BEG_] and [_TT_150]
			if strings.HasPrefix(token.Text, "[_") {
				continue
			}
			segment.Words = append(segment.Words, Word{
				Start:       millisToSeconds(token.Offsets.From),
				End:         millisToSeconds(token.Offsets.To),
				Text:        token.Text,
				Probability: token.P,
			})
		}
		result.Segments = append(result.Segments, segment)
	}

	return result, nil
}

const blankAudioToken = "[BLANK_AUDIO]"

// IsBlankText reports whether a decoded span carries no speech: empty text or
// whisper.cpp's silence marker.
func IsBlankText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func millisToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}

func formatArg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func makeScratchDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "voxjson-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	return dir, nil
}

func progressWriter(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
