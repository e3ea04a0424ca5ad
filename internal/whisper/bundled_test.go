package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveBundledEnginePathFindsLibexecSibling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	engineDir := filepath.Join(root, "libexec", "whisper")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.MkdirAll(engineDir, 0o755))

	self := filepath.Join(binDir, "voxjson")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	enginePath := filepath.Join(engineDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestResolveBundledEnginePathMissing(t *testing.T) {
	t.Parallel()

	self := filepath.Join(t.TempDir(), "bin", "voxjson")
	require.NoError(t, os.MkdirAll(filepath.Dir(self), 0o755))
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	_, err := ResolveBundledEnginePath(self)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bundled whisper engine not found")
}

func TestResolveBundledEnginePathFindsPackagingPathForLocalDev(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	self := filepath.Join(root, "voxjson")
	require.NoError(t, os.WriteFile(self, []byte(""), 0o755))

	targetDir := filepath.Join(root, "packaging", "whisper", fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH)))
	require.NoError(t, os.MkdirAll(targetDir, 0o755))
	enginePath := filepath.Join(targetDir, engineBinaryName())
	require.NoError(t, os.WriteFile(enginePath, []byte(""), 0o755))

	resolved, err := ResolveBundledEnginePath(self)
	require.NoError(t, err)
	require.Equal(t, enginePath, resolved)
}

func TestIsMissingSharedLibraryError(t *testing.T) {
	t.Parallel()

	require.True(t, isMissingSharedLibraryError("error while loading shared libraries: libwhisper.so.1: cannot open shared object file"))
	require.True(t, isMissingSharedLibraryError("dyld: Library not loaded: @rpath/libwhisper.dylib"))
	require.False(t, isMissingSharedLibraryError("some other runtime error"))
}

func TestIsIllegalInstructionError(t *testing.T) {
	t.Parallel()

	require.True(t, isIllegalInstructionError("signal: illegal instruction (core dumped)"))
	require.True(t, isIllegalInstructionError("signal: illegal instruction"))
	require.False(t, isIllegalInstructionError("some other runtime error"))
	require.False(t, isIllegalInstructionError(""))
}

func TestNewBundledEngineRejectsNonExecutableOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "whisper-cli")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	_, err := NewBundledEngine(path, nil)
	if runtime.GOOS == "windows" {
		require.NoError(t, err)
		return
	}
	require.Error(t, err)
	require.Contains(t, err.Error(), "not executable")
}

func TestBundledDecodeArgsForDefaultOptions(t *testing.T) {
	t.Parallel()

	args := bundledDecodeArgs("ko", DefaultDecodeOptions())
	require.Equal(t, []string{
		"-oj", "-ojf",
		"-l", "ko",
		"-pp",
		"-tp", "0",
		"-et", "2.4",
		"-lpt", "-1",
		"-nth", "0.6",
		"-nf",
	}, args)
}

func TestBundledDecodeArgsOptionalFlags(t *testing.T) {
	t.Parallel()

	opts := DefaultDecodeOptions()
	opts.Task = TaskTranslate
	opts.ConditionOnPreviousText = false
	opts.WordTimestamps = false
	opts.Verbose = false
	opts.InitialPrompt = "meeting notes"

	args := bundledDecodeArgs("auto", opts)
	require.Subset(t, args, []string{"-l", "auto"})
	require.NotContains(t, args, "-ojf")
	require.NotContains(t, args, "-pp")
	require.Contains(t, args, "-tr")
	require.Subset(t, args, []string{"-mc", "0", "--prompt", "meeting notes"})
}

func TestBundledDecodeArgsEmptyLanguageDetects(t *testing.T) {
	t.Parallel()

	args := bundledDecodeArgs("  ", DefaultDecodeOptions())
	idx := slices.Index(args, "-l")
	require.GreaterOrEqual(t, idx, 0)
	require.Equal(t, "auto", args[idx+1])
}

func TestParseBundledOutput(t *testing.T) {
	t.Parallel()

	content := []byte(`{
  "result": {"language": "ko"},
  "transcription": [
    {"offsets": {"from": 0, "to": 2500}, "text": " 안녕하세요",
     "tokens": [
       {"text": "[_BEG_]", "offsets": {"from": 0, "to": 0}, "p": 0.9},
       {"text": " 안녕", "offsets": {"from": 0, "to": 1200}, "p": 0.8},
       {"text": "하세요", "offsets": {"from": 1200, "to": 2500}, "p": 0.7}
     ]},
    {"offsets": {"from": 2500, "to": 5000}, "text": " 반갑습니다."}
  ]
}`)

	result, err := parseBundledOutput(content)
	require.NoError(t, err)
	require.Equal(t, "ko", result.Language)
	require.Len(t, result.Segments, 2)
	require.Equal(t, 0.0, result.Segments[0].Start)
	require.Equal(t, 2.5, result.Segments[0].End)
	require.Equal(t, " 안녕하세요", result.Segments[0].Text)
	require.Len(t, result.Segments[0].Words, 2)
	require.Equal(t, 1.2, result.Segments[0].Words[0].End)
	require.Equal(t, 5.0, result.Segments[1].End)
	require.Empty(t, result.Segments[1].Words)
}

func TestParseBundledOutputRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseBundledOutput([]byte("not json"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse whisper output")
}

func TestBundledEngineTranscribeReadsJSONOutput(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	exe := writeFakeEngine(t, `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
cat > "$out.json" <<'EOF'
{"result": {"language": "en"}, "transcription": [{"offsets": {"from": 0, "to": 1500}, "text": " hello"}]}
EOF
`)

	engine, err := NewBundledEngine(exe, nil)
	require.NoError(t, err)

	result, err := engine.Transcribe(context.Background(), TranscriptionRequest{
		AudioPath: "/tmp/audio.wav",
		Model:     "/tmp/model.bin",
		Language:  "en",
		Options:   DefaultDecodeOptions(),
	})
	require.NoError(t, err)
	require.Equal(t, "en", result.Language)
	require.Len(t, result.Segments, 1)
	require.Equal(t, 1.5, result.Segments[0].End)
}

func TestBundledEngineTranscribeReportsEngineFailure(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	exe := writeFakeEngine(t, `echo "loading model" >&2
echo "failed to read audio data" >&2
exit 3
`)

	engine, err := NewBundledEngine(exe, nil)
	require.NoError(t, err)

	_, err = engine.Transcribe(context.Background(), TranscriptionRequest{
		AudioPath: "/tmp/audio.wav",
		Model:     "/tmp/model.bin",
		Options:   DefaultDecodeOptions(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "whisper transcribe failed")
	require.Contains(t, err.Error(), "failed to read audio data")
}

func TestBundledEngineTranscribeRequiresModel(t *testing.T) {
	t.Parallel()

	engine := &BundledEngine{Executable: "/no/such/whisper-cli"}
	_, err := engine.Transcribe(context.Background(), TranscriptionRequest{AudioPath: "/tmp/audio.wav"})
	require.EqualError(t, err, "model path is required")
}

func TestParseBundledOutputDropsBlankAudio(t *testing.T) {
	t.Parallel()

	content := []byte(`{"result": {"language": "en"}, "transcription": [
  {"offsets": {"from": 0, "to": 3000}, "text": " [BLANK_AUDIO]"},
  {"offsets": {"from": 3000, "to": 4000}, "text": " yes"},
  {"offsets": {"from": 4000, "to": 6000}, "text": "   "}
]}`)

	result, err := parseBundledOutput(content)
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	require.Equal(t, " yes", result.Segments[0].Text)
	require.Equal(t, 3.0, result.Segments[0].Start)
}

func TestIsBlankText(t *testing.T) {
	t.Parallel()

	require.True(t, IsBlankText(""))
	require.True(t, IsBlankText("   \n\t "))
	require.True(t, IsBlankText("[BLANK_AUDIO]"))
	require.True(t, IsBlankText(" [blank_audio] "))
	require.False(t, IsBlankText("Hello world"))
}
