package whisper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEngineByName(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	exe := writeFakeEngine(t, "exit 0\n")
	opts := EngineOptions{WhisperCLIPath: exe, OpenAIWhisperPath: exe}

	cli, err := NewEngine(EngineWhisperCLI, opts)
	require.NoError(t, err)
	require.Equal(t, EngineWhisperCLI, cli.Name())

	openai, err := NewEngine("OpenAI-Whisper", opts)
	require.NoError(t, err)
	require.Equal(t, EngineOpenAIWhisper, openai.Name())
}

func TestNewEngineAutoPrefersWhisperCLI(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	exe := writeFakeEngine(t, "exit 0\n")

	engine, err := NewEngine(EngineAuto, EngineOptions{WhisperCLIPath: exe, OpenAIWhisperPath: exe})
	require.NoError(t, err)
	require.Equal(t, EngineWhisperCLI, engine.Name())
}

func TestNewEngineAutoFallsBackToOpenAIWhisper(t *testing.T) {
	t.Parallel()
	skipWithoutShell(t)

	exe := writeFakeEngine(t, "exit 0\n")

	engine, err := NewEngine("", EngineOptions{WhisperCLIPath: "/no/such/whisper-cli", OpenAIWhisperPath: exe})
	require.NoError(t, err)
	require.Equal(t, EngineOpenAIWhisper, engine.Name())
}

func TestNewEngineAutoReportsBothFailures(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(EngineAuto, EngineOptions{WhisperCLIPath: "/no/such/whisper-cli", OpenAIWhisperPath: "/no/such/whisper"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no whisper engine available")
	require.Contains(t, err.Error(), "whisper-cli path is not executable")
	require.Contains(t, err.Error(), "openai-whisper path is not executable")
}

func TestNewEngineUnknownName(t *testing.T) {
	t.Parallel()

	_, err := NewEngine("vosk", EngineOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown engine")
}

func TestDefaultDecodeOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultDecodeOptions()
	require.Equal(t, TaskTranscribe, opts.Task)
	require.True(t, opts.Verbose)
	require.True(t, opts.WordTimestamps)
	require.True(t, opts.ConditionOnPreviousText)
	require.Zero(t, opts.Temperature)
	require.Equal(t, 2.4, opts.CompressionRatioThreshold)
	require.Equal(t, -1.0, opts.LogProbThreshold)
	require.Equal(t, 0.6, opts.NoSpeechThreshold)
	require.Empty(t, opts.InitialPrompt)
	require.NotEmpty(t, opts.PrependPunctuations)
	require.NotEmpty(t, opts.AppendPunctuations)
}
