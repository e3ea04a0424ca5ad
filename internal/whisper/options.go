package whisper

const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// Punctuation sets merged into neighbouring words when word timestamps are on.
// These are the decoder's own defaults.
const (
	DefaultPrependPunctuations = "\"'“¿([{-"
	DefaultAppendPunctuations  = "\"'.。,，!！?？:：”)]}、"
)

// DecodeOptions is handed to an engine as-is. Engines map each field to their
// own flags and skip the ones they cannot express.
type DecodeOptions struct {
	Task                      string
	Verbose                   bool
	WordTimestamps            bool
	ConditionOnPreviousText   bool
	Temperature               float64
	NoTemperatureFallback     bool
	CompressionRatioThreshold float64
	LogProbThreshold          float64
	NoSpeechThreshold         float64
	InitialPrompt             string
	PrependPunctuations       string
	AppendPunctuations        string
}

// DefaultDecodeOptions returns the fixed configuration every transcription
// runs with: greedy, deterministic decoding of the source language.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		Task:                      TaskTranscribe,
		Verbose:                   true,
		WordTimestamps:            true,
		ConditionOnPreviousText:   true,
		Temperature:               0.0,
		NoTemperatureFallback:     true,
		CompressionRatioThreshold: 2.4,
		LogProbThreshold:          -1.0,
		NoSpeechThreshold:         0.6,
		PrependPunctuations:       DefaultPrependPunctuations,
		AppendPunctuations:        DefaultAppendPunctuations,
	}
}
