package transcript

import (
	"errors"
	"fmt"
	"os"
)

// Request is built once from command line input and never modified.
type Request struct {
	AudioPath string
	Model     string
	Language  string
}

// AudioNotFoundError is raised before any model work when the input is missing.
type AudioNotFoundError struct {
	Path string
	Err  error
}

func (e *AudioNotFoundError) Error() string {
	return fmt.Sprintf("audio file not found: %s", e.Path)
}

func (e *AudioNotFoundError) Unwrap() error {
	return e.Err
}

// DecodeError wraps anything that goes wrong while loading the model or
// decoding. It is reported inside the result rather than failing the process.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "transcription failed"
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Validate checks that the audio path exists. Any stat failure counts as
// missing, matching what a caller sees when the path cannot be reached.
func (r Request) Validate() error {
	if _, err := os.Stat(r.AudioPath); err != nil {
		return &AudioNotFoundError{Path: r.AudioPath, Err: err}
	}
	return nil
}

func IsAudioNotFound(err error) bool {
	var target *AudioNotFoundError
	return errors.As(err, &target)
}
