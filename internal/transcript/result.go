package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

type Segment struct {
	ID    int    `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

// Result is either a successful transcription or a failure carrying the error
// that stopped it. Build one with Succeeded or Failed.
type Result struct {
	Segments      []Segment
	Language      string
	TotalDuration float64

	err error
}

func Succeeded(segments []Segment, language string, totalDuration float64) Result {
	if segments == nil {
		segments = []Segment{}
	}
	return Result{Segments: segments, Language: language, TotalDuration: totalDuration}
}

func Failed(err error) Result {
	if err == nil {
		err = errors.New("transcription failed")
	}
	return Result{Segments: []Segment{}, err: err}
}

func (r Result) Success() bool {
	return r.err == nil
}

func (r Result) Err() error {
	return r.err
}

type successBody struct {
	Success       bool      `json:"success"`
	Segments      []Segment `json:"segments"`
	Language      string    `json:"language"`
	TotalDuration float64   `json:"total_duration"`
}

type failureBody struct {
	Success  bool      `json:"success"`
	Error    string    `json:"error"`
	Segments []Segment `json:"segments"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.err != nil {
		return marshalLiteral(failureBody{Success: false, Error: r.err.Error(), Segments: []Segment{}})
	}

	segments := r.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return marshalLiteral(successBody{
		Success:       true,
		Segments:      segments,
		Language:      r.Language,
		TotalDuration: r.TotalDuration,
	})
}

// marshalLiteral is json.Marshal without HTML escaping. The encoder that
// embeds a Marshaler's output never unescapes it, so this has to happen here.
func marshalLiteral(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Encode writes v as JSON followed by a newline. Non-ASCII text and HTML
// characters are written literally. A positive indent pretty-prints; zero
// writes one line with a space after every ':' and ',' separator.
func Encode(w io.Writer, v any, indent int) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", string(bytes.Repeat([]byte(" "), indent)))
	}
	if err := enc.Encode(v); err != nil {
		return err
	}

	data := buf.Bytes()
	if indent <= 0 {
		data = spaceSeparators(data)
	}
	_, err := w.Write(data)
	return err
}

func spaceSeparators(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/8)
	inString, escaped := false, false
	for _, c := range compact {
		out = append(out, c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ':' || c == ','):
			out = append(out, ' ')
		}
	}
	return out
}
