package transcript

import (
	"strconv"
	"strings"

	"github.com/fmueller/voxjson/internal/whisper"
)

// Format reshapes a decoder result into the published transcript shape.
// The requested language is used when the decoder does not report one.
func Format(native whisper.Result, requestedLanguage string) Result {
	segments := make([]Segment, 0, len(native.Segments))
	for i, s := range native.Segments {
		segments = append(segments, Segment{
			ID:    i + 1,
			Start: formatSeconds(s.Start),
			End:   formatSeconds(s.End),
			Text:  strings.TrimSpace(s.Text),
		})
	}

	language := native.Language
	if language == "" {
		language = requestedLanguage
	}

	var total float64
	if len(segments) > 0 {
		// parsed back from the end string so both always agree
		total, _ = strconv.ParseFloat(segments[len(segments)-1].End, 64)
	}

	return Succeeded(segments, language, total)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
