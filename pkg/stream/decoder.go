package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DeltaDecoder strips the generation transport's own framing from raw chunk
// text, yielding plain text deltas. Flush returns whatever is still buffered.
type DeltaDecoder interface {
	Decode(chunk string) string
	Flush() string
}

// RawText is the identity decoder for plain text streams.
type RawText struct{}

func (RawText) Decode(chunk string) string { return chunk }
func (RawText) Flush() string              { return "" }

var (
	textPartLine = regexp.MustCompile(`^0:"(.*)"$`)
	metaPartLine = regexp.MustCompile(`^[a-f0-9]+:`)
)

// DataStreamDecoder understands the line protocol of AI-SDK style data streams:
// `0:"..."` text parts, `data: {...}` SSE chunks, `<hex>:` metadata lines
// (skipped). Lines that match none of these are kept verbatim.
type DataStreamDecoder struct {
	partial string
}

func (d *DataStreamDecoder) Decode(chunk string) string {
	d.partial += chunk
	idx := strings.LastIndexByte(d.partial, '\n')
	if idx < 0 {
		return ""
	}
	complete := d.partial[:idx]
	d.partial = d.partial[idx+1:]

	var out strings.Builder
	for _, line := range strings.Split(complete, "\n") {
		out.WriteString(decodeLine(line, true))
	}
	return out.String()
}

func (d *DataStreamDecoder) Flush() string {
	rest := d.partial
	d.partial = ""
	if rest == "" {
		return ""
	}
	return decodeLine(rest, false)
}

func decodeLine(line string, terminated bool) string {
	if m := textPartLine.FindStringSubmatch(line); m != nil {
		var text string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &text); err != nil {
			return m[1]
		}
		return text
	}

	if data, ok := strings.CutPrefix(line, "data: "); ok {
		if data == "[DONE]" {
			return ""
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil || len(chunk.Choices) == 0 {
			return ""
		}
		return chunk.Choices[0].Delta.Content
	}

	if metaPartLine.MatchString(line) {
		return ""
	}
	if strings.TrimSpace(line) == "" {
		return ""
	}
	if terminated {
		return line + "\n"
	}
	return line
}
