package stream

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"ad-chat-be/internal/pkg/logger"
)

type demuxState int

const (
	scanningText demuxState = iota
	insideBlock
)

// Demuxer rebuilds display text and ad metadata from a multiplexed byte stream.
//
// It is a two-state machine over the decoded text. While scanning text it
// commits everything except a suffix that could still grow into an opening
// marker (optionally preceded by the newline the encoder puts in front of it).
// Inside a block it buffers until the matching closing marker arrives, so a
// block may straddle any number of chunk boundaries, down to single bytes.
// An opening marker that is not followed by a JSON object, or that is followed
// by another opening marker before its close, is prose: it goes back to the
// text and scanning resumes right after it.
//
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	decoder DeltaDecoder
	logger  logger.ILogger

	state     demuxState
	kind      Kind
	committed strings.Builder
	pending   string

	// opening holds the newline and marker consumed when the current block began,
	// so an unterminated block can be restored verbatim.
	opening     string
	scanFrom    int
	dropNewline bool
	carry       []byte
	selection   *Payload
	finished    bool
}

func NewDemuxer(decoder DeltaDecoder, log logger.ILogger) *Demuxer {
	if decoder == nil {
		decoder = RawText{}
	}
	return &Demuxer{decoder: decoder, logger: log}
}

// Write feeds one raw chunk. It never fails; the signature lets callers io.Copy into it.
func (d *Demuxer) Write(chunk []byte) (int, error) {
	n := len(chunk)
	if d.finished {
		return n, nil
	}

	data := append(d.carry, chunk...)
	cut := completeRunes(data)
	d.carry = append([]byte(nil), data[cut:]...)

	d.feed(d.decoder.Decode(string(data[:cut])))
	return n, nil
}

// Finish flushes buffered bytes and runs the final block pass. An unterminated
// block is returned to the display text and the rest is scanned again.
func (d *Demuxer) Finish() {
	if d.finished {
		return
	}
	if len(d.carry) > 0 {
		tail := string(d.carry)
		d.carry = nil
		d.feed(d.decoder.Decode(tail))
	}
	d.feed(d.decoder.Flush())

	for d.state == insideBlock {
		d.reopenAsText()
		d.scan()
	}
	d.committed.WriteString(d.pending)
	d.pending = ""
	d.dropNewline = false
	d.finished = true
}

// Text is the display text known so far. Until Finish it omits a possible
// partial marker and any block that is still open.
func (d *Demuxer) Text() string {
	return d.committed.String()
}

// Selection is the last block parsed successfully, or nil.
func (d *Demuxer) Selection() *Payload {
	return d.selection
}

func (d *Demuxer) feed(text string) {
	if text == "" {
		return
	}
	d.pending += text
	d.scan()
}

func (d *Demuxer) scan() {
	for {
		if d.dropNewline && d.pending != "" {
			d.pending = strings.TrimPrefix(d.pending, "\n")
			d.dropNewline = false
		}

		switch d.state {
		case scanningText:
			if !d.scanText() {
				return
			}
		case insideBlock:
			if !d.scanBlock() {
				return
			}
		}
	}
}

// scanText reports whether it switched state and more input should be scanned.
func (d *Demuxer) scanText() bool {
	idx, kind := indexOpening(d.pending)
	if idx < 0 {
		keep := partialOpeningSuffix(d.pending)
		d.committed.WriteString(d.pending[:len(d.pending)-keep])
		d.pending = d.pending[len(d.pending)-keep:]
		return false
	}

	open, _ := kind.markers()
	before := d.pending[:idx]
	d.opening = open
	if strings.HasSuffix(before, "\n") {
		before = before[:len(before)-1]
		d.opening = "\n" + open
	}
	d.committed.WriteString(before)
	d.pending = d.pending[idx+len(open):]
	d.kind = kind
	d.state = insideBlock
	d.scanFrom = 0
	return true
}

func (d *Demuxer) scanBlock() bool {
	if d.pending == "" {
		return false
	}
	if d.pending[0] != '{' {
		d.reopenAsText()
		return true
	}

	_, close := d.kind.markers()
	window := d.pending[d.scanFrom:]
	rel := strings.Index(window, close)
	if next, _ := indexOpening(window); next >= 0 && (rel < 0 || next < rel) {
		d.reopenAsText()
		return true
	}
	if rel < 0 {
		// Keep enough tail to catch a marker split across writes.
		d.scanFrom = max(0, len(d.pending)-len(close)+1)
		return false
	}
	end := d.scanFrom + rel

	d.parse(d.pending[:end])
	d.pending = d.pending[end+len(close):]
	d.state = scanningText
	d.opening = ""
	d.dropNewline = true
	return true
}

// reopenAsText treats the current opening marker as ordinary text.
func (d *Demuxer) reopenAsText() {
	d.committed.WriteString(d.opening)
	d.opening = ""
	d.state = scanningText
	d.scanFrom = 0
}

func (d *Demuxer) parse(body string) {
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		d.logger.Warn("DEMUX", "Dropping malformed ad block", map[string]interface{}{
			"kind":  string(d.kind),
			"error": err.Error(),
		})
		return
	}
	p.Type = d.kind
	d.selection = &p
}

func indexOpening(s string) (int, Kind) {
	dataIdx := strings.Index(s, adDataOpen)
	metaIdx := strings.Index(s, adMetaOpen)
	switch {
	case dataIdx < 0 && metaIdx < 0:
		return -1, ""
	case metaIdx < 0 || (dataIdx >= 0 && dataIdx < metaIdx):
		return dataIdx, KindAdData
	default:
		return metaIdx, KindAdMeta
	}
}

var openingCandidates = []string{"\n" + adDataOpen, "\n" + adMetaOpen, adDataOpen, adMetaOpen}

// partialOpeningSuffix is the length of the longest suffix of s that is a
// proper prefix of an opening marker (with or without its leading newline).
func partialOpeningSuffix(s string) int {
	longest := len(openingCandidates[0])
	for l := min(len(s), longest); l > 0; l-- {
		suffix := s[len(s)-l:]
		for _, c := range openingCandidates {
			if len(suffix) < len(c) && strings.HasPrefix(c, suffix) {
				return l
			}
		}
	}
	return 0
}

// completeRunes returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
