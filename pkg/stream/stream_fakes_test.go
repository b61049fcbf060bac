package stream

import (
	"errors"
	"io"
)

type sliceStream struct {
	deltas  []string
	failAt  int // index at which Recv returns failErr; -1 never
	failErr error
	pos     int
	closed  bool
}

func newSliceStream(deltas ...string) *sliceStream {
	return &sliceStream{deltas: deltas, failAt: -1}
}

func (s *sliceStream) Recv() (string, error) {
	if s.failAt >= 0 && s.pos == s.failAt {
		return "", s.failErr
	}
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return d, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

var errBrokenPipe = errors.New("broken pipe")

// brokenWriter accepts the first n writes and fails afterwards.
type brokenWriter struct {
	okWrites int
	written  []byte
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.okWrites <= 0 {
		return 0, errBrokenPipe
	}
	w.okWrites--
	w.written = append(w.written, p...)
	return len(p), nil
}
