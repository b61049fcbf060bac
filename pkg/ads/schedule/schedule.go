package schedule

import (
	"fmt"
	"strings"
)

// Mode is the advertising strategy applied to one assistant turn.
type Mode string

const (
	ModeNoAd    Mode = "no-ad"
	ModeOutResp Mode = "out-resp"
	ModeInResp  Mode = "in-resp"
)

// DefaultSchedule cycles through every mode, twice, in a fixed order.
var DefaultSchedule = []Mode{
	ModeNoAd,
	ModeOutResp,
	ModeInResp,
	ModeNoAd,
	ModeInResp,
	ModeOutResp,
}

// RequiresProduct reports whether a turn in this mode needs classification and a product.
func (m Mode) RequiresProduct() bool {
	return m == ModeOutResp || m == ModeInResp
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode validates a raw mode name.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(raw)) {
	case ModeNoAd:
		return ModeNoAd, nil
	case ModeOutResp:
		return ModeOutResp, nil
	case ModeInResp:
		return ModeInResp, nil
	default:
		return "", fmt.Errorf("unknown ad mode %q", raw)
	}
}

// ParseList parses a comma separated schedule such as "no-ad,out-resp,in-resp".
func ParseList(raw string) ([]Mode, error) {
	var modes []Mode
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := ParseMode(part)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// Config is the immutable scheduling configuration loaded at process start.
type Config struct {
	Schedule []Mode
	Override *Mode
}

// Scheduler maps a turn index to a mode. Safe for concurrent use.
type Scheduler struct {
	schedule []Mode
	override *Mode
}

// NewScheduler copies cfg and rejects an empty schedule unless an override makes it irrelevant.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Override == nil && len(cfg.Schedule) == 0 {
		return nil, fmt.Errorf("ad mode schedule must contain at least one mode")
	}
	s := &Scheduler{schedule: append([]Mode(nil), cfg.Schedule...)}
	if cfg.Override != nil {
		o := *cfg.Override
		s.override = &o
	}
	return s, nil
}

// Decide returns the mode for a turn: the override when set, otherwise
// schedule[turn mod len(schedule)]. Negative indices are treated as zero.
func (s *Scheduler) Decide(turnIndex int) Mode {
	if s.override != nil {
		return *s.override
	}
	if turnIndex < 0 {
		turnIndex = 0
	}
	return s.schedule[turnIndex%len(s.schedule)]
}

// Len is the cycle length of the configured schedule.
func (s *Scheduler) Len() int {
	return len(s.schedule)
}
