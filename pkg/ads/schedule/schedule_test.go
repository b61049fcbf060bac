package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideCycles(t *testing.T) {
	s, err := NewScheduler(Config{Schedule: []Mode{ModeNoAd, ModeOutResp, ModeInResp}})
	require.NoError(t, err)

	assert.Equal(t, ModeNoAd, s.Decide(0))
	assert.Equal(t, ModeOutResp, s.Decide(1))
	assert.Equal(t, ModeInResp, s.Decide(2))

	for turn := 0; turn < 20; turn++ {
		for k := 0; k < 5; k++ {
			assert.Equal(t, s.Decide(turn), s.Decide(turn+k*s.Len()), "turn %d k %d", turn, k)
		}
	}
}

func TestDecideOverride(t *testing.T) {
	override := ModeInResp
	s, err := NewScheduler(Config{Schedule: DefaultSchedule, Override: &override})
	require.NoError(t, err)

	for turn := 0; turn < 50; turn++ {
		assert.Equal(t, ModeInResp, s.Decide(turn))
	}
}

func TestNewSchedulerRejectsEmpty(t *testing.T) {
	_, err := NewScheduler(Config{})
	assert.Error(t, err)
}

func TestSchedulerIsImmutable(t *testing.T) {
	modes := []Mode{ModeNoAd, ModeOutResp}
	s, err := NewScheduler(Config{Schedule: modes})
	require.NoError(t, err)

	modes[0] = ModeInResp
	assert.Equal(t, ModeNoAd, s.Decide(0))
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Mode
		wantErr bool
	}{
		{name: "default order", raw: "no-ad,out-resp,in-resp", want: []Mode{ModeNoAd, ModeOutResp, ModeInResp}},
		{name: "spaces and empty parts", raw: " no-ad , ,in-resp ", want: []Mode{ModeNoAd, ModeInResp}},
		{name: "unknown mode", raw: "no-ad,banner", wantErr: true},
		{name: "empty", raw: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseList(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiresProduct(t *testing.T) {
	assert.False(t, ModeNoAd.RequiresProduct())
	assert.True(t, ModeOutResp.RequiresProduct())
	assert.True(t, ModeInResp.RequiresProduct())
}
