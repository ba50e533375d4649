package volume

import (
	"testing"
	"time"

	"github.com/smazurov/audionode/internal/mix"
)

// fakeStream records every realized command.
type fakeStream struct {
	usage Usage
	muted bool
	cmds  []Command
}

func (f *fakeStream) StreamUsage() Usage        { return f.usage }
func (f *fakeStream) StreamMute() bool          { return f.muted }
func (f *fakeStream) RealizeVolume(cmd Command) { f.cmds = append(f.cmds, cmd) }

func (f *fakeStream) last(t *testing.T) Command {
	t.Helper()
	if len(f.cmds) == 0 {
		t.Fatal("no command realized")
	}
	return f.cmds[len(f.cmds)-1]
}

func TestAddStreamRealizesImmediately(t *testing.T) {
	m := NewManager(nil)
	s := &fakeStream{usage: UsageRenderMedia}
	m.AddStream(s)

	cmd := s.last(t)
	if cmd.Volume != 1 {
		t.Errorf("initial volume = %v, want 1", cmd.Volume)
	}
	if cmd.GainDBAdjustment != 0 {
		t.Errorf("initial adjustment = %v, want 0", cmd.GainDBAdjustment)
	}
}

func TestSetUsageVolumeFansOutByUsage(t *testing.T) {
	m := NewManager(nil)
	media := &fakeStream{usage: UsageRenderMedia}
	comm := &fakeStream{usage: UsageRenderCommunication}
	m.AddStream(media)
	m.AddStream(comm)

	m.SetUsageVolume(UsageRenderMedia, 0.5, nil)
	if got := media.last(t).Volume; got != 0.5 {
		t.Errorf("media volume = %v, want 0.5", got)
	}
	if len(comm.cmds) != 1 {
		t.Errorf("communication stream realized %d times, want 1 (registration only)", len(comm.cmds))
	}
	if m.UsageVolume(UsageRenderMedia) != 0.5 {
		t.Errorf("UsageVolume = %v, want 0.5", m.UsageVolume(UsageRenderMedia))
	}
}

func TestSetUsageVolumeClamps(t *testing.T) {
	m := NewManager(nil)
	m.SetUsageVolume(UsageRenderMedia, 1.7, nil)
	if got := m.UsageVolume(UsageRenderMedia); got != 1 {
		t.Errorf("volume above range = %v, want 1", got)
	}
	m.SetUsageVolume(UsageRenderMedia, -0.3, nil)
	if got := m.UsageVolume(UsageRenderMedia); got != 0 {
		t.Errorf("volume below range = %v, want 0", got)
	}
}

func TestGainAndAdjustmentSum(t *testing.T) {
	m := NewManager(nil)
	s := &fakeStream{usage: UsageRenderMedia}
	m.AddStream(s)

	m.SetUsageGain(UsageRenderMedia, -6)
	m.SetUsageGainAdjustment(UsageRenderMedia, -4)
	if got := m.UsageGainDB(UsageRenderMedia); got != -10 {
		t.Errorf("UsageGainDB = %v, want -10", got)
	}
	if got := s.last(t).GainDBAdjustment; got != -10 {
		t.Errorf("realized adjustment = %v, want -10", got)
	}
}

func TestMuteOverridesGain(t *testing.T) {
	m := NewManager(nil)
	s := &fakeStream{usage: UsageRenderMedia, muted: true}
	m.AddStream(s)
	m.SetUsageGain(UsageRenderMedia, 6)

	if got := s.last(t).GainDBAdjustment; got != mix.MutedGainDB {
		t.Errorf("muted adjustment = %v, want muted sentinel", got)
	}

	s.muted = false
	m.NotifyStreamChanged(s)
	if got := s.last(t).GainDBAdjustment; got != 6 {
		t.Errorf("unmuted adjustment = %v, want 6", got)
	}
}

func TestRampForwarded(t *testing.T) {
	m := NewManager(nil)
	s := &fakeStream{usage: UsageRenderMedia}
	m.AddStream(s)

	ramp := &Ramp{Duration: 100 * time.Millisecond, Type: mix.RampLinearScale}
	m.SetUsageVolume(UsageRenderMedia, 0.25, ramp)
	if got := s.last(t).Ramp; got != ramp {
		t.Errorf("realized ramp = %v, want the requested ramp", got)
	}
}

func TestRemoveStreamStopsFanOut(t *testing.T) {
	m := NewManager(nil)
	s := &fakeStream{usage: UsageRenderMedia}
	m.AddStream(s)
	m.RemoveStream(s)

	n := len(s.cmds)
	m.SetUsageVolume(UsageRenderMedia, 0.5, nil)
	if len(s.cmds) != n {
		t.Error("removed stream still received commands")
	}
}

func TestCurve(t *testing.T) {
	c := DefaultCurve()
	tests := []struct {
		vol  float64
		want float64
	}{
		{0, mix.MutedGainDB},
		{1, 0},
		{0.5, -30},
		{0.75, -15},
	}
	for _, tt := range tests {
		if got := c.VolumeToDB(tt.vol); got != tt.want {
			t.Errorf("VolumeToDB(%v) = %v, want %v", tt.vol, got, tt.want)
		}
	}
	for _, vol := range []float64{0.1, 0.5, 0.9, 1} {
		db := c.VolumeToDB(vol)
		if got := c.DBToVolume(db); got != vol {
			t.Errorf("DBToVolume(VolumeToDB(%v)) = %v", vol, got)
		}
	}
}

func TestParseUsage(t *testing.T) {
	for _, u := range Usages() {
		got, ok := ParseUsage(u.String())
		if !ok || got != u {
			t.Errorf("ParseUsage(%q) = %v, %v", u.String(), got, ok)
		}
	}
	if _, ok := ParseUsage("no-such-usage"); ok {
		t.Error("ParseUsage accepted an unknown usage")
	}
}
