package timeline

import (
	"testing"
)

func TestRateReduction(t *testing.T) {
	tests := []struct {
		name     string
		subject  uint64
		ref      uint64
		wantSubj uint64
		wantRef  uint64
	}{
		{"already reduced", 3, 7, 3, 7},
		{"common factor", 48000, 1_000_000_000, 3, 62500},
		{"identity", 10, 10, 1, 1},
		{"zero subject", 0, 5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRate(tt.subject, tt.ref)
			if r.SubjectDelta() != tt.wantSubj || r.ReferenceDelta() != tt.wantRef {
				t.Errorf("NewRate(%d, %d) = %d/%d, want %d/%d",
					tt.subject, tt.ref, r.SubjectDelta(), r.ReferenceDelta(),
					tt.wantSubj, tt.wantRef)
			}
		})
	}
}

func TestRateScale(t *testing.T) {
	tests := []struct {
		name  string
		rate  Rate
		input int64
		want  int64
	}{
		{"identity", NewRate(1, 1), 12345, 12345},
		{"double", NewRate(2, 1), 21, 42},
		{"half rounds down", NewRate(1, 2), 5, 2},
		{"negative rounds toward -inf", NewRate(1, 2), -5, -3},
		{"zero rate", NewRate(0, 1), 999, 0},
		{"48k over one second", FramesPerNanosecond(48000), 1_000_000_000, 48000},
		{"48k over one mix period", FramesPerNanosecond(48000), 10_000_000, 480},
		{"large input no overflow", FramesPerNanosecond(48000), 1_000_000_000_000, 48_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rate.Scale(tt.input); got != tt.want {
				t.Errorf("Scale(%d) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestRateInverse(t *testing.T) {
	r := NewRate(3, 7)
	inv := r.Inverse()
	if inv.SubjectDelta() != 7 || inv.ReferenceDelta() != 3 {
		t.Fatalf("Inverse() = %d/%d, want 7/3", inv.SubjectDelta(), inv.ReferenceDelta())
	}
	if NewRate(0, 1).Invertible() {
		t.Error("zero rate reported invertible")
	}
}

func TestFunctionApply(t *testing.T) {
	// Frame 100 anchored at reference time 1s, 48kHz.
	f := NewFunction(100, 1_000_000_000, FramesPerNanosecond(48000))

	tests := []struct {
		name string
		ref  int64
		want int64
	}{
		{"at anchor", 1_000_000_000, 100},
		{"one second later", 2_000_000_000, 48100},
		{"one period later", 1_010_000_000, 580},
		{"before anchor", 0, -47900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Apply(tt.ref); got != tt.want {
				t.Errorf("Apply(%d) = %d, want %d", tt.ref, got, tt.want)
			}
		})
	}
}

func TestFunctionApplyInverse(t *testing.T) {
	f := NewFunction(0, 0, FramesPerNanosecond(48000))
	for _, frames := range []int64{0, 480, 48000, 96000} {
		ref := f.ApplyInverse(frames)
		// Round-tripping may lose less than one frame of reference time.
		back := f.Apply(ref)
		if back != frames {
			t.Errorf("Apply(ApplyInverse(%d)) = %d", frames, back)
		}
	}
}

func TestFunctionCompose(t *testing.T) {
	// a: reference ns -> frames. b: frames -> fractional frames (<<4).
	a := NewFunction(0, 0, FramesPerNanosecond(48000))
	b := NewFunction(0, 0, NewRate(16, 1))
	bc := Compose(b, a)

	for _, ref := range []int64{0, 10_000_000, 1_000_000_000} {
		want := b.Apply(a.Apply(ref))
		if got := bc.Apply(ref); got != want {
			t.Errorf("Compose.Apply(%d) = %d, want %d", ref, got, want)
		}
	}
}

func TestMonotonicNow(t *testing.T) {
	a := MonotonicNow()
	b := MonotonicNow()
	if b < a {
		t.Errorf("MonotonicNow went backwards: %d then %d", a, b)
	}
}
