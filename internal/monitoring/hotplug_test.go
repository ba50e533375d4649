package monitoring

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/smazurov/audionode/internal/device/alsa"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestMonitor(rec *recorder, scan func() ([]alsa.PCMDevice, error)) *Monitor {
	m := NewMonitor(rec.record, slog.Default())
	m.scan = scan
	return m
}

func TestRescanInitialScanAddsAll(t *testing.T) {
	rec := &recorder{}
	devs := []alsa.PCMDevice{
		{Card: 0, Device: 0, Name: "Analog", Playback: true},
		{Card: 1, Device: 0, Name: "USB", Playback: true, Capture: true},
	}
	m := newTestMonitor(rec, func() ([]alsa.PCMDevice, error) { return devs, nil })

	m.rescan()
	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("initial rescan produced %d events, want 2", len(got))
	}
	for _, e := range got {
		if !e.Added {
			t.Errorf("initial scan emitted a removal: %+v", e)
		}
	}
}

func TestRescanDiffsAgainstPrevious(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	devs := []alsa.PCMDevice{{Card: 0, Device: 0, Name: "Analog", Playback: true}}
	m := newTestMonitor(rec, func() ([]alsa.PCMDevice, error) {
		mu.Lock()
		defer mu.Unlock()
		return devs, nil
	})

	m.rescan()

	// Card 0 unplugged, card 2 plugged in.
	mu.Lock()
	devs = []alsa.PCMDevice{{Card: 2, Device: 0, Name: "Headset", Playback: true, Capture: true}}
	mu.Unlock()
	m.rescan()

	got := rec.snapshot()
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3 (initial add, remove, add)", len(got))
	}
	if got[1].Added || got[1].Device.Card != 0 {
		t.Errorf("second event = %+v, want removal of card 0", got[1])
	}
	if !got[2].Added || got[2].Device.Card != 2 {
		t.Errorf("third event = %+v, want addition of card 2", got[2])
	}

	// Unchanged scan emits nothing.
	m.rescan()
	if len(rec.snapshot()) != 3 {
		t.Error("unchanged rescan emitted events")
	}
}

func TestRescanFailureKeepsState(t *testing.T) {
	rec := &recorder{}
	fail := false
	m := newTestMonitor(rec, func() ([]alsa.PCMDevice, error) {
		if fail {
			return nil, errors.New("procfs gone")
		}
		return []alsa.PCMDevice{{Card: 0, Device: 0, Name: "Analog"}}, nil
	})

	m.rescan()
	fail = true
	m.rescan()

	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("failed rescan changed events: %d, want 1", len(got))
	}
	// Recovery must not re-add the device it still knows about.
	fail = false
	m.rescan()
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("recovered rescan re-announced devices: %d events", len(got))
	}
}
