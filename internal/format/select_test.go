package format

import (
	"errors"
	"testing"
)

func TestFormatProperties(t *testing.T) {
	f := Format{SampleFormat: Signed16, Channels: 2, FramesPerSecond: 48000}
	if !f.Valid() {
		t.Error("valid format reported invalid")
	}
	if got := f.BytesPerFrame(); got != 4 {
		t.Errorf("BytesPerFrame() = %d, want 4", got)
	}
	if got := f.String(); got != "s16/2ch/48000Hz" {
		t.Errorf("String() = %q", got)
	}
	if (Format{}).Valid() {
		t.Error("zero format reported valid")
	}
}

func TestSelectBestFormat(t *testing.T) {
	pref := Format{SampleFormat: Signed16, Channels: 2, FramesPerSecond: 48000}

	tests := []struct {
		name      string
		pref      Format
		supported []Range
		want      Format
	}{
		{
			name: "exact match",
			pref: pref,
			supported: []Range{{
				SampleFormats:      []SampleFormat{Signed16},
				MinChannels:        1,
				MaxChannels:        2,
				MinFramesPerSecond: 8000,
				MaxFramesPerSecond: 96000,
			}},
			want: pref,
		},
		{
			name: "format degrades to s24",
			pref: pref,
			supported: []Range{{
				SampleFormats:      []SampleFormat{Signed24In32, Float32},
				MinChannels:        2,
				MaxChannels:        2,
				MinFramesPerSecond: 48000,
				MaxFramesPerSecond: 48000,
			}},
			want: Format{SampleFormat: Signed24In32, Channels: 2, FramesPerSecond: 48000},
		},
		{
			name: "prefers higher rate when exact unavailable",
			pref: pref,
			supported: []Range{
				{
					SampleFormats:      []SampleFormat{Signed16},
					MinChannels:        2,
					MaxChannels:        2,
					MinFramesPerSecond: 16000,
					MaxFramesPerSecond: 44100,
				},
				{
					SampleFormats:      []SampleFormat{Signed16},
					MinChannels:        2,
					MaxChannels:        2,
					MinFramesPerSecond: 88200,
					MaxFramesPerSecond: 96000,
				},
			},
			want: Format{SampleFormat: Signed16, Channels: 2, FramesPerSecond: 88200},
		},
		{
			name: "discrete rates pick nearest winner",
			pref: pref,
			supported: []Range{{
				SampleFormats:      []SampleFormat{Signed16},
				MinChannels:        2,
				MaxChannels:        2,
				MinFramesPerSecond: 44100,
				MaxFramesPerSecond: 96000,
				RatesDiscrete:      []int{44100, 96000},
			}},
			want: Format{SampleFormat: Signed16, Channels: 2, FramesPerSecond: 96000},
		},
		{
			name: "stereo fallback beats max channels",
			pref: Format{SampleFormat: Signed16, Channels: 6, FramesPerSecond: 48000},
			supported: []Range{{
				SampleFormats:      []SampleFormat{Signed16},
				MinChannels:        1,
				MaxChannels:        4,
				MinFramesPerSecond: 48000,
				MaxFramesPerSecond: 48000,
			}},
			want: Format{SampleFormat: Signed16, Channels: 2, FramesPerSecond: 48000},
		},
		{
			name: "mono hardware",
			pref: pref,
			supported: []Range{{
				SampleFormats:      []SampleFormat{Unsigned8},
				MinChannels:        1,
				MaxChannels:        1,
				MinFramesPerSecond: 8000,
				MaxFramesPerSecond: 8000,
			}},
			want: Format{SampleFormat: Unsigned8, Channels: 1, FramesPerSecond: 8000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectBestFormat(tt.pref, tt.supported)
			if err != nil {
				t.Fatalf("SelectBestFormat: %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectBestFormat = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectBestFormatUnsupported(t *testing.T) {
	_, err := SelectBestFormat(
		Format{SampleFormat: Signed16, Channels: 2, FramesPerSecond: 48000},
		[]Range{})
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("want ErrNotSupported, got %v", err)
	}
}
