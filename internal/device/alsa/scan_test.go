package alsa

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanPCMDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm")
	content := `00-00: ALC887-VD Analog : ALC887-VD Analog : playback 1 : capture 1
00-03: HDMI 0 : HDMI 0 : playback 1
01-00: USB Audio : USB Audio #0 : playback 1 : capture 1
02-00: Mic : USB Mic : capture 1
garbage line
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	devs, err := scanPCMDevices(path)
	if err != nil {
		t.Fatalf("scanPCMDevices: %v", err)
	}
	if len(devs) != 4 {
		t.Fatalf("parsed %d devices, want 4", len(devs))
	}

	want := []PCMDevice{
		{Card: 0, Device: 0, Name: "ALC887-VD Analog", Playback: true, Capture: true},
		{Card: 0, Device: 3, Name: "HDMI 0", Playback: true},
		{Card: 1, Device: 0, Name: "USB Audio", Playback: true, Capture: true},
		{Card: 2, Device: 0, Name: "Mic", Capture: true},
	}
	for i, w := range want {
		if devs[i] != w {
			t.Errorf("device %d = %+v, want %+v", i, devs[i], w)
		}
	}
}

func TestScanPCMDevicesMissingProcfs(t *testing.T) {
	devs, err := scanPCMDevices(filepath.Join(t.TempDir(), "pcm"))
	if err != nil {
		t.Fatalf("missing procfs entry should not error: %v", err)
	}
	if devs != nil {
		t.Fatalf("missing procfs entry returned %v", devs)
	}
}
