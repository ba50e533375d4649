package alsa

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// PCMDevice describes one kernel PCM listed in /proc/asound/pcm.
type PCMDevice struct {
	Card     uint
	Device   uint
	Name     string
	Playback bool
	Capture  bool
}

// ScanPCMDevices enumerates the PCM devices the kernel currently exposes.
// A missing procfs entry means no sound cards, not an error.
func ScanPCMDevices() ([]PCMDevice, error) {
	return scanPCMDevices("/proc/asound/pcm")
}

func scanPCMDevices(path string) ([]PCMDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pcm devices: %w", err)
	}

	var out []PCMDevice
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		// 00-00: ALC887 Analog : ALC887 Analog : playback 1 : capture 1
		parts := strings.Split(line, ":")
		if len(parts) < 3 {
			continue
		}
		var card, dev uint
		if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d-%d", &card, &dev); err != nil {
			continue
		}
		d := PCMDevice{Card: card, Device: dev, Name: strings.TrimSpace(parts[1])}
		for _, p := range parts[3:] {
			p = strings.TrimSpace(p)
			switch {
			case strings.HasPrefix(p, "playback"):
				d.Playback = true
			case strings.HasPrefix(p, "capture"):
				d.Capture = true
			}
		}
		out = append(out, d)
	}
	return out, nil
}
