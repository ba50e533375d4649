package volume

import "github.com/smazurov/audionode/internal/mix"

// Curve maps a user volume in [0, 1] to decibels. The default curve is
// linear in dB between MinDB and 0, with volume zero snapping to the muted
// sentinel.
type Curve struct {
	MinDB float64
}

// DefaultCurve spans -60 dB to unity.
func DefaultCurve() Curve {
	return Curve{MinDB: -60}
}

// VolumeToDB converts a user volume to decibels.
func (c Curve) VolumeToDB(volume float64) float64 {
	if volume <= 0 {
		return mix.MutedGainDB
	}
	if volume >= 1 {
		return 0
	}
	return c.MinDB * (1 - volume)
}

// DBToVolume inverts the curve for reporting.
func (c Curve) DBToVolume(db float64) float64 {
	if db <= c.MinDB {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return 1 - db/c.MinDB
}
