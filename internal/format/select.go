package format

import "errors"

// ErrNotSupported is returned when no hardware range can satisfy a preference.
var ErrNotSupported = errors.New("format: no supported format matches preference")

// Scoring weights. Sample format dominates channel count, which dominates
// frame rate, so a candidate can never win on rate alone.
const (
	formatWeight   = 100
	channelsWeight = 10
	rateWeight     = 1
)

// Fallback ranks per axis. Higher is better; zero means unusable.
func formatRank(pref, candidate SampleFormat) int {
	if candidate == pref {
		return 5
	}
	switch candidate {
	case Signed24In32:
		return 4
	case Signed16:
		return 3
	case Float32:
		return 2
	case Unsigned8:
		return 1
	}
	return 0
}

func channelsRank(pref, candidate, maxAvailable int) int {
	switch {
	case candidate == pref:
		return 3
	case candidate == 2:
		return 2
	case candidate == maxAvailable:
		return 1
	}
	return 0
}

func rateRank(pref, candidate int) int {
	switch {
	case candidate == pref:
		return 3
	case candidate > pref:
		return 2
	}
	return 1
}

type candidate struct {
	format    Format
	score     int
	rateDelta int
}

// SelectBestFormat picks the best supported format for a preference.
//
// Every (sample format, channel count, rate) combination drawn from the
// supported ranges is scored with weighted axis ranks; the highest score
// wins and ties break toward the smallest absolute rate delta. The result
// is a pure function of its inputs.
func SelectBestFormat(pref Format, supported []Range) (Format, error) {
	best := candidate{score: -1}

	consider := func(f Format) {
		score := 0
		fr := formatRank(pref.SampleFormat, f.SampleFormat)
		if fr == 0 {
			return
		}
		score += formatWeight * fr

		maxCh := f.Channels
		for _, r := range supported {
			if r.MaxChannels > maxCh {
				maxCh = r.MaxChannels
			}
		}
		cr := channelsRank(pref.Channels, f.Channels, maxCh)
		if cr == 0 {
			return
		}
		score += channelsWeight * cr
		score += rateWeight * rateRank(pref.FramesPerSecond, f.FramesPerSecond)

		delta := f.FramesPerSecond - pref.FramesPerSecond
		if delta < 0 {
			delta = -delta
		}
		if score > best.score || (score == best.score && delta < best.rateDelta) {
			best = candidate{format: f, score: score, rateDelta: delta}
		}
	}

	for _, r := range supported {
		rates := r.RatesDiscrete
		if len(rates) == 0 {
			rates = clampRates(pref.FramesPerSecond, r.MinFramesPerSecond, r.MaxFramesPerSecond)
		}
		for _, sf := range r.SampleFormats {
			for ch := r.MinChannels; ch <= r.MaxChannels; ch++ {
				for _, rate := range rates {
					if rate < r.MinFramesPerSecond || rate > r.MaxFramesPerSecond {
						continue
					}
					consider(Format{SampleFormat: sf, Channels: ch, FramesPerSecond: rate})
				}
			}
		}
	}

	if best.score < 0 {
		return Format{}, ErrNotSupported
	}
	return best.format, nil
}

// clampRates reduces a continuous rate range to the candidates that can win:
// the preferred rate when in range, else the nearest endpoints.
func clampRates(pref, min, max int) []int {
	if min > max {
		return nil
	}
	if pref >= min && pref <= max {
		return []int{pref}
	}
	if pref < min {
		return []int{min}
	}
	return []int{max}
}
