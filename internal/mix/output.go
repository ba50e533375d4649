package mix

import (
	"encoding/binary"
	"math"

	"github.com/smazurov/audionode/internal/format"
)

// ToWire clamps an accumulated float32 mix buffer and converts it to the
// destination's wire sample format, writing into dst. dst must hold
// len(samples) * BytesPerSample bytes.
func ToWire(dst []byte, samples []float32, f format.SampleFormat) {
	switch f {
	case format.Unsigned8:
		for i, s := range samples {
			dst[i] = uint8(clamp(s)*127 + 128)
		}
	case format.Signed16:
		for i, s := range samples {
			v := int16(clamp(s) * math.MaxInt16)
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
		}
	case format.Signed24In32:
		for i, s := range samples {
			v := int32(clamp(s) * (1<<23 - 1))
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(v<<8))
		}
	case format.Float32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(clamp(s)))
		}
	}
}

// FromWire converts wire samples to float32, the mixing domain's working
// format. dst must hold len-of-samples float32 values.
func FromWire(dst []float32, src []byte, f format.SampleFormat) {
	switch f {
	case format.Unsigned8:
		for i := range dst {
			dst[i] = (float32(src[i]) - 128) / 128
		}
	case format.Signed16:
		for i := range dst {
			v := int16(binary.LittleEndian.Uint16(src[i*2:]))
			dst[i] = float32(v) / math.MaxInt16
		}
	case format.Signed24In32:
		for i := range dst {
			v := int32(binary.LittleEndian.Uint32(src[i*4:])) >> 8
			dst[i] = float32(v) / (1<<23 - 1)
		}
	case format.Float32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}
}

// Silence fills dst with the wire representation of silence.
func Silence(dst []byte, f format.SampleFormat) {
	if f == format.Unsigned8 {
		for i := range dst {
			dst[i] = 128
		}
		return
	}
	for i := range dst {
		dst[i] = 0
	}
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
