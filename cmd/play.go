package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/render"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/timeline"
	"github.com/smazurov/audionode/internal/volume"
)

// packetFrames is the span of one renderer packet during file playback.
const packetFrames = 4800

// CreatePlayCmd creates the play command.
func CreatePlayCmd() *cobra.Command {
	var settingsFile string
	var vol float64

	cmd := &cobra.Command{
		Use:   "play [file]",
		Short: "Play a WAV or MP3 file on the default output",
		Long: `Decodes the given audio file and plays it through the current render ` +
			`target, exercising the full mix path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("play")

			samples, f, err := decodeFile(args[0])
			if err != nil {
				return err
			}
			logger.Info("Decoded file", "file", args[0], "format", f.String(),
				"frames", len(samples)/f.Channels)

			eng := startEngine(settingsFile)
			defer eng.stop()
			if err := eng.addFirstDevice(true, 5*time.Second); err != nil {
				return err
			}

			r := render.NewRenderer(eng.matrix, func(fn func()) {
				_ = eng.model.Control().Post(fn)
			})
			if err := r.SetPCMFormat(f); err != nil {
				return err
			}
			eng.volumes.AddStream(r)
			eng.volumes.SetUsageVolume(volume.UsageRenderMedia, vol, nil)
			eng.routes.AddRenderer(r)
			defer eng.routes.RemoveRenderer(r)
			eng.routes.SetRendererRoutingProfile(r, route.RoutingProfile{
				Routable: true,
				Usage:    volume.UsageRenderMedia,
			})

			done := make(chan struct{})
			chunk := packetFrames * f.Channels
			for off := 0; off < len(samples); off += chunk {
				end := off + chunk
				if end > len(samples) {
					end = len(samples)
				}
				var onRetire func()
				if end == len(samples) {
					onRetire = func() { close(done) }
				}
				if _, err := r.SendPacket(samples[off:end], onRetire); err != nil {
					return err
				}
			}

			lead := r.MinLeadTime()
			r.Play(timeline.MonotonicNow() + int64(lead) + int64(10*time.Millisecond))

			<-done
			// Let the tail drain out of the hardware ring.
			time.Sleep(lead + 50*time.Millisecond)
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsFile, "settings", "devices.toml", "Device settings file")
	cmd.Flags().Float64Var(&vol, "volume", 0.8, "Media volume in [0, 1]")
	return cmd
}

// decodeFile loads an entire WAV or MP3 file as interleaved float32.
func decodeFile(path string) ([]float32, format.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".mp3":
		return decodeMP3(path)
	default:
		return nil, format.Format{}, fmt.Errorf("unsupported file type: %s", path)
	}
}

func decodeWAV(path string) ([]float32, format.Format, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, format.Format{}, err
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		return nil, format.Format{}, fmt.Errorf("not a valid WAV file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, format.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return intBufferToFloat(buf), format.Format{
		SampleFormat:    format.Float32,
		Channels:        buf.Format.NumChannels,
		FramesPerSecond: buf.Format.SampleRate,
	}, nil
}

func intBufferToFloat(buf *goaudio.IntBuffer) []float32 {
	var maxVal float32
	switch buf.SourceBitDepth {
	case 8:
		maxVal = 128
	case 24:
		maxVal = 8388608
	case 32:
		maxVal = 2147483648
	default:
		maxVal = 32768
	}
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / maxVal
	}
	return out
}

func decodeMP3(path string) ([]float32, format.Format, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, format.Format{}, err
	}
	defer fh.Close()

	dec, err := gomp3.NewDecoder(fh)
	if err != nil {
		return nil, format.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, format.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	out := make([]float32, len(raw)/2)
	for i := range out {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out, format.Format{
		SampleFormat:    format.Float32,
		Channels:        2,
		FramesPerSecond: dec.SampleRate(),
	}, nil
}
