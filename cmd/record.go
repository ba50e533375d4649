package cmd

import (
	"encoding/binary"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/capture"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/volume"
)

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var settingsFile string
	var durationStr string
	var loopback bool

	cmd := &cobra.Command{
		Use:   "record [file.wav]",
		Short: "Record the default input to a WAV file",
		Long: `Captures from the current capture target (or the loopback tap of the ` +
			`render target) into a 16-bit WAV file. Stops after --duration or on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("record")

			eng := startEngine(settingsFile)
			defer eng.stop()
			// Loopback taps the render target, so it needs a playback
			// device; plain capture needs an input.
			if err := eng.addFirstDevice(loopback, 5*time.Second); err != nil {
				return err
			}

			f := format.Format{
				SampleFormat:    format.Signed16,
				Channels:        2,
				FramesPerSecond: 48000,
			}
			c := capture.NewCapturer(eng.matrix, eng.bus, eng.model.Control(), eng.model.AcquireMixDomain())
			defer c.Shutdown()
			if err := c.SetPCMFormat(f); err != nil {
				return err
			}

			// One second of payload, delivered in 100ms packets.
			payload := make([]byte, f.BytesPerFrame()*f.FramesPerSecond)
			if err := c.AddPayloadBuffer(payload); err != nil {
				return err
			}

			var mu sync.Mutex
			var recorded []byte
			bpf := int64(f.BytesPerFrame())
			c.SetPacketSink(func(p capture.Packet) {
				region := payload[p.OffsetFrames*bpf : (p.OffsetFrames+p.FilledFrames)*bpf]
				mu.Lock()
				recorded = append(recorded, region...)
				mu.Unlock()
				c.ReleasePacket(p.Sequence)
			})

			if loopback {
				eng.routes.AddLoopbackCapturer(c)
				defer eng.routes.RemoveLoopbackCapturer(c)
				eng.routes.SetLoopbackCapturerRoutingProfile(c, route.RoutingProfile{
					Routable: true,
					Usage:    volume.UsageCaptureLoopback,
				})
			} else {
				eng.routes.AddCapturer(c)
				defer eng.routes.RemoveCapturer(c)
				eng.routes.SetCapturerRoutingProfile(c, route.RoutingProfile{
					Routable: true,
					Usage:    volume.UsageCaptureForeground,
				})
			}

			if err := c.StartAsyncCapture(int64(f.FramesPerSecond / 10)); err != nil {
				return err
			}

			duration, err := time.ParseDuration(durationStr)
			if err != nil {
				return err
			}
			logger.Info("Recording", "file", args[0], "duration", duration)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-time.After(duration):
			case <-stop:
				logger.Info("Interrupted, finishing")
			}

			drained := make(chan struct{})
			if err := c.StopAsyncCapture(func() { close(drained) }); err != nil {
				return err
			}
			<-drained

			mu.Lock()
			data := recorded
			mu.Unlock()
			return writeWAV(args[0], f, data)
		},
	}

	cmd.Flags().StringVar(&settingsFile, "settings", "devices.toml", "Device settings file")
	cmd.Flags().StringVar(&durationStr, "duration", "10s", "Recording duration")
	cmd.Flags().BoolVar(&loopback, "loopback", false, "Capture the render target's loopback instead of an input")
	return cmd
}

func writeWAV(path string, f format.Format, data []byte) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	enc := wav.NewEncoder(fh, f.FramesPerSecond, 16, f.Channels, 1)
	ints := make([]int, len(data)/2)
	for i := range ints {
		ints[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	if err := enc.Write(&goaudio.IntBuffer{
		Data: ints,
		Format: &goaudio.Format{
			NumChannels: f.Channels,
			SampleRate:  f.FramesPerSecond,
		},
		SourceBitDepth: 16,
	}); err != nil {
		return err
	}
	return enc.Close()
}
