package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/audionode/internal/device/alsa"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List ALSA PCM devices",
		Long:  `Lists the PCM devices the kernel exposes, with optional hardware capability probing.`,
		Run: func(_ *cobra.Command, _ []string) {
			devs, err := alsa.ScanPCMDevices()
			if err != nil {
				fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
				os.Exit(1)
			}
			if len(devs) == 0 {
				fmt.Println("No PCM devices found")
				return
			}

			for _, d := range devs {
				var dirs []string
				if d.Playback {
					dirs = append(dirs, "playback")
				}
				if d.Capture {
					dirs = append(dirs, "capture")
				}
				fmt.Printf("hw:%d,%d  %-30s %s\n", d.Card, d.Device, d.Name, strings.Join(dirs, ","))

				if !probe {
					continue
				}
				var tr *alsa.Transport
				if d.Playback {
					tr = alsa.NewOutputTransport(d.Card, d.Device)
				} else {
					tr = alsa.NewInputTransport(d.Card, d.Device)
				}
				info, err := tr.GetDriverInfo()
				if err != nil {
					fmt.Printf("         probe failed: %v\n", err)
					continue
				}
				for _, r := range info.Formats {
					var fmts []string
					for _, sf := range r.SampleFormats {
						fmts = append(fmts, sf.String())
					}
					fmt.Printf("         channels %d-%d, rate %d-%d, formats %s\n",
						r.MinChannels, r.MaxChannels,
						r.MinFramesPerSecond, r.MaxFramesPerSecond,
						strings.Join(fmts, ","))
				}
			}
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Probe supported formats for each device")
	return cmd
}
