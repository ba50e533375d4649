package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/audionode/cmd"
	"github.com/smazurov/audionode/internal/api"
	"github.com/smazurov/audionode/internal/config"
	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/device/alsa"
	"github.com/smazurov/audionode/internal/device/settings"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/monitoring"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/volume"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	SettingsFile string `help:"Device settings file" default:"devices.toml" toml:"devices.settings_file" env:"DEVICES_SETTINGS_FILE"`
	MixPolicy    string `help:"Mix domain policy (control, shared, dedicated)" default:"dedicated" toml:"devices.mix_policy" env:"DEVICES_MIX_POLICY"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDevice  string `help:"Device logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingDriver  string `help:"Driver handshake logging level" default:"info" toml:"logging.driver" env:"LOGGING_DRIVER"`
	LoggingRoute   string `help:"Routing logging level" default:"info" toml:"logging.route" env:"LOGGING_ROUTE"`
	LoggingRender  string `help:"Renderer logging level" default:"info" toml:"logging.render" env:"LOGGING_RENDER"`
	LoggingCapture string `help:"Capturer logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingVolume  string `help:"Volume logging level" default:"info" toml:"logging.volume" env:"LOGGING_VOLUME"`
	LoggingALSA    string `help:"ALSA transport logging level" default:"info" toml:"logging.alsa" env:"LOGGING_ALSA"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func mixPolicy(name string) exec.MixPolicy {
	switch name {
	case "control":
		return exec.MixOnControl
	case "shared":
		return exec.MixShared
	default:
		return exec.MixDedicated
	}
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"device":  opts.LoggingDevice,
				"driver":  opts.LoggingDriver,
				"route":   opts.LoggingRoute,
				"render":  opts.LoggingRender,
				"capture": opts.LoggingCapture,
				"volume":  opts.LoggingVolume,
				"alsa":    opts.LoggingALSA,
				"api":     opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		// Execution domains and the audio graph core.
		model := exec.NewModel(mixPolicy(opts.MixPolicy))
		bus := events.New()
		matrix := graph.NewLinkMatrix(nil)
		throttle := device.NewThrottleOutput(matrix, model.AcquireMixDomain())
		routes := route.NewGraph(matrix, bus, throttle)
		volumes := volume.NewManager(bus)

		// Persisted device settings plus live reload on file edits.
		store := settings.NewStore(opts.SettingsFile)
		if loadErr := store.Load(); loadErr != nil {
			logger.Warn("Failed to load device settings", "error", loadErr)
		}
		manager := device.NewManager(matrix, bus, routes, store, model)

		settingsWatcher := config.NewFileWatcher(
			store.Path(), settings.LoadFile, logging.GetLogger("device"))
		settingsWatcher.OnReload(func(f settings.File) {
			for id, ds := range f.Devices {
				manager.ApplySettings(id, ds)
			}
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Manager:      manager,
			Routes:       routes,
			Volumes:      volumes,
			Matrix:       matrix,
			Bus:          bus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = promhttp.Handler()
		}
		server := api.NewServer(apiOpts)

		hotplug := monitoring.NewMonitor(func(ev monitoring.Event) {
			d := ev.Device
			if ev.Added {
				if d.Playback {
					manager.AddOutputDevice(d.Name, alsa.NewOutputTransport(d.Card, d.Device))
				}
				if d.Capture {
					manager.AddInputDevice(d.Name, alsa.NewInputTransport(d.Card, d.Device))
				}
				return
			}
			uid := fmt.Sprintf("alsa:%d,%d", d.Card, d.Device)
			for _, info := range manager.Devices() {
				if info.UniqueID == uid {
					manager.RemoveDevice(info.ID)
				}
			}
		}, logging.GetLogger("device"))

		hooks.OnStart(func() {
			throttle.Start()

			if hotplugErr := hotplug.Start(); hotplugErr != nil {
				logger.Warn("Hotplug monitor failed to start", "error", hotplugErr)
			}

			if watchErr := settingsWatcher.Start(); watchErr != nil {
				logger.Warn("Settings watcher failed to start", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			settingsWatcher.Stop()
			hotplug.Stop()
			manager.Shutdown()
			throttle.Shutdown()
			model.Shutdown()
		})
	})

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreatePlayCmd())
	cli.Root().AddCommand(cmd.CreateRecordCmd())

	cli.Run()
}
