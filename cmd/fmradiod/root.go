package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fmradiod/internal/audio"
	"github.com/fmradiod/internal/audio/paudio"
	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/config"
	"github.com/fmradiod/internal/control"
	"github.com/fmradiod/internal/httpd"
	"github.com/fmradiod/internal/logging"
	"github.com/fmradiod/internal/maintenance"
	"github.com/fmradiod/internal/metrics"
	"github.com/fmradiod/internal/ops"
	"github.com/fmradiod/internal/publish"
	"github.com/fmradiod/internal/radio"
	"github.com/fmradiod/internal/rds"
	"github.com/fmradiod/internal/status"
	"github.com/fmradiod/internal/tuner"
)

// rootCmd runs the daemon when called without a subcommand
var rootCmd = &cobra.Command{
	Use:          "fmradiod",
	Short:        "FM tuner control daemon",
	Long:         `Control an FM tuner and serve its status over HTTP`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			port, err := cmd.Flags().GetInt("port")
			if err != nil {
				return err
			}
			cfg.Network.HTTP.Port = port
		}
		return serve(cfg)
	},
}

// Execute runs the command line. It only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "config file (default $FMRADIOD_CONFIG)")
	flags.IntP("port", "p", 8080, "HTTP control port")

	rootCmd.AddCommand(newCtlCmd())
}

// openAudio picks the passthrough backend. "none" disables playback.
func openAudio(cfg config.AudioConfig) audio.Opener {
	switch cfg.Backend {
	case "portaudio":
		return paudio.NewOpener(paudio.Options{
			CaptureDevice:   cfg.CaptureDevice,
			PlaybackDevice:  cfg.PlaybackDevice,
			FramesPerBuffer: cfg.FramesPerBuffer,
		})
	case "sim":
		return audio.NewSimOpener(float64(cfg.ToneHz))
	default:
		return nil
	}
}

func buildEngine(cfg *config.Config, m *metrics.Metrics) (*radio.Engine, error) {
	region, err := chip.ParseRegion(cfg.Device.Region)
	if err != nil {
		return nil, err
	}
	driver, err := chip.Open(cfg.Device.Driver, region)
	if err != nil {
		return nil, err
	}

	format := audio.DefaultFormat()
	return radio.New(driver, radio.Options{
		Tuner: tuner.Options{
			Region:       region,
			EnableVolume: cfg.Device.EnableVolume,
			EnableLED:    cfg.Device.EnableLED,
		},
		RDS: rds.Options{
			PollInterval:      cfg.RDS.PollInterval(),
			PollLimit:         cfg.RDS.PollLimit,
			MismatchThreshold: cfg.RDS.MismatchThreshold,
		},
		Audio: audio.Options{
			Format:         format,
			LowWaterFrames: format.Frames(cfg.Audio.LowWater()),
		},
		Opener:  openAudio(cfg.Audio),
		Metrics: m,
	}), nil
}

// buildActions creates the parameter registry shared by the HTTP control
// path and the maintenance console.
func buildActions(cfg *config.Config, engine *radio.Engine) *control.ActionRegistry {
	actions := control.NewActionRegistry()
	control.RegisterRadioActions(actions, engine, cfg.Device.SeekThreshold)
	return actions
}

func buildContent(cfg *config.Config, engine *radio.Engine, actions *control.ActionRegistry) *httpd.ContentManager {
	httpCfg := cfg.Network.HTTP

	var files []httpd.StaticFile
	for _, f := range httpCfg.StaticFiles {
		files = append(files, httpd.StaticFile{URI: f.URI, Path: f.Path, MimeType: f.MimeType})
	}

	manager := httpd.NewContentManager()
	manager.AddContentHandler("static", httpd.NewStaticFileHandler(files))
	manager.AddContentHandler("crossdomain", httpd.NewCrossDomainHandler(httpCfg.CrossDomain))
	manager.AddContentHandler("radio", httpd.NewRadioHandler(httpCfg.ControlPath, engine, actions,
		status.NewRenderer(cfg.Render.MaxBytes)))
	return manager
}

func serve(cfg *config.Config) error {
	logCloser := logging.Setup(cfg.Logging)
	defer logCloser.Close()

	log.Println("Starting fmradiod...")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine, err := buildEngine(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to set up radio: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Initialize(ctx); err != nil {
		engine.Close()
		return fmt.Errorf("failed to initialize radio: %w", err)
	}
	if cfg.RDS.StartOnBoot {
		if err := engine.SetRDS(true); err != nil {
			log.Printf("Failed to start RDS: %v", err)
		}
	}
	if cfg.Audio.PowerOnBoot {
		if err := engine.SetPower(true); err != nil {
			log.Printf("Failed to start audio: %v", err)
		}
	}

	actions := buildActions(cfg, engine)
	httpCfg := cfg.Network.HTTP
	server, err := httpd.NewServer(httpd.Config{
		Host:           httpCfg.Host,
		Port:           httpCfg.Port,
		ServerHeader:   httpCfg.ServerHeader,
		MaxConnections: httpCfg.MaxConnections,
		ReadTimeout:    httpCfg.ReadTimeout(),
		MaxBodyBytes:   httpCfg.MaxBodyBytes,
		AllowedCIDRs:   httpCfg.AllowedCIDRs,
	}, buildContent(cfg, engine, actions), m)
	if err != nil {
		engine.Close()
		return err
	}
	if err := server.Listen(); err != nil {
		engine.Close()
		return err
	}

	var maint *maintenance.Server
	if maintCfg := cfg.Network.Maintenance; maintCfg.Port != 0 {
		maint, err = maintenance.NewServer(maintenance.Config{
			Host:         httpCfg.Host,
			Port:         maintCfg.Port,
			AllowedCIDRs: maintCfg.AllowedCIDRs,
		}, engine, actions)
		if err == nil {
			err = maint.Listen()
		}
		if err != nil {
			server.Close()
			engine.Close()
			return err
		}
	}

	var opsServer *ops.Server
	if cfg.Ops.Port != 0 {
		opsServer = ops.NewServer(ops.Config{
			Host:           httpCfg.Host,
			Port:           cfg.Ops.Port,
			StreamInterval: cfg.Ops.StreamInterval(),
		}, engine, reg)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Serve)
	if maint != nil {
		g.Go(maint.Serve)
	}
	if opsServer != nil {
		g.Go(opsServer.ListenAndServe)
	}
	if cfg.MQTT.Enabled {
		client, err := publish.Connect(cfg.MQTT)
		if err != nil {
			log.Printf("MQTT: %v", err)
		} else {
			pub := publish.NewPublisher(client, engine, publish.Options{
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Interval:    cfg.MQTT.Interval(),
				QoS:         byte(cfg.MQTT.QoS),
				Metrics:     m,
			})
			g.Go(func() error { return pub.Run(gctx) })
		}
	}

	// Shutdown: radio first so audio stops before the front ends go away.
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		if err := engine.Close(); err != nil {
			log.Printf("Radio shutdown error: %v", err)
		}
		if err := server.Close(); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		if maint != nil {
			if err := maint.Close(); err != nil {
				log.Printf("Maintenance server shutdown error: %v", err)
			}
		}
		if opsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := opsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Ops server shutdown error: %v", err)
			}
		}
		return nil
	})

	err = g.Wait()
	log.Println("fmradiod stopped")
	return err
}
