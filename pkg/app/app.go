// Package app wires configuration into a running practice-session service.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"speechcoach/pkg/coach"
	"speechcoach/pkg/config"
	"speechcoach/pkg/gate"
	"speechcoach/pkg/history"
	"speechcoach/pkg/http"
	"speechcoach/pkg/messaging"
	"speechcoach/pkg/metrics"
	"speechcoach/pkg/pipeline"
	"speechcoach/pkg/recorder"
	"speechcoach/pkg/stt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options override components built from configuration. Zero values use
// the configured defaults.
type Options struct {
	Device      recorder.Device
	Permissions recorder.PermissionProvider
	Transcriber stt.Transcriber
	// Events receives controller notifications in addition to the WebSocket hub.
	Events coach.EventSink
	// Prompt streams are used when the permission mode is "prompt".
	PromptIn  io.Reader
	PromptOut io.Writer
}

// App holds the wired components of one speechcoach process
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Store      history.Store
	Providers  *stt.ProviderManager
	Publisher  *messaging.AMQPPublisher
	Pipeline   *pipeline.Pipeline
	Session    *recorder.Session
	Controller *coach.Controller
	Hub        *http.EventHub
}

// New builds every component from cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (*App, error) {
	metrics.StartMetrics(logger, cfg.Metrics.Enabled)

	a := &App{Config: cfg, Logger: logger}

	store, err := history.Open(ctx, &cfg.History, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	a.Store = store
	if entries, err := store.List(ctx); err == nil {
		metrics.SetHistoryEntries(len(entries))
	}

	transcriber := opts.Transcriber
	if transcriber == nil {
		providers, err := stt.NewProviderManagerFromConfig(logger, &cfg.STT, cfg.Recording.SampleRate)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Providers = providers
		transcriber = providers
	}

	var publisher pipeline.Publisher
	if cfg.Messaging.Enabled {
		a.Publisher = messaging.NewAMQPPublisher(logger, messaging.AMQPConfig{
			URL:       cfg.Messaging.AMQPUrl,
			QueueName: cfg.Messaging.QueueName,
		})
		if err := a.Publisher.Connect(); err != nil {
			// entries are still stored; publishing resumes on the next start
			logger.WithError(err).Warn("AMQP publisher unavailable")
		}
		publisher = a.Publisher
	}

	a.Pipeline = pipeline.New(transcriber, store, publisher, logger)

	permissions := opts.Permissions
	if permissions == nil {
		permissions, err = NewPermissionProvider(&cfg.Permission, opts.PromptIn, opts.PromptOut, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	device := opts.Device
	if device == nil {
		device = recorder.NewFFmpegDevice(recorder.FFmpegConfig{
			Command:     cfg.Recording.FFmpegPath,
			InputFormat: cfg.Recording.InputFormat,
			InputDevice: cfg.Recording.InputDevice,
			SampleRate:  cfg.Recording.SampleRate,
			Directory:   cfg.Recording.Directory,
			StopGrace:   cfg.Recording.StopGrace,
		}, logger)
	}

	g := gate.New(cfg.Gate.MinSeconds)
	a.Hub = http.NewEventHub(logger)

	sinks := coach.MultiSink{a.Hub}
	if opts.Events != nil {
		sinks = append(sinks, opts.Events)
	}

	a.Session = recorder.NewSession(device, permissions, logger, recorder.Options{
		MaxDurationSeconds: cfg.Recording.MaxDurationSeconds,
		TickInterval:       cfg.Recording.TickInterval,
		Gate:               g,
		OnAutoStop: func(audio *recorder.CapturedAudio, err error) {
			a.Controller.HandleAutoStop(audio, err)
		},
		OnTick: func(elapsed int) {
			a.Controller.HandleTick(elapsed)
		},
	})
	a.Controller = coach.NewController(a.Session, g, a.Pipeline, sinks, logger)

	return a, nil
}

// NewPermissionProvider builds the provider selected by cfg.Mode
func NewPermissionProvider(cfg *config.PermissionConfig, in io.Reader, out io.Writer, logger *logrus.Logger) (recorder.PermissionProvider, error) {
	switch strings.ToLower(cfg.Mode) {
	case "granted":
		return recorder.StaticPermissions{Granted: true}, nil
	case "denied":
		return recorder.StaticPermissions{Granted: false}, nil
	case "prompt":
		if in == nil || out == nil {
			return nil, fmt.Errorf("permission mode prompt requires an interactive terminal")
		}
		return recorder.NewPromptPermissions(in, out), nil
	case "file", "":
		var fallback recorder.PermissionProvider
		if in != nil && out != nil {
			fallback = recorder.NewPromptPermissions(in, out)
		}
		return recorder.NewFilePermissions(cfg.ConsentFile, fallback, logger), nil
	default:
		return nil, fmt.Errorf("unknown permission mode: %s", cfg.Mode)
	}
}

// Serve runs the HTTP API and WebSocket hub until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	api := http.NewAPI(a.Logger, a.Controller, a.Store)
	server := http.NewServer(a.Logger, &a.Config.HTTP, api, a.Hub)
	a.registerHealthChecks(server)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		// release the microphone before exit
		return a.Session.Abort(context.Background())
	})

	return g.Wait()
}

func (a *App) registerHealthChecks(server *http.Server) {
	server.RegisterHealthCheck("history", func(ctx context.Context) http.CheckResult {
		if _, err := a.Store.List(ctx); err != nil {
			return http.CheckResult{Status: http.StatusUnhealthy, Message: err.Error()}
		}
		return http.CheckResult{Status: http.StatusHealthy, Message: a.Config.History.Backend}
	})

	if a.Providers != nil {
		server.RegisterHealthCheck("stt", func(context.Context) http.CheckResult {
			if _, ok := a.Providers.GetDefaultProvider(); !ok {
				return http.CheckResult{Status: http.StatusUnhealthy, Message: "no transcription provider"}
			}
			return http.CheckResult{Status: http.StatusHealthy, Message: strings.Join(a.Providers.Providers(), ",")}
		})
	}

	if a.Publisher != nil {
		server.RegisterHealthCheck("amqp", func(context.Context) http.CheckResult {
			if !a.Publisher.IsConnected() {
				return http.CheckResult{Status: http.StatusDegraded, Message: "not connected"}
			}
			return http.CheckResult{Status: http.StatusHealthy, Message: a.Config.Messaging.QueueName}
		})
	}
}

// Close releases every component
func (a *App) Close() error {
	var firstErr error
	if a.Publisher != nil {
		a.Publisher.Disconnect()
	}
	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Save(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
