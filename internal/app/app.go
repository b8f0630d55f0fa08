// Package app wires the runtime together: reminder subsystem, mode arbiter,
// connectivity monitor and the speech capabilities they share.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/config"
	"github.com/normanking/cortexvoice/internal/connectivity"
	"github.com/normanking/cortexvoice/internal/logging"
	"github.com/normanking/cortexvoice/internal/metrics"
	"github.com/normanking/cortexvoice/internal/mode"
	"github.com/normanking/cortexvoice/internal/offline"
	"github.com/normanking/cortexvoice/internal/online"
	"github.com/normanking/cortexvoice/internal/reminder"
	"github.com/normanking/cortexvoice/internal/speech"
	"github.com/normanking/cortexvoice/internal/timeparse"
	"github.com/normanking/cortexvoice/internal/voice"
)

// Runtime owns every long-lived component of the voice assistant.
type Runtime struct {
	cfg    *config.Config
	logger zerolog.Logger

	events     *bus.EventBus
	store      *reminder.Store
	scheduler  *reminder.Scheduler
	watcher    *reminder.Watcher
	arbiter    *mode.Arbiter
	monitor    *connectivity.Monitor
	metricsSrv *metrics.Server

	speaker    speech.Speaker
	recognizer speech.Recognizer
	conv       *voice.ConversationManager
}

// New builds the runtime from configuration. Nothing starts running until
// Run.
func New(cfg *config.Config, log *logging.Logger) (*Runtime, error) {
	logger := log.Zerolog()

	// Every lifecycle event lands in the structured log, whoever produced
	// it.
	events := bus.NewEventBus()
	eventLog := logger.With().Str("component", "events").Logger()
	events.SubscribeAll(func(e bus.Event) {
		eventLog.Debug().Str("event", string(e.Type)).Fields(e.Data).Msg("Event")
	})

	speaker := pickSpeaker(cfg, logger)
	recognizer := speech.NewConsoleRecognizer(logger, os.Stdin)

	parser := timeparse.New()
	store, err := reminder.NewStore(cfg.Reminders.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open reminder store: %w", err)
	}
	scheduler := reminder.NewScheduler(store, parser, speaker, events, logger, reminder.SchedulerConfig{
		FallbackDelay: cfg.Reminders.FallbackDelay,
		SweepSchedule: cfg.Reminders.SweepSchedule,
	})

	conv := voice.NewConversationManager(voice.DefaultConversationConfig())
	tools := online.NewRegistry(logger)

	onlineFactory := func() (mode.Session, error) {
		sess := online.NewSession(online.Config{
			AgentURL:         cfg.Online.AgentURL,
			AgentID:          cfg.Online.AgentID,
			APIKey:           cfg.Online.APIKey,
			HandshakeTimeout: cfg.Online.HandshakeTimeout,
			ResponseTimeout:  cfg.Online.ResponseTimeout,
		}, tools, conv, events, logger)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Online.HandshakeTimeout)
		defer cancel()
		if err := sess.Start(ctx); err != nil {
			return nil, err
		}
		return sess, nil
	}

	offlineFactory := func() (mode.Session, error) {
		router := offline.NewRouter(scheduler, logger)
		return offline.NewSession(recognizer, speaker, router, conv, events, cfg.Offline.ListenTimeout, logger), nil
	}

	arbiter := mode.NewArbiter(onlineFactory, offlineFactory, events, logger)

	checker := connectivity.NewChecker(cfg.Connectivity.ProbeAddr, cfg.Connectivity.ProbeURL,
		cfg.Connectivity.ProbeTimeout, logger)
	monitor := connectivity.NewMonitor(checker.Check, arbiter, events, cfg.Connectivity.PollInterval, logger)

	rt := &Runtime{
		cfg:        cfg,
		logger:     logger.With().Str("component", "runtime").Logger(),
		events:     events,
		store:      store,
		scheduler:  scheduler,
		arbiter:    arbiter,
		monitor:    monitor,
		speaker:    speaker,
		recognizer: recognizer,
		conv:       conv,
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, logger)
		// Recent log history, so `cortexvoice status` can show what a
		// running instance has been doing.
		srv.HandleFunc("/history", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(log.GetHistory(20)); err != nil {
				logger.Debug().Err(err).Msg("History encode failed")
			}
		})
		rt.metricsSrv = srv
	}
	return rt, nil
}

// pickSpeaker returns the configured system TTS command when it is usable,
// the console otherwise.
func pickSpeaker(cfg *config.Config, logger zerolog.Logger) speech.Speaker {
	if cfg.Speech.SpeakCommand != "" {
		cmd := speech.NewCommandSpeaker(logger, cfg.Speech.SpeakCommand, cfg.Speech.SpeakArgs...)
		if cmd.IsAvailable() {
			return cmd
		}
		logger.Warn().Str("command", cfg.Speech.SpeakCommand).
			Msg("Configured TTS command not found, announcing to console")
	}
	return speech.NewConsoleSpeaker(logger, os.Stdout)
}

// Arbiter exposes the mode arbiter, mostly for the status surface.
func (rt *Runtime) Arbiter() *mode.Arbiter { return rt.arbiter }

// Scheduler exposes the reminder scheduler.
func (rt *Runtime) Scheduler() *reminder.Scheduler { return rt.scheduler }

// Run starts every component and blocks until the context is cancelled or
// the conversation ends naturally. Shutdown is bounded: no component gets to
// stall exit indefinitely.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.scheduler.Start(); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}

	if rt.cfg.Reminders.WatchFile {
		watcher, err := reminder.NewWatcher(rt.scheduler, rt.logger)
		if err != nil {
			rt.logger.Warn().Err(err).Msg("Reminder file watching unavailable")
		} else {
			rt.watcher = watcher
		}
	}

	if rt.metricsSrv != nil {
		rt.metricsSrv.Start()
	}

	rt.logger.Info().Msg("CortexVoice runtime started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.monitor.Run(gctx) })
	err := g.Wait()

	rt.shutdown()

	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// shutdown tears everything down in dependency order.
func (rt *Runtime) shutdown() {
	rt.logger.Info().Msg("Shutting down")

	rt.arbiter.StopCurrent()
	rt.scheduler.Stop()

	if rt.watcher != nil {
		if err := rt.watcher.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("Reminder watcher close failed")
		}
	}
	if rt.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rt.metricsSrv.Stop(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	rt.logger.Info().Msg("Shutdown complete")
}
