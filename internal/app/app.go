// Package app wires the pipeline together: config, logging, the power event
// source, the lock-state monitor, capture, and per-channel delivery.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"lockwatch/internal/capture"
	"lockwatch/internal/channel/feishu"
	"lockwatch/internal/channel/telegram"
	"lockwatch/internal/channel/wecom"
	"lockwatch/internal/config"
	"lockwatch/internal/dispatch"
	"lockwatch/internal/eventbus"
	"lockwatch/internal/ledger"
	"lockwatch/internal/power"
	"lockwatch/internal/report"
	"lockwatch/internal/watch"
	logx "lockwatch/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *Supervisor

	logs *logx.Service
	log  logx.Logger

	bus    eventbus.Bus
	engine *capture.ExecEngine
	det    *capture.ExecDetector
	source power.Source
	disp   *dispatch.Dispatcher
	mon    *watch.Monitor
	led    ledger.Ledger
	rec    *ledger.Recorder
	rep    *report.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	engine := capture.NewExecEngine(execConfig(cfg.Capture), log.With(logx.String("comp", "capture")))
	det := capture.NewExecDetector(detectorConfig(cfg.Capture), log.With(logx.String("comp", "detect")))

	senders := []dispatch.Sender{
		telegram.New(func() config.TelegramConfig { return cfgm.Get().Channels.Telegram },
			log.With(logx.String("comp", "telegram"))),
		feishu.New(func() config.FeishuConfig { return cfgm.Get().Channels.Feishu },
			log.With(logx.String("comp", "feishu"))),
		wecom.New(func() config.WeComConfig { return cfgm.Get().Channels.WeCom },
			log.With(logx.String("comp", "wecom"))),
	}

	queueCfg, err := queueConfig(cfg.Delivery)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(senders, queueCfg, log.With(logx.String("comp", "delivery")), bus)

	source := power.NewLogindSource(log.With(logx.String("comp", "power")))
	mon := watch.New(monitorSettings(cfgm), source, engine, det, disp, bus,
		log.With(logx.String("comp", "monitor")))

	var led ledger.Ledger
	if cfg.Ledger != nil {
		busyTimeout, err := config.ParseDurationOrDefault("ledger.busy_timeout", cfg.Ledger.BusyTimeout, 5*time.Second)
		if err != nil {
			return nil, err
		}
		led, err = ledger.Open(ledger.Config{
			Driver:      cfg.Ledger.Driver,
			Path:        cfg.Ledger.Path,
			BusyTimeout: busyTimeout,
		}, log.With(logx.String("comp", "ledger")))
		if err != nil {
			return nil, err
		}
	}
	rec := ledger.NewRecorder(led, bus, log.With(logx.String("comp", "ledger")))

	var rep *report.Service
	if cfg.Report != nil && cfg.Report.Enabled {
		rep = report.New(report.Config{
			Enabled:  true,
			Schedule: cfg.Report.Schedule,
			Timezone: cfg.Report.Timezone,
		}, led, disp, log.With(logx.String("comp", "report")))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		bus:     bus,
		engine:  engine,
		det:     det,
		source:  source,
		disp:    disp,
		mon:     mon,
		led:     led,
		rec:     rec,
		rep:     rep,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetValidator(validateConfig)

	a.disp.Start(a.sup.Context())
	a.rec.Start(a.sup.Context())

	cfg := a.cfgm.Get()
	if cfg.Monitor.Enabled {
		if err := a.mon.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("monitor start: %w", err)
		}
	} else {
		a.log.Warn("monitor disabled; no captures will be taken")
	}

	if a.rep != nil {
		if err := a.rep.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("report start: %w", err)
		}
	}

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		prevEnabled := cfg.Monitor.Enabled
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.engine.Apply(execConfig(newCfg.Capture))
				a.det.Apply(detectorConfig(newCfg.Capture))

				// Monitor timings are re-read on the next capture; only the
				// enable flag needs handling here.
				if prevEnabled && !newCfg.Monitor.Enabled {
					a.log.Info("monitor disabled via config")
					stopCtx, cancel := context.WithTimeout(c, 5*time.Second)
					a.mon.Stop(stopCtx)
					cancel()
				} else if !prevEnabled && newCfg.Monitor.Enabled {
					a.log.Info("monitor enabled via config")
					if err := a.mon.Start(c); err != nil {
						a.log.Error("monitor restart failed", logx.Err(err))
					}
				}
				prevEnabled = newCfg.Monitor.Enabled

				a.log.Info("config reloaded")
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Each shutdown step gets an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					a.log.Error("panic in stop step", logx.String("name", name), logx.Any("panic", r))
				}
			}()
			fn(stepCtx)
		}()
		select {
		case <-done:
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	// Producers first, then delivery, then persistence.
	step("monitor", 10*time.Second, func(c context.Context) { a.mon.Stop(c) })
	if a.rep != nil {
		step("report", 2*time.Second, func(c context.Context) { a.rep.Stop(c) })
	}
	step("delivery", 10*time.Second, func(c context.Context) { a.disp.Stop(c) })
	step("recorder", 2*time.Second, func(c context.Context) { a.rec.Stop() })
	if a.led != nil {
		step("ledger", 2*time.Second, func(c context.Context) {
			if err := a.led.Close(); err != nil {
				a.log.Warn("ledger close", logx.Err(err))
			}
		})
	}

	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) {
		if err := a.sup.Wait(c); err != nil && err != context.DeadlineExceeded {
			a.log.Debug("supervisor wait", logx.Err(err))
		}
	})

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
