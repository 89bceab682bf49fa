// Package alert runs the recurring weather-alert pass: every tick it
// cross-references live weather against stored crop data for each subscribed
// chat and pushes the resulting advisory through the owning channel.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"cropadvisor/internal/advisor"
	"cropadvisor/internal/domain"
	"cropadvisor/internal/metrics"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
)

const defaultConcurrency = 8

// Scheduler evaluates all subscriptions on a fixed period. Evaluations fan
// out onto a bounded worker pool and fail independently: one bad lookup never
// stops the batch, and a tick that overruns its window suppresses the next
// tick instead of running concurrently with it.
type Scheduler struct {
	registry *advisor.SubscriptionRegistry
	weather  domain.WeatherProvider
	crops    domain.CropStore
	bus      domain.MessageBus
	interval time.Duration
	pool     *ants.Pool
	logger   *slog.Logger
}

type SchedulerConfig struct {
	Registry        *advisor.SubscriptionRegistry
	Weather         domain.WeatherProvider
	Crops           domain.CropStore
	Bus             domain.MessageBus
	IntervalMinutes int
	Concurrency     int
	Logger          *slog.Logger
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.IntervalMinutes < 1 {
		cfg.IntervalMinutes = 2
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("alert worker pool: %w", err)
	}

	return &Scheduler{
		registry: cfg.Registry,
		weather:  cfg.Weather,
		crops:    cfg.Crops,
		bus:      cfg.Bus,
		interval: time.Duration(cfg.IntervalMinutes) * time.Minute,
		pool:     pool,
		logger:   cfg.Logger,
	}, nil
}

// Start runs the tick schedule until the context is cancelled. Blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule alerts: %w", err)
	}

	s.logger.Info("weather alert scheduler started", "interval", s.interval)
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.pool.Release()
	s.logger.Info("weather alert scheduler stopped")
	return nil
}

// Tick evaluates every current subscription once. Evaluations run on the
// worker pool and the tick returns when all of them have finished.
func (s *Scheduler) Tick(ctx context.Context) {
	subs := s.registry.All()
	if len(subs) == 0 {
		return
	}

	s.logger.Info("weather alert tick", "subscriptions", len(subs))
	metrics.Collector.Counter("alert_ticks_total", "Completed alert scheduler ticks.", "").Inc()
	metrics.Collector.Gauge("alert_subscriptions", "Subscriptions at the last tick.", "").Set(int64(len(subs)))

	var wg sync.WaitGroup
	for _, sub := range subs {
		sub := sub
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			s.evaluate(ctx, sub)
		}); err != nil {
			wg.Done()
			s.logger.Error("alert pool submit failed", "chat", sub.ChatID, "err", err)
		}
	}
	wg.Wait()
}

// evaluate processes a single subscription. All failure paths end here: the
// worst outcome for the batch is one chat getting a fallback message.
func (s *Scheduler) evaluate(ctx context.Context, sub advisor.Subscription) {
	snapshot, err := s.weather.Current(ctx, sub.Location)
	if err != nil {
		s.logger.Warn("weather lookup failed",
			"location", sub.Location, "chat", sub.ChatID, "err", err)
		metrics.Collector.Counter("alert_lookup_failures_total",
			"Weather lookups that failed during a tick.", "").Inc()
		s.send(sub, invalidLocationText(sub.Location))
		return
	}

	crop, err := s.crops.CropByLocation(ctx, sub.Location)
	if err != nil {
		// Degrade to the no-data alert rather than dropping the chat's tick.
		s.logger.Error("crop lookup failed", "location", sub.Location, "err", err)
		crop = nil
	}

	s.send(sub, buildAlert(sub.Location, snapshot, crop))
}

func (s *Scheduler) send(sub advisor.Subscription, text string) {
	s.bus.SendOutbound(domain.OutboundMessage{
		Channel: sub.Channel,
		ChatID:  sub.ChatID,
		Text:    text,
	})
	metrics.Collector.Counter("alert_sent_total",
		"Alert messages dispatched.",
		`channel="`+string(sub.Channel)+`"`).Inc()
}

// buildAlert applies the alert rule table, first match wins.
func buildAlert(location string, w *domain.WeatherSnapshot, crop *domain.CropRecord) string {
	temp := formatTemp(w.TempC)

	if crop == nil {
		return fmt.Sprintf("Weather in %s: %s, %s°C. No crop data found.", location, w.Condition, temp)
	}
	if strings.Contains(w.Condition, "Rain") && crop.Crop == "groundnut" {
		return fmt.Sprintf("Heavy rain expected in %s. Delay sowing %s.", location, crop.CropHindi)
	}
	if w.TempC > 35 && crop.Crop == "moong" {
		return fmt.Sprintf("High temperature (%s°C) in %s. Ensure irrigation for %s.", temp, location, crop.CropHindi)
	}
	return fmt.Sprintf("Weather in %s: %s, %s°C. Recommended for %s: Check conditions.",
		location, w.Condition, temp, crop.CropHindi)
}

func invalidLocationText(location string) string {
	return fmt.Sprintf("Invalid location: %s. Please use /subscribe with a valid location (e.g., Tamil Nadu).", location)
}

func formatTemp(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

// cronLogger adapts slog to the cron.Logger interface so skipped ticks show
// up in the gateway log.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "err", err)...)
}
