package advisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cropadvisor/internal/domain"
	"cropadvisor/internal/metrics"
)

const channelQueueSize = 64

// Loop is the core advisory engine: it consumes canonical inbound messages
// from the bus, classifies each into an intent, dispatches to the external
// services, and replies through the owning channel adapter.
//
// Messages are handled by one serial worker per channel, so arrival order is
// preserved within a channel while the two channels (and the alert scheduler)
// proceed independently. A slow external call delays only that channel's
// queue; it never crashes or stops the loop.
type Loop struct {
	bus       domain.MessageBus
	sessions  *SessionStore
	registry  *SubscriptionRegistry
	recommend domain.Recommender
	vision    domain.VisionAnalyzer
	logger    *slog.Logger
}

type LoopConfig struct {
	Bus       domain.MessageBus
	Sessions  *SessionStore
	Registry  *SubscriptionRegistry
	Recommend domain.Recommender
	Vision    domain.VisionAnalyzer
	Logger    *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		bus:       cfg.Bus,
		sessions:  cfg.Sessions,
		registry:  cfg.Registry,
		recommend: cfg.Recommend,
		vision:    cfg.Vision,
		logger:    cfg.Logger,
	}
}

// Run consumes inbound messages until the context is cancelled or the bus is
// closed, demultiplexing them into per-channel serial workers.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("advisor loop started")

	inbound := l.bus.Subscribe()
	workers := make(map[domain.ChannelName]chan domain.InboundMessage)
	var wg sync.WaitGroup

	defer func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
		l.logger.Info("advisor loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			ch, exists := workers[msg.Channel]
			if !exists {
				ch = make(chan domain.InboundMessage, channelQueueSize)
				workers[msg.Channel] = ch
				wg.Add(1)
				go func() {
					defer wg.Done()
					for m := range ch {
						l.handle(ctx, m)
					}
				}()
			}
			ch <- msg
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) {
	metrics.Collector.Counter("advisor_messages_total",
		"Inbound messages consumed from the bus.",
		`channel="`+string(msg.Channel)+`"`).Inc()

	intent := Classify(msg)
	l.logger.Info("message classified",
		"channel", msg.Channel,
		"chat", msg.ChatID,
		"intent", intent.Kind,
	)
	metrics.Collector.Counter("advisor_intents_total",
		"Classified intents by kind.",
		`intent="`+string(intent.Kind)+`"`).Inc()

	ref := msg.Ref()
	out := domain.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID}

	switch intent.Kind {
	case IntentStart:
		out.Text = welcomeText(msg.Channel)
		out.Format = "markdown"
		out.Menu = domain.MenuStart

	case IntentSetLanguage:
		l.sessions.SetLanguage(ctx, ref, intent.Lang)
		out.Text = confirmLanguage(intent.Lang)

	case IntentShowRecommendPrompt:
		out.Text = promptRecommend

	case IntentShowDiseasePrompt:
		out.Text = promptDisease

	case IntentSubscribe:
		l.registry.Set(ctx, ref, intent.Location)
		out.Text = confirmSubscription(intent.Location)

	case IntentRecommendationRequest:
		out.Text = l.handleRecommendation(ctx, ref, intent)

	case IntentDiseaseImage:
		out.Text = l.handleDiseaseImage(ctx, ref, intent)

	default:
		out.Text = promptReenter
	}

	l.bus.SendOutbound(out)
}

// handleRecommendation queries the recommendation engine and formats the
// bilingual reply. Any failure collapses to the fixed fallback string; the
// error never leaves this dispatcher.
func (l *Loop) handleRecommendation(ctx context.Context, ref domain.ChatRef, intent Intent) string {
	start := time.Now()
	rec, err := l.recommend.Recommend(ctx, intent.Soil, intent.Season, intent.Location)
	metrics.Collector.Histogram("advisor_service_seconds",
		"External service call latency.",
		`service="recommend"`).Observe(time.Since(start).Seconds())
	if err != nil {
		l.logger.Error("recommendation failed",
			"chat", ref, "location", intent.Location, "err", err)
		metrics.Collector.Counter("advisor_service_errors_total",
			"External service failures.", `service="recommend"`).Inc()
		return errRecommendation
	}

	return FormatRecommendation(l.sessions.Language(ref), rec)
}

// handleDiseaseImage submits the image to the vision service and relays its
// free-text diagnosis verbatim.
func (l *Loop) handleDiseaseImage(ctx context.Context, ref domain.ChatRef, intent Intent) string {
	start := time.Now()
	answer, err := l.vision.Analyze(ctx, intent.ImageData, intent.ImageMime, l.sessions.Language(ref))
	metrics.Collector.Histogram("advisor_service_seconds",
		"External service call latency.",
		`service="vision"`).Observe(time.Since(start).Seconds())
	if err != nil {
		l.logger.Error("image analysis failed", "chat", ref, "err", err)
		metrics.Collector.Counter("advisor_service_errors_total",
			"External service failures.", `service="vision"`).Inc()
		return errVision
	}
	return answer
}
