package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/otel/attribute"

	"github.com/apporte/notify/internal/channel"
	"github.com/apporte/notify/internal/config"
	"github.com/apporte/notify/internal/db"
	"github.com/apporte/notify/internal/dispatch"
	"github.com/apporte/notify/internal/identity"
	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/metrics"
	"github.com/apporte/notify/internal/notification"
	"github.com/apporte/notify/internal/resolver"
	"github.com/apporte/notify/internal/store"
	"github.com/apporte/notify/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("notify-worker")

	shutdown, err := tracing.InitTracing(ctx, "notify-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	st := store.New(pool)

	idp := identity.New(cfg.Identity.BaseURL, cfg.Identity.Username, cfg.Identity.Password,
		cfg.Identity.ClientID, cfg.Identity.Timeout)
	res := resolver.New(st, st, idp, resolver.Options{
		UserCacheTTL:       cfg.Resolver.UserCacheTTL,
		ResolutionCacheTTL: cfg.Resolver.ResolutionCacheTTL,
		FallbackAdminID:    cfg.Resolver.FallbackAdminID,
		FallbackAdminEmail: cfg.Resolver.FallbackAdminEmail,
		FallbackAdminName:  cfg.Resolver.FallbackAdminName,
	})

	templates := channel.NewTemplateStore()
	senders := channel.NewRegistry(
		channel.NewEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From, cfg.AppURL, templates),
		channel.NewWhatsAppSender(cfg.WhatsApp.GatewayURL, cfg.WhatsApp.Enabled, cfg.WhatsApp.Timeout, cfg.AppURL, templates),
		channel.NewSMSSender(),
		channel.NewInAppSender(),
	)
	engine := dispatch.NewEngine(res, senders, st)

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// NSQ consumer
	conf := nsq.NewConfig()
	conf.MaxInFlight = 100
	consumer, err := nsq.NewConsumer(cfg.NSQ.NotificationsTopic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	startBacklogMonitor(cfg)

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse() // we manually requeue or finish
		defer func() {
			if !m.HasResponded() {
				logger.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		var t notification.Task
		if err := json.Unmarshal(m.Body, &t); err != nil {
			logger.Plain().WithError(err).Error("bad task payload")
			m.Finish() // terminal: don't retry bad payloads
			return nil
		}

		ctx := tracing.ExtractTraceFromNSQ(ctx, t.TraceHeaders)
		ctx, span := tracing.StartSpan(ctx, "worker.process",
			attribute.String("event_type", t.Request.EventType),
			attribute.String("entity_id", t.Request.EntityID),
			attribute.Int("attempt", t.Attempt),
		)
		defer span.End()

		err := engine.Process(ctx, &t.Request)
		if err == nil {
			m.Finish()
			return nil
		}
		tracing.SetSpanError(ctx, err)

		// A Process error means nothing was fanned out yet, so the whole
		// request is safe to requeue. Individual send failures already live
		// on their delivery records and never come back through here.
		t.Attempt++
		if t.Attempt >= cfg.Worker.MaxAttempts {
			logger.WithContext(ctx).WithError(err).WithEventType(t.Request.EventType).
				WithField("attempt", t.Attempt).Error("dropping request, max attempts reached")
			m.Finish()
			return nil
		}

		delay := computeDelay(t.Attempt, cfg.Worker.BackoffSchedule, cfg.Worker.JitterPercent)
		logger.WithContext(ctx).WithError(err).WithEventType(t.Request.EventType).WithFields(map[string]any{
			"attempt": t.Attempt,
			"delay":   delay.String(),
		}).Warn("requeue notification request")

		if body, merr := json.Marshal(t); merr == nil {
			m.Body = body
		}
		m.Requeue(delay)
		return nil
	}))

	// Connecting directly to NSQD forces channel creation, instead of the channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().Info("worker service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker service")
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

func computeDelay(attempt int, schedule []time.Duration, jitterPct float64) time.Duration {
	// attempt is 1-based after increment; map to schedule index
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	base := schedule[idx]
	// jitter: +/- jitterPct
	j := 1 + (rand.Float64()*2-1)*jitterPct
	if j < 0.1 {
		j = 0.1
	}
	return time.Duration(float64(base) * j)
}

// startBacklogMonitor polls nsqd for the notifications channel depth and
// exports it as a gauge.
func startBacklogMonitor(cfg config.Config) {
	go func() {
		logger := logging.New("notify-worker-monitor")
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		httpClient := &http.Client{Timeout: 5 * time.Second}

		for range ticker.C {
			// nsqd stats live on the HTTP port next to the TCP port
			nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)
			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				logger.Plain().WithError(err).Error("failed to get NSQ stats")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}

			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				resp.Body.Close()
				logger.Plain().WithError(err).Error("failed to decode NSQ stats")
				continue
			}
			resp.Body.Close()

			for _, topic := range stats.Topics {
				if topic.Name != cfg.NSQ.NotificationsTopic {
					continue
				}
				for _, ch := range topic.Channels {
					if ch.Name == cfg.NSQ.WorkerChannel {
						metrics.UpdateQueueBacklog(float64(ch.Depth))
					}
				}
			}
		}
	}()
}
