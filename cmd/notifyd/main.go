package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apporte/notify/internal/api"
	"github.com/apporte/notify/internal/channel"
	"github.com/apporte/notify/internal/config"
	"github.com/apporte/notify/internal/db"
	"github.com/apporte/notify/internal/dispatch"
	"github.com/apporte/notify/internal/health"
	"github.com/apporte/notify/internal/identity"
	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/metrics"
	"github.com/apporte/notify/internal/resolver"
	"github.com/apporte/notify/internal/store"
	"github.com/apporte/notify/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("notifyd")

	shutdown, err := tracing.InitTracing(ctx, "notifyd")
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

	// NSQ producer for queuing inbound requests to the worker.
	prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer prod.Stop()

	// The dispatch engine is wired here for the synchronous retry path; the
	// worker owns the queued processing path.
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

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, st))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := api.NewServer(st, engine, prod, cfg.NSQ.NotificationsTopic)
	srv.Register(mux)

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("notifyd HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("notifyd HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down notifyd")
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("notifyd stopped")
}
