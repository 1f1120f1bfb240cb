// The janitor purges terminal delivery records past the retention window on
// a cron schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apporte/notify/internal/config"
	"github.com/apporte/notify/internal/db"
	"github.com/apporte/notify/internal/logging"
	"github.com/apporte/notify/internal/store"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("notify-janitor")

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	st := store.New(pool)

	c := cron.New()
	_, err = c.AddFunc(cfg.Janitor.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Janitor.RetentionDays)
		purged, err := st.PurgeOlderThan(runCtx, cutoff)
		if err != nil {
			logger.Plain().WithError(err).Error("retention purge failed")
			return
		}
		logger.Plain().WithFields(map[string]any{
			"purged": purged,
			"cutoff": cutoff.Format(time.RFC3339),
		}).Info("retention purge completed")
	})
	if err != nil {
		logger.Plain().WithError(err).WithField("schedule", cfg.Janitor.Schedule).Fatal("invalid cron schedule")
	}

	c.Start()
	logger.Plain().WithFields(map[string]any{
		"schedule":       cfg.Janitor.Schedule,
		"retention_days": cfg.Janitor.RetentionDays,
	}).Info("janitor started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Plain().Info("janitor stopped")
}
