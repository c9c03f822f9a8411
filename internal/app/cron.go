package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mx-space/drafts/internal/modules/draft"
	pkgcron "github.com/mx-space/drafts/internal/pkg/cron"
	"github.com/mx-space/drafts/internal/pkg/session"
)

const (
	JobPurgeDrafts   = "purge_drafts"
	JobPurgeSessions = "purge_sessions"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, drafts *draft.Service, sessions *session.Store, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        JobPurgeDrafts,
		Description: "delete drafts not saved within their life span",
		Interval:    6 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := drafts.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				cronLogger.Info("purged expired drafts", zap.Int64("count", n))
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        JobPurgeSessions,
		Description: "delete sessions that expired or were revoked a week ago",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := sessions.PurgeExpired(ctx, time.Now().AddDate(0, 0, -7))
			if err != nil {
				return err
			}
			if n > 0 {
				cronLogger.Info("purged sessions", zap.Int64("count", n))
			}
			return nil
		},
	})
}
