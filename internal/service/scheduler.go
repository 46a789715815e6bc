package service

import (
	"context"
	"fmt"

	"FightScore/internal/config"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// StartAuditScheduler 按 cron 定时运行比分巡检，返回的调度器由调用方在退出时 Shutdown
func StartAuditScheduler(ctx context.Context, cfg config.AuditConfig, audit *AuditService, logger *logrus.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.CronJob(cfg.Cron, false),
		gocron.NewTask(func() {
			if _, err := audit.Run(ctx); err != nil {
				logger.WithError(err).Error("比分巡检失败")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule audit %q: %w", cfg.Cron, err)
	}

	sched.Start()
	logger.WithField("cron", cfg.Cron).Info("比分巡检已启动")
	return sched, nil
}
