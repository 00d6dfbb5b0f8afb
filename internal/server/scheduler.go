package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/NicholasJacob1990/iudex0-sub003/config"
)

// RetentionStore captures the store methods used by the retention sweeper.
type RetentionStore interface {
	PurgeReportsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// FindingsRemover drops purged reports from the search index.
type FindingsRemover interface {
	Remove(reportIDs []string) error
}

// Scheduler purges audit reports older than the retention window on the
// configured cron schedule. The redis lock keeps concurrent instances from
// sweeping at the same time.
type Scheduler struct {
	Store  RetentionStore
	Index  FindingsRemover
	Rdb    *redis.Client
	Cfg    config.RetentionConfig
	Stop   chan struct{}
	Logger *log.Logger

	lastSweep *time.Time
}

func (s *Scheduler) Start() {
	if !s.Cfg.Enabled {
		return
	}
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	if !isDue(s.Cfg.Cron, s.lastSweep) {
		return
	}
	ctx := context.Background()

	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, "retention:lock", "1", 10*time.Minute).Result()
		if err != nil {
			s.logger().Printf("warn: retention lock: %v", err)
			return
		}
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "retention:lock")
	}

	s.sweep(ctx)
	now := time.Now()
	s.lastSweep = &now
}

func (s *Scheduler) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.Cfg.MaxAgeDays) * 24 * time.Hour)
	ids, err := s.Store.PurgeReportsBefore(ctx, cutoff)
	if err != nil {
		s.logger().Printf("retention sweep failed: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	s.logger().Printf("retention sweep purged %d reports older than %s", len(ids), cutoff.Format(time.RFC3339))
	if s.Index != nil {
		if err := s.Index.Remove(ids); err != nil {
			s.logger().Printf("warn: remove purged reports from search index: %v", err)
		}
	}
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// isDue determines if a sweep with cronSpec should run now based on the last
// sweep time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions; invalid expressions fall back to @daily.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
