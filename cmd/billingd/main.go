// billingd runs the billing service's background plane: the River job
// workers that process post-commit side effects and the scheduled
// reminder escalation sweep. Lifecycle operations (send, mark paid,
// accept, decline) are invoked in-process through internal/lifecycle by
// the API layer, which lives outside this binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/tradedesk/billing/internal/accounting"
	"github.com/tradedesk/billing/internal/billing/store"
	"github.com/tradedesk/billing/internal/delivery"
	"github.com/tradedesk/billing/internal/notify"
	"github.com/tradedesk/billing/internal/reminder"
	"github.com/tradedesk/billing/internal/sideeffect"
	"github.com/tradedesk/billing/pkg/cache"
	"github.com/tradedesk/billing/pkg/db"
	"github.com/tradedesk/billing/pkg/job"
	"github.com/tradedesk/billing/pkg/logger"
	"github.com/tradedesk/billing/pkg/mailer/gmaildraft"
	"github.com/tradedesk/billing/pkg/mailer/resend"
)

type config struct {
	DB     db.Config
	Sentry logger.SentryConfig
	Resend resend.Config
	Gmail  gmaildraft.Config
	SMS    delivery.SMSConfig

	RedisURL         string        `env:"REDIS_URL"`
	ReminderSchedule string        `env:"REMINDER_SCHEDULE"`
	AttemptTimeout   time.Duration `env:"DELIVERY_ATTEMPT_TIMEOUT" envDefault:"30s"`
	JobWorkers       int           `env:"JOB_MAX_WORKERS"`
	SweepOnStart     bool          `env:"REMINDER_SWEEP_ON_START" envDefault:"true"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("billingd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	log := logger.NewWithSentry(cfg.Sentry)
	slog.SetDefault(log)

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, store.Migrations(), cfg.DB.MigrationsTable, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	st := store.NewPostgres(pool)

	tokens, closeTokens, err := newTokenCache(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeTokens()

	channels := delivery.NewFactory(resend.New(cfg.Resend), cfg.Gmail, tokens)
	orchestrator := delivery.NewOrchestrator(log, delivery.WithAttemptTimeout(cfg.AttemptTimeout))

	var smsGateway delivery.SMSSender
	if cfg.SMS.Configured() {
		smsGateway = delivery.NewHTTPSMS(cfg.SMS)
	} else {
		log.Info("no SMS gateway configured, reminders go out by email only")
	}

	// The coordinator enqueues through the manager, and the manager's
	// scheduled-task list needs the fully wired engine, whose effects
	// are the coordinator. The handle breaks that construction cycle.
	jobs := &jobsHandle{}
	effects := sideeffect.NewCoordinator(jobs, log)

	engine := reminder.NewEngine(reminder.Deps{
		Documents:  st,
		Clients:    st,
		Businesses: st,
		Reminders:  st,
		Channels:   channels,
		Deliverer:  orchestrator,
		SMS:        smsGateway,
		Effects:    effects,
		Log:        log,
	})

	manager, err := job.NewManager(pool,
		job.WithLogger(log),
		job.WithMaxWorkers(cfg.JobWorkers),
		job.WithTask[sideeffect.ActivityPayload](sideeffect.NewActivityTask(st)),
		job.WithTask[sideeffect.NotifyPayload](sideeffect.NewNotifyTask(&notify.LogNotifier{Log: log}, st)),
		job.WithTask[sideeffect.AccountingPayload](sideeffect.NewAccountingInvoiceTask(accounting.Disabled{}, st, st, log)),
		job.WithTask[sideeffect.AccountingPayload](sideeffect.NewAccountingPaymentTask(accounting.Disabled{}, st, st, log)),
		job.WithScheduledTask(reminder.NewScheduledRun(engine, cfg.ReminderSchedule)),
	)
	if err != nil {
		return fmt.Errorf("build job manager: %w", err)
	}
	jobs.manager = manager

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start job manager: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return manager.Stop(stopCtx)
	})

	if cfg.SweepOnStart {
		// A daemon that was down during the scheduled run still sends
		// that day's reminders after a restart. Claim rows make the
		// extra sweep safe even when several replicas boot at once.
		g.Go(func() error {
			if err := engine.Run(gctx); err != nil {
				log.Error("startup reminder sweep failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	log.Info("billingd running",
		slog.Bool("sms_gateway", smsGateway != nil),
		slog.Bool("redis_token_cache", cfg.RedisURL != ""),
	)

	return g.Wait()
}

// jobsHandle defers enqueues to the job manager, which is constructed
// after the side-effect coordinator.
type jobsHandle struct {
	manager *job.Manager
}

func (j *jobsHandle) Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) error {
	if j.manager == nil {
		return job.ErrNotStarted
	}
	return j.manager.Enqueue(ctx, name, payload, opts...)
}

// newTokenCache picks the draft-provider token store: Redis when a URL
// is configured so tokens survive restarts, in-memory otherwise.
func newTokenCache(redisURL string) (gmaildraft.TokenStore, func(), error) {
	if redisURL == "" {
		mem := cache.NewMemory[oauth2.Token]()
		return mem, func() { _ = mem.Close() }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	tokens := cache.NewRedis[oauth2.Token](client, nil, cache.WithPrefix("gmail-token"))
	return tokens, func() { _ = client.Close() }, nil
}
