// Package cron runs the background housekeeping jobs: the hourly
// subscription-expiry sweep and the daily summary to the operator.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"bonbot/internal/config"
	"bonbot/internal/models"
	"bonbot/internal/store"
)

// Notifier delivers a plain text message to a Telegram chat.
type Notifier interface {
	Notify(chatID int64, text string) error
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	tree     store.Tree
	notifier Notifier
	logger   *zap.Logger
}

func New(cfg *config.Config, tree store.Tree, notifier Notifier, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		tree:     tree,
		notifier: notifier,
		logger:   logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	// Expire finished subscriptions - every hour
	s.cron.AddFunc("0 0 * * * *", func() {
		s.logger.Debug("Running: subscription expiry sweep")
		s.expireSubscriptions()
	})

	// Daily summary to the operator - at 23:45
	s.cron.AddFunc("0 45 23 * * *", func() {
		s.logger.Debug("Running: daily summary")
		s.dailySummary()
	})

	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ── Subscription expiry ───────────────────────────────────────────────

// expireSubscriptions removes subscriptions whose plan duration has
// elapsed since the purchase date, detaches the user from the shared
// account, and tells them.
func (s *Scheduler) expireSubscriptions() {
	defer s.recoverFromPanic("expireSubscriptions")
	ctx := context.Background()

	users := make(map[string]models.Profile)
	err := s.tree.Get(ctx, "users", &users)
	if err == store.ErrNotFound {
		return
	}
	if err != nil {
		s.logger.Error("Expiry sweep: load users failed", zap.Error(err))
		return
	}

	now := time.Now()
	expired := 0
	for id, profile := range users {
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		for accountKey, sub := range profile.Accounts {
			purchased, err := time.Parse("2006-01-02", sub.PurchaseDate)
			if err != nil {
				// Unparseable dates are left for /adddate to fix.
				s.logger.Warn("Expiry sweep: bad purchase date",
					zap.Int64("user", chatID),
					zap.String("account", accountKey),
					zap.String("date", sub.PurchaseDate))
				continue
			}
			if now.Before(purchased.Add(PlanDuration(sub.Plan))) {
				continue
			}

			if err := s.expireOne(ctx, chatID, accountKey, &profile); err != nil {
				s.logger.Error("Expiry sweep: detach failed",
					zap.Int64("user", chatID),
					zap.String("account", accountKey),
					zap.Error(err))
				continue
			}
			expired++

			if err := s.notifier.Notify(chatID, fmt.Sprintf(
				"⌛ Your %s plan on %s has expired. Purchase a new plan to keep watching!",
				sub.Plan, accountKey)); err != nil {
				s.logger.Warn("Expiry sweep: notify failed", zap.Int64("user", chatID), zap.Error(err))
			}
		}
	}

	if expired > 0 {
		s.logger.Info("Expiry sweep finished", zap.Int("expired", expired))
	}
}

func (s *Scheduler) expireOne(ctx context.Context, chatID int64, accountKey string, profile *models.Profile) error {
	if err := s.tree.Remove(ctx, models.SubscriptionPath(chatID, accountKey)); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("remove subscription: %w", err)
	}
	if profile.Account == accountKey {
		if err := s.tree.Remove(ctx, models.UserAccountLinkPath(chatID)); err != nil && err != store.ErrNotFound {
			return fmt.Errorf("unlink account: %w", err)
		}
	}
	displayName := profile.ContactInfo.DisplayName(chatID)
	if err := s.tree.Remove(ctx, models.AccountUserPath(accountKey, displayName)); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("leave account: %w", err)
	}
	return nil
}

// ── Daily summary ─────────────────────────────────────────────────────

func (s *Scheduler) dailySummary() {
	defer s.recoverFromPanic("dailySummary")
	ctx := context.Background()

	users := make(map[string]models.Profile)
	if err := s.tree.Get(ctx, "users", &users); err != nil && err != store.ErrNotFound {
		s.logger.Error("Daily summary: load users failed", zap.Error(err))
		return
	}

	root := make(map[string]json.RawMessage)
	if err := s.tree.Get(ctx, "", &root); err != nil && err != store.ErrNotFound {
		s.logger.Error("Daily summary: load root failed", zap.Error(err))
		return
	}
	accounts := 0
	for key := range root {
		if strings.HasPrefix(key, "Account-") {
			accounts++
		}
	}

	subscriptions := 0
	var balance float64
	for _, p := range users {
		subscriptions += len(p.Accounts)
		balance += p.Balance
	}

	report := fmt.Sprintf(
		"📊 Daily summary - %s\n\n👥 Users: %d\n📺 Accounts: %d\n🎫 Active subscriptions: %d\n💰 Wallet balance held: %s birr",
		time.Now().Format("2006-01-02"), len(users), accounts, subscriptions, formatAmountCron(balance))

	if err := s.notifier.Notify(s.cfg.Bot.OwnerID, report); err != nil {
		s.logger.Warn("Daily summary: delivery failed", zap.Error(err))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────

var planDurationRe = regexp.MustCompile(`(?i)^(\d+)\s*(month|week|day)s?$`)

// PlanDuration derives a plan's lifetime from its display name. Months
// count as 30 days. Names that don't parse fall back to one month.
func PlanDuration(plan string) time.Duration {
	m := planDurationRe.FindStringSubmatch(strings.TrimSpace(plan))
	if m == nil {
		return 30 * 24 * time.Hour
	}
	n, _ := strconv.Atoi(m[1])
	if n <= 0 {
		return 30 * 24 * time.Hour
	}
	switch strings.ToLower(m[2]) {
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour
	case "day":
		return time.Duration(n) * 24 * time.Hour
	default:
		return time.Duration(n) * 30 * 24 * time.Hour
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}

func formatAmountCron(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
