// Package limiter mediates sign-in-code retrieval: a cool-down window
// per (requester, account) pair against rapid double-taps, and a
// per-subscription quota ("chances") bounding how many codes one
// purchase may ever yield.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"bonbot/internal/mail"
	"bonbot/internal/models"
	"bonbot/internal/store"
)

// Expected outcomes of RequestCode. These are control flow, not faults;
// each maps to a specific user-visible message.
var (
	ErrAccountNotFound = errors.New("limiter: account not found")
	ErrNoSubscription  = errors.New("limiter: no subscription on this account")
	ErrTooSoon         = errors.New("limiter: cool-down window not elapsed")
	ErrQuotaExhausted  = errors.New("limiter: no chances left")
	ErrNoCodeYet       = errors.New("limiter: no recent code in the mailbox")
)

// CodeResult is a delivered sign-in code and the chances left after it.
type CodeResult struct {
	Code      string
	Remaining int
}

// Limiter runs the quota-tracked, rate-limited code-fetch workflow.
type Limiter struct {
	tree     store.Tree
	throttle ThrottleStore
	fetcher  mail.CodeFetcher
	coolDown time.Duration
	logger   *zap.Logger
}

func New(tree store.Tree, throttle ThrottleStore, fetcher mail.CodeFetcher, coolDown time.Duration, logger *zap.Logger) *Limiter {
	if coolDown <= 0 {
		coolDown = 10 * time.Second
	}
	return &Limiter{
		tree:     tree,
		throttle: throttle,
		fetcher:  fetcher,
		coolDown: coolDown,
		logger:   logger,
	}
}

// RequestCode fetches one sign-in code for the requester's subscription
// on accountKey. Ordering matters: the throttle is taken first (atomic,
// cheap), the quota is checked strictly before the mailbox search so an
// exhausted subscription never spends the external call, and the quota
// is only consumed when a code is actually delivered.
func (l *Limiter) RequestCode(ctx context.Context, requesterID int64, accountKey string) (*CodeResult, error) {
	var cred models.Credential
	err := l.tree.Get(ctx, models.CredentialPath(accountKey), &cred)
	if err == store.ErrNotFound {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	throttleKey := strconv.FormatInt(requesterID, 10) + "_" + accountKey
	ok, err := l.throttle.Acquire(ctx, throttleKey, l.coolDown)
	if err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	if !ok {
		return nil, ErrTooSoon
	}

	subPath := models.SubscriptionPath(requesterID, accountKey)
	var sub models.Subscription
	err = l.tree.Get(ctx, subPath, &sub)
	if err == store.ErrNotFound {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub.Chance <= 0 {
		return nil, ErrQuotaExhausted
	}

	code, err := l.fetcher.FetchCode(ctx, cred.Email)
	if err != nil {
		return nil, fmt.Errorf("fetch code: %w", err)
	}
	if code == "" {
		// Normal outcome; quota untouched, throttle entry stays.
		return nil, ErrNoCodeYet
	}

	remaining := sub.Chance - 1
	if remaining < 0 {
		remaining = 0
	}
	if err := l.tree.Update(ctx, subPath, map[string]interface{}{"chance": remaining}); err != nil {
		return nil, fmt.Errorf("decrement chance: %w", err)
	}

	l.logger.Info("Sign-in code delivered",
		zap.Int64("user", requesterID),
		zap.String("account", accountKey),
		zap.Int("remaining", remaining))

	return &CodeResult{Code: code, Remaining: remaining}, nil
}
