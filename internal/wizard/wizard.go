// Package wizard drives multi-step admin data entry: the /store
// account-creation flow and the /adddate purchase-date correction flow.
// Each inbound text either advances the owner's session one step or
// re-prompts without changing state.
package wizard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bonbot/internal/models"
	"bonbot/internal/session"
	"bonbot/internal/store"
)

var (
	accountKeyRe = regexp.MustCompile(`^(?i)account-(\d+)$`)
	emailRe      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	dateRe       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

const (
	promptAccountKey = "🗝 Send the account key (format: Account-<number>):"
	promptPlanName   = "📛 Send the plan name (e.g. 1 Month):"
	promptMorePlans  = "➕ Add another plan? (yes/no)"
	promptEmail      = "📧 Send the account email:"
	promptPassword   = "🔑 Send the account password:"
	promptTargetUser = "👤 Send the target user's chat ID:"
	promptAccount    = "📺 Which account? (e.g. Account-7):"
	promptDate       = "📅 Send the new purchase date (YYYY-MM-DD):"
)

// Engine advances wizard sessions. Session and data stores are injected
// so tests run against fresh in-memory instances.
type Engine struct {
	sessions *session.Store
	tree     store.Tree
	logger   *zap.Logger
}

func New(sessions *session.Store, tree store.Tree, logger *zap.Logger) *Engine {
	return &Engine{sessions: sessions, tree: tree, logger: logger}
}

// StartStoreAccount opens the account-creation wizard and returns the
// first prompt. Returns session.ErrActive when a wizard is already open.
func (e *Engine) StartStoreAccount(ctx context.Context, ownerID int64) (string, error) {
	if _, err := e.sessions.Begin(ownerID, session.FlowStoreAccount, session.StepAskAccountKey); err != nil {
		return "", err
	}
	return promptAccountKey, nil
}

// StartAdjustDate opens the date-correction wizard.
func (e *Engine) StartAdjustDate(ctx context.Context, ownerID int64) (string, error) {
	if _, err := e.sessions.Begin(ownerID, session.FlowAdjustDate, session.StepAskUser); err != nil {
		return "", err
	}
	return promptTargetUser, nil
}

// Cancel deletes the owner's session unconditionally. Reports whether
// there was one.
func (e *Engine) Cancel(ownerID int64) bool {
	return e.sessions.End(ownerID)
}

// Active reports whether the owner has a wizard in progress.
func (e *Engine) Active(ownerID int64) bool {
	_, ok := e.sessions.Get(ownerID)
	return ok
}

// HandleText offers an inbound text to the owner's active session. The
// second return is false when no session consumed the message. Command
// messages (leading "/") are never consumed; the dispatcher routes those,
// including /cancel. A non-nil error means the session was discarded.
func (e *Engine) HandleText(ctx context.Context, ownerID int64, text string) (string, bool, error) {
	sess, ok := e.sessions.Get(ownerID)
	if !ok {
		return "", false, nil
	}

	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		return "", false, nil
	}

	var (
		reply string
		err   error
	)
	switch sess.Flow {
	case session.FlowStoreAccount:
		reply, err = e.stepStoreAccount(ctx, sess, text)
	case session.FlowAdjustDate:
		reply, err = e.stepAdjustDate(ctx, sess, text)
	default:
		e.sessions.End(ownerID)
		return "", false, nil
	}

	if err != nil {
		// Fail closed: no partial resume after an unexpected fault.
		e.sessions.End(ownerID)
		e.logger.Error("Wizard step failed",
			zap.Int64("owner", ownerID),
			zap.String("flow", string(sess.Flow)),
			zap.String("step", string(sess.Step)),
			zap.Error(err))
		return "", true, err
	}
	return reply, true, nil
}

// ── Account-creation flow ─────────────────────────────────────────────

func (e *Engine) stepStoreAccount(ctx context.Context, sess *session.Session, text string) (string, error) {
	switch sess.Step {
	case session.StepAskAccountKey:
		key, ok := normalizeAccountKey(text)
		if !ok {
			return "❌ That doesn't look like an account key. Use Account-<number>, e.g. Account-7.", nil
		}
		exists, err := e.tree.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check account key: %w", err)
		}
		if exists {
			return fmt.Sprintf("❌ %s already exists. Pick a different key.", key), nil
		}
		sess.Draft.Key = key
		sess.Draft.Plans = make(map[string]float64)
		sess.Step = session.StepAskPlanName
		return promptPlanName, nil

	case session.StepAskPlanName:
		if text == "" {
			return "❌ The plan name can't be empty. Try again.", nil
		}
		sess.Draft.PendingPlan = text
		sess.Step = session.StepAskPlanPrice
		return fmt.Sprintf("💵 Send the price for \"%s\" in birr:", text), nil

	case session.StepAskPlanPrice:
		price, err := strconv.ParseFloat(text, 64)
		if err != nil || price <= 0 {
			return "❌ The price must be a number greater than zero. Try again.", nil
		}
		sess.Draft.Plans[sess.Draft.PendingPlan] = price
		sess.Draft.PendingPlan = ""
		sess.Step = session.StepAskMorePlans
		return promptMorePlans, nil

	case session.StepAskMorePlans:
		switch strings.ToLower(text) {
		case "yes", "y":
			sess.Step = session.StepAskPlanName
			return promptPlanName, nil
		case "no", "n":
			sess.Step = session.StepAskEmail
			return promptEmail, nil
		default:
			return "❓ Please answer yes or no.", nil
		}

	case session.StepAskEmail:
		if !emailRe.MatchString(text) {
			return "❌ That doesn't look like an email address. Try again.", nil
		}
		sess.Draft.Email = text
		sess.Step = session.StepAskPassword
		return promptPassword, nil

	case session.StepAskPassword:
		if text == "" {
			return "❌ The password can't be empty. Try again.", nil
		}
		record := models.AccountRecord{
			Plans: sess.Draft.Plans,
			Credential: models.Credential{
				Email:    sess.Draft.Email,
				Password: text,
			},
			Users: map[string]bool{},
		}
		if err := e.tree.Set(ctx, sess.Draft.Key, record); err != nil {
			return "", fmt.Errorf("persist %s: %w", sess.Draft.Key, err)
		}
		key, count := sess.Draft.Key, len(sess.Draft.Plans)
		e.sessions.End(sess.OwnerID)
		e.logger.Info("Account stored", zap.String("key", key), zap.Int("plans", count))
		return fmt.Sprintf("✅ Stored %s with %d plan(s).", key, count), nil
	}

	return "", fmt.Errorf("unknown store-account step %q", sess.Step)
}

// ── Date-correction flow ──────────────────────────────────────────────

func (e *Engine) stepAdjustDate(ctx context.Context, sess *session.Session, text string) (string, error) {
	switch sess.Step {
	case session.StepAskUser:
		userID, err := strconv.ParseInt(text, 10, 64)
		if err != nil || userID <= 0 {
			return "❌ Send a numeric chat ID.", nil
		}
		exists, err := e.tree.Exists(ctx, models.UserPath(userID))
		if err != nil {
			return "", fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return "❌ No registered user with that ID. Try again.", nil
		}
		sess.Date.UserID = userID
		sess.Step = session.StepAskAccount
		return promptAccount, nil

	case session.StepAskAccount:
		key, ok := normalizeAccountKey(text)
		if !ok {
			return "❌ Use the Account-<number> form, e.g. Account-7.", nil
		}
		exists, err := e.tree.Exists(ctx, models.SubscriptionPath(sess.Date.UserID, key))
		if err != nil {
			return "", fmt.Errorf("check subscription: %w", err)
		}
		if !exists {
			return fmt.Sprintf("❌ That user has no subscription on %s. Try another account.", key), nil
		}
		sess.Date.AccountKey = key
		sess.Step = session.StepAskDate
		return promptDate, nil

	case session.StepAskDate:
		if !dateRe.MatchString(text) {
			return "❌ Use the YYYY-MM-DD format, e.g. 2026-08-01.", nil
		}

		path := models.SubscriptionPath(sess.Date.UserID, sess.Date.AccountKey)
		current := make(map[string]interface{})
		if err := e.tree.Get(ctx, path, &current); err != nil && err != store.ErrNotFound {
			return "", fmt.Errorf("read subscription: %w", err)
		}

		fields := map[string]interface{}{"purchaseDate": text}
		// Backfill defaults for legacy records in the same write.
		if _, ok := current["plan"]; !ok {
			fields["plan"] = "1 Month"
		}
		if _, ok := current["chance"]; !ok {
			fields["chance"] = 3
		}
		if err := e.tree.Update(ctx, path, fields); err != nil {
			return "", fmt.Errorf("update subscription: %w", err)
		}

		userID, key := sess.Date.UserID, sess.Date.AccountKey
		e.sessions.End(sess.OwnerID)
		e.logger.Info("Purchase date adjusted",
			zap.Int64("user", userID), zap.String("account", key), zap.String("date", text))
		return fmt.Sprintf("✅ Updated %s purchase date for user %d to %s.", key, userID, text), nil
	}

	return "", fmt.Errorf("unknown adjust-date step %q", sess.Step)
}

// normalizeAccountKey canonicalizes case-insensitive input into the
// stored Account-<digits> form.
func normalizeAccountKey(text string) (string, bool) {
	m := accountKeyRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return "Account-" + m[1], true
}
