package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"bonbot/internal/limiter"
	"bonbot/internal/models"
	"bonbot/internal/store"
)

// purchaseChances is the code-fetch quota granted with every plan.
const purchaseChances = 3

func (b *Bot) sendMainMenu(c tele.Context) error {
	ctx := reqContext()
	chatID := c.Chat().ID

	var profile models.Profile
	err := b.tree.Get(ctx, models.UserPath(chatID), &profile)
	if err != nil && err != store.ErrNotFound {
		return b.fail(c, "load user", err)
	}

	text := fmt.Sprintf("👋 Welcome back! Your balance: <b>%s birr</b>", formatAmount(profile.Balance))
	return c.Send(text, b.mainMenuKeyboard(&profile), tele.ModeHTML)
}

// ── Add fund ──────────────────────────────────────────────────────────

func (b *Bot) sendAddFundMenu(c tele.Context) error {
	return c.Send("💰 Add Fund\n\nPlease choose a payment method:", b.addFundKeyboard())
}

func (b *Bot) sendPaymentInstructions(c tele.Context, text string) error {
	b.mu.Lock()
	b.awaitingReceipt[c.Chat().ID] = true
	b.mu.Unlock()
	return c.Send(text, b.backKeyboard())
}

// handlePhoto takes a payment screenshot from a user we primed, logs it,
// and forwards it to the operator for manual review.
func (b *Bot) handlePhoto(c tele.Context) error {
	ctx := reqContext()
	chatID := c.Chat().ID

	b.mu.Lock()
	armed := b.awaitingReceipt[chatID]
	delete(b.awaitingReceipt, chatID)
	b.mu.Unlock()
	if !armed {
		return nil
	}

	photo := c.Message().Photo
	if photo == nil {
		return nil
	}

	fileLink := ""
	if f, err := b.tb.FileByID(photo.FileID); err == nil {
		fileLink = fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.cfg.Bot.Token, f.FilePath)
	} else {
		b.logger.Warn("Failed to resolve receipt file link", zap.Error(err))
	}

	if _, err := b.tree.Push(ctx, models.ReceiptLogPath(chatID), models.PaymentRecord{
		FileID:    photo.FileID,
		FileLink:  fileLink,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return b.fail(c, "log receipt", err)
	}

	if err := c.Send("✅ Screenshot received! We'll review it soon."); err != nil {
		return err
	}

	username := "unknown"
	if sender := c.Sender(); sender != nil && sender.Username != "" {
		username = sender.Username
	}
	caption := fmt.Sprintf("🧾 New payment screenshot from @%s (ID: %d)\n\nPlease reply with the amount in birr.", username, chatID)

	forwarded, err := b.tb.Send(tele.ChatID(b.cfg.Bot.OwnerID), &tele.Photo{
		File:    tele.File{FileID: photo.FileID},
		Caption: caption,
	})
	if err != nil {
		b.logger.Error("Failed to forward receipt to owner", zap.Int64("user", chatID), zap.Error(err))
		return nil
	}

	b.mu.Lock()
	b.pendingDeposits[forwarded.ID] = pendingDeposit{userID: chatID, fileID: photo.FileID, fileLink: fileLink}
	b.mu.Unlock()

	return nil
}

// ── Purchase flow ─────────────────────────────────────────────────────

// sendAccountList shows every Account-* record with its occupancy.
func (b *Bot) sendAccountList(ctx context.Context, c tele.Context) error {
	root := make(map[string]json.RawMessage)
	err := b.tree.Get(ctx, "", &root)
	if err != nil && err != store.ErrNotFound {
		return b.fail(c, "list accounts", err)
	}

	userCounts := make(map[string]int)
	for key, raw := range root {
		if !strings.HasPrefix(key, "Account-") {
			continue
		}
		var record struct {
			Users map[string]bool `json:"users"`
		}
		_ = json.Unmarshal(raw, &record)
		userCounts[key] = len(record.Users)
	}

	if len(userCounts) == 0 {
		return c.Send("❌ No accounts available right now.", b.backKeyboard())
	}
	return c.Send("📺 Select an account to view available plans:", b.accountListKeyboard(userCounts))
}

func (b *Bot) sendPlanList(ctx context.Context, c tele.Context, accountKey string) error {
	var plans map[string]float64
	err := b.tree.Get(ctx, models.PlansPath(accountKey), &plans)
	if err == store.ErrNotFound || len(plans) == 0 {
		return c.Send(fmt.Sprintf("❌ No plans found for %s.", accountKey), b.backKeyboard())
	}
	if err != nil {
		return b.fail(c, "load plans", err)
	}
	return c.Send(fmt.Sprintf("📦 Plans for %s:", accountKey), b.planListKeyboard(accountKey, plans))
}

// handlePurchase deducts the plan price and links the user to the
// account. Balance math is read-then-write, matching the rest of the
// wallet handling.
func (b *Bot) handlePurchase(ctx context.Context, c tele.Context, plan, accountKey string) error {
	chatID := c.Chat().ID

	var price float64
	err := b.tree.Get(ctx, models.PlanPath(accountKey, plan), &price)
	if err == store.ErrNotFound {
		return c.Send(fmt.Sprintf("❌ Plan \"%s\" not found.", plan), b.backKeyboard())
	}
	if err != nil {
		return b.fail(c, "load plan", err)
	}

	var profile models.Profile
	err = b.tree.Get(ctx, models.UserPath(chatID), &profile)
	if err == store.ErrNotFound {
		return c.Send("Please use /start first.")
	}
	if err != nil {
		return b.fail(c, "load user", err)
	}

	if profile.Balance < price {
		return c.Send(fmt.Sprintf(
			"❌ Insufficient balance. You need %s birr but only have %s birr.",
			formatAmount(price), formatAmount(profile.Balance)), b.backKeyboard())
	}

	if err := b.tree.Set(ctx, models.UserBalancePath(chatID), profile.Balance-price); err != nil {
		return b.fail(c, "deduct balance", err)
	}
	if err := b.tree.Set(ctx, models.UserAccountLinkPath(chatID), accountKey); err != nil {
		return b.fail(c, "link account", err)
	}
	if err := b.tree.Set(ctx, models.SubscriptionPath(chatID, accountKey), models.Subscription{
		Plan:         plan,
		PurchaseDate: time.Now().Format("2006-01-02"),
		Chance:       purchaseChances,
	}); err != nil {
		return b.fail(c, "record subscription", err)
	}

	displayName := profile.ContactInfo.DisplayName(chatID)
	if err := b.tree.Set(ctx, models.AccountUserPath(accountKey, displayName), true); err != nil {
		return b.fail(c, "join account", err)
	}

	b.logger.Info("Plan purchased",
		zap.Int64("user", chatID),
		zap.String("account", accountKey),
		zap.String("plan", plan),
		zap.Float64("price", price))

	return c.Send(fmt.Sprintf("✅ Successfully purchased %s from %s for %s birr.",
		plan, accountKey, formatAmount(price)), b.backKeyboard())
}

// ── Owned account ─────────────────────────────────────────────────────

func (b *Bot) sendOwnedAccount(ctx context.Context, c tele.Context) error {
	chatID := c.Chat().ID

	var profile models.Profile
	err := b.tree.Get(ctx, models.UserPath(chatID), &profile)
	if err != nil && err != store.ErrNotFound {
		return b.fail(c, "load user", err)
	}
	if err == store.ErrNotFound || profile.Account == "" {
		return c.Send("❌ You don't own an account yet. Purchase a plan first.", b.backKeyboard())
	}

	var sub models.Subscription
	if err := b.tree.Get(ctx, models.SubscriptionPath(chatID, profile.Account), &sub); err != nil && err != store.ErrNotFound {
		return b.fail(c, "load subscription", err)
	}

	var cred models.Credential
	if err := b.tree.Get(ctx, models.CredentialPath(profile.Account), &cred); err != nil && err != store.ErrNotFound {
		return b.fail(c, "load credential", err)
	}

	text := fmt.Sprintf(
		"📺 <b>%s</b>\n\n"+
			"📦 Plan: %s\n"+
			"📅 Purchased: %s\n"+
			"🎟 Code requests left: %d\n\n"+
			"📧 Email: <code>%s</code>\n"+
			"🔑 Password: <code>%s</code>",
		profile.Account, sub.Plan, sub.PurchaseDate, sub.Chance, cred.Email, cred.Password)

	return c.Send(text, b.codeRequestKeyboard(profile.Account), tele.ModeHTML)
}

// ── Sign-in code ──────────────────────────────────────────────────────

func (b *Bot) handleCodeRequest(ctx context.Context, c tele.Context, accountKey string) error {
	chatID := c.Chat().ID

	result, err := b.limiter.RequestCode(ctx, chatID, accountKey)
	switch {
	case err == nil:
		return c.Send(fmt.Sprintf("🔐 Your sign-in code: <b>%s</b>\n🎟 Requests left: %d",
			result.Code, result.Remaining), b.backKeyboard(), tele.ModeHTML)
	case errors.Is(err, limiter.ErrAccountNotFound):
		return c.Send("❌ That account no longer exists.", b.backKeyboard())
	case errors.Is(err, limiter.ErrNoSubscription):
		return c.Send("❌ You don't have an active plan on this account.", b.backKeyboard())
	case errors.Is(err, limiter.ErrTooSoon):
		return c.Send("⏳ Please wait a few seconds before requesting another code.")
	case errors.Is(err, limiter.ErrQuotaExhausted):
		return c.Send("❌ You've used all your code requests for this account.", b.backKeyboard())
	case errors.Is(err, limiter.ErrNoCodeYet):
		return c.Send("📭 No recent sign-in code found yet. Trigger the sign-in on your device and try again in a minute.", b.backKeyboard())
	default:
		return b.fail(c, "request code", err)
	}
}
