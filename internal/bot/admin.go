package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"bonbot/internal/models"
	"bonbot/internal/session"
	"bonbot/internal/store"
)

// ── Wizard entry points ───────────────────────────────────────────────

func (b *Bot) handleStoreCommand(c tele.Context) error {
	if !b.isAdmin(c.Chat().ID) {
		return nil
	}
	prompt, err := b.wizard.StartStoreAccount(reqContext(), c.Chat().ID)
	if errors.Is(err, session.ErrActive) {
		return c.Send("⚠️ You already have a wizard in progress. Send /cancel first.")
	}
	if err != nil {
		return b.fail(c, "start store wizard", err)
	}
	return c.Send(prompt)
}

func (b *Bot) handleAddDateCommand(c tele.Context) error {
	if !b.isAdmin(c.Chat().ID) {
		return nil
	}
	prompt, err := b.wizard.StartAdjustDate(reqContext(), c.Chat().ID)
	if errors.Is(err, session.ErrActive) {
		return c.Send("⚠️ You already have a wizard in progress. Send /cancel first.")
	}
	if err != nil {
		return b.fail(c, "start adddate wizard", err)
	}
	return c.Send(prompt)
}

func (b *Bot) handleCancelCommand(c tele.Context) error {
	if !b.isAdmin(c.Chat().ID) {
		return nil
	}
	if b.wizard.Cancel(c.Chat().ID) {
		return c.Send("🚫 Wizard cancelled.")
	}
	return c.Send("Nothing to cancel.")
}

// ── Reporting commands ────────────────────────────────────────────────

func (b *Bot) handleUsersCommand(c tele.Context) error {
	if !b.isAdmin(c.Chat().ID) {
		return nil
	}
	ctx := reqContext()

	users := make(map[string]models.Profile)
	err := b.tree.Get(ctx, "users", &users)
	if err == store.ErrNotFound || len(users) == 0 {
		return c.Send("No registered users yet.")
	}
	if err != nil {
		return b.fail(c, "list users", err)
	}

	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 %d registered user(s):\n\n", len(ids))
	for _, id := range ids {
		p := users[id]
		name := p.ContactInfo.Username
		if name == "" {
			name = strings.TrimSpace(p.ContactInfo.FirstName + " " + p.ContactInfo.LastName)
		}
		fmt.Fprintf(&sb, "• %s (%s) - balance %s birr", id, name, formatAmount(p.Balance))
		if p.Account != "" {
			fmt.Fprintf(&sb, ", on %s", p.Account)
		}
		sb.WriteString("\n")
	}
	return c.Send(sb.String())
}

func (b *Bot) handleAccountsCommand(c tele.Context) error {
	if !b.isAdmin(c.Chat().ID) {
		return nil
	}
	ctx := reqContext()

	root := make(map[string]json.RawMessage)
	err := b.tree.Get(ctx, "", &root)
	if err != nil && err != store.ErrNotFound {
		return b.fail(c, "list accounts", err)
	}

	type summary struct {
		key   string
		plans int
		users int
	}
	var rows []summary
	for key, raw := range root {
		if !strings.HasPrefix(key, "Account-") {
			continue
		}
		var record struct {
			Plans map[string]float64 `json:"plan"`
			Users map[string]bool    `json:"users"`
		}
		_ = json.Unmarshal(raw, &record)
		rows = append(rows, summary{key: key, plans: len(record.Plans), users: len(record.Users)})
	}
	if len(rows) == 0 {
		return c.Send("No stored accounts yet. Use /store to add one.")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	var sb strings.Builder
	fmt.Fprintf(&sb, "📺 %d account(s):\n\n", len(rows))
	for _, r := range rows {
		fmt.Fprintf(&sb, "• %s - %d plan(s), %d user(s)\n", r.key, r.plans, r.users)
	}
	return c.Send(sb.String())
}

// handleBroadcastCommand fans a message out to every registered user.
// Usage: /broadcast <text>.
func (b *Bot) handleBroadcastCommand(c tele.Context) error {
	if !b.isAdmin(c.Chat().ID) {
		return nil
	}
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return c.Send("Usage: /broadcast <message>")
	}
	ctx := reqContext()

	users := make(map[string]json.RawMessage)
	err := b.tree.Get(ctx, "users", &users)
	if err == store.ErrNotFound || len(users) == 0 {
		return c.Send("No registered users to broadcast to.")
	}
	if err != nil {
		return b.fail(c, "list users", err)
	}

	sent := 0
	for id := range users {
		chatID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if err := b.Notify(chatID, text); err != nil {
			b.logger.Warn("Broadcast delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		sent++
	}
	b.logger.Info("Broadcast sent", zap.Int("delivered", sent), zap.Int("total", len(users)))
	return c.Send(fmt.Sprintf("📣 Broadcast delivered to %d/%d user(s).", sent, len(users)))
}

// ── Deposit approval ──────────────────────────────────────────────────

// handleDepositReply credits a user's wallet when the operator replies
// to a forwarded screenshot with the amount. Returns handled=false when
// the reply doesn't target a pending deposit, so the text falls through
// to the regular routing.
func (b *Bot) handleDepositReply(ctx context.Context, c tele.Context) (bool, error) {
	replyTo := c.Message().ReplyTo
	if replyTo == nil {
		return false, nil
	}

	b.mu.Lock()
	pending, ok := b.pendingDeposits[replyTo.ID]
	b.mu.Unlock()
	if !ok {
		return false, nil
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(c.Text()), 64)
	if err != nil || amount <= 0 {
		return true, c.Send("❌ Please reply with a valid numeric amount in birr.")
	}

	record := models.PaymentRecord{
		FileID:    pending.fileID,
		FileLink:  pending.fileLink,
		Timestamp: time.Now().UnixMilli(),
		AddedBy:   "owner",
		Amount:    amount,
	}
	if _, err := b.tree.Push(ctx, models.UserPaymentsPath(pending.userID), record); err != nil {
		return true, b.fail(c, "record payment", err)
	}

	var balance float64
	err = b.tree.Get(ctx, models.UserBalancePath(pending.userID), &balance)
	if err != nil && err != store.ErrNotFound {
		return true, b.fail(c, "load balance", err)
	}
	newBalance := balance + amount
	if err := b.tree.Set(ctx, models.UserBalancePath(pending.userID), newBalance); err != nil {
		return true, b.fail(c, "credit balance", err)
	}

	b.mu.Lock()
	delete(b.pendingDeposits, replyTo.ID)
	b.mu.Unlock()

	b.logger.Info("Deposit approved",
		zap.Int64("user", pending.userID),
		zap.Float64("amount", amount),
		zap.Float64("balance", newBalance))

	if err := b.Notify(pending.userID, fmt.Sprintf(
		"✅ Your deposit of %s birr was approved! New balance: %s birr.",
		formatAmount(amount), formatAmount(newBalance))); err != nil {
		b.logger.Warn("Failed to notify user of approval", zap.Int64("user", pending.userID), zap.Error(err))
	}

	return true, c.Send(fmt.Sprintf("✅ Credited %s birr to user %d. New balance: %s birr.",
		formatAmount(amount), pending.userID, formatAmount(newBalance)))
}
