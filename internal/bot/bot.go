package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"bonbot/internal/config"
	"bonbot/internal/limiter"
	"bonbot/internal/models"
	"bonbot/internal/store"
	"bonbot/internal/wizard"
)

// Bot wraps the telebot instance and handlers.
type Bot struct {
	tb         *tele.Bot
	webhook    *tele.Webhook
	useWebhook bool
	cfg        *config.Config
	tree       store.Tree
	wizard     *wizard.Engine
	limiter    *limiter.Limiter
	logger     *zap.Logger

	// Ephemeral conversational state: users we expect a receipt photo
	// from, and forwarded screenshots awaiting the operator's amount
	// reply, keyed by the forwarded message ID. Dropped on restart.
	mu              sync.Mutex
	awaitingReceipt map[int64]bool
	pendingDeposits map[int]pendingDeposit
}

type pendingDeposit struct {
	userID   int64
	fileID   string
	fileLink string
}

// New creates and configures a new Bot instance.
func New(cfg *config.Config, tree store.Tree, wiz *wizard.Engine, lim *limiter.Limiter, logger *zap.Logger) (*Bot, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Bot.UpdateMode))
	if mode == "" {
		mode = "auto"
	}

	useWebhook := true
	switch mode {
	case "polling":
		useWebhook = false
	case "webhook":
		useWebhook = true
	default: // auto
		useWebhook = strings.TrimSpace(cfg.Bot.WebhookURL) != ""
	}

	var poller tele.Poller
	var webhook *tele.Webhook
	if useWebhook {
		if strings.TrimSpace(cfg.Bot.WebhookURL) == "" {
			return nil, fmt.Errorf("BOT_WEBHOOK_URL is required when BOT_UPDATE_MODE=webhook")
		}
		webhook = &tele.Webhook{
			Listen:   "", // Empty: we mount on Echo instead of telebot's own server
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
		}
		poller = webhook
	} else {
		poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: poller,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	b := &Bot{
		tb:              tb,
		webhook:         webhook,
		useWebhook:      useWebhook,
		cfg:             cfg,
		tree:            tree,
		wizard:          wiz,
		limiter:         lim,
		logger:          logger,
		awaitingReceipt: make(map[int64]bool),
		pendingDeposits: make(map[int]pendingDeposit),
	}

	b.registerHandlers()

	return b, nil
}

// WebhookHandler returns the webhook handler for mounting on Echo.
// Returns nil when running in long-polling mode.
func (b *Bot) WebhookHandler() http.Handler {
	if b.webhook == nil {
		return nil
	}
	return b.webhook
}

// Start begins polling/webhook processing.
func (b *Bot) Start() {
	if b.useWebhook {
		b.logger.Info("Starting Telegram bot", zap.String("mode", "webhook"), zap.String("webhook_url", b.cfg.Bot.WebhookURL))
	} else {
		// Long polling requires webhook to be removed first.
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("Starting Telegram bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// Notify sends a plain message to a chat. Used by the housekeeping jobs.
func (b *Bot) Notify(chatID int64, text string) error {
	_, err := b.tb.Send(tele.ChatID(chatID), text)
	return err
}

// registerHandlers sets up all bot message and callback handlers.
func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/store", b.handleStoreCommand)
	b.tb.Handle("/adddate", b.handleAddDateCommand)
	b.tb.Handle("/cancel", b.handleCancelCommand)
	b.tb.Handle("/users", b.handleUsersCommand)
	b.tb.Handle("/accounts", b.handleAccountsCommand)
	b.tb.Handle("/broadcast", b.handleBroadcastCommand)
	b.tb.Handle(tele.OnText, b.handleText)
	b.tb.Handle(tele.OnCallback, b.handleCallback)
	b.tb.Handle(tele.OnPhoto, b.handlePhoto)
}

// ── /start ────────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	ctx := reqContext()
	chatID := c.Chat().ID

	var profile models.Profile
	err := b.tree.Get(ctx, models.UserPath(chatID), &profile)
	if err == store.ErrNotFound {
		profile = models.Profile{Balance: 0}
		if sender := c.Sender(); sender != nil {
			profile.ContactInfo = models.ContactInfo{
				FirstName:    sender.FirstName,
				LastName:     sender.LastName,
				Username:     sender.Username,
				UserID:       sender.ID,
				LanguageCode: sender.LanguageCode,
			}
		}
		if err := b.tree.Set(ctx, models.UserPath(chatID), profile); err != nil {
			return b.fail(c, "register user", err)
		}
		b.logger.Info("User registered", zap.Int64("chat_id", chatID))
		return c.Send("✅ Account registered! 👋 Welcome! Please choose an option:", b.mainMenuKeyboard(&profile))
	}
	if err != nil {
		return b.fail(c, "load user", err)
	}

	text := fmt.Sprintf("👋 Welcome back! Your balance: <b>%s birr</b>", formatAmount(profile.Balance))
	return c.Send(text, b.mainMenuKeyboard(&profile), tele.ModeHTML)
}

// ── Text routing ──────────────────────────────────────────────────────

func (b *Bot) handleText(c tele.Context) error {
	ctx := reqContext()
	chatID := c.Chat().ID

	// The operator approves a deposit by replying to the forwarded
	// screenshot with the amount.
	if chatID == b.cfg.Bot.OwnerID && c.Message().ReplyTo != nil {
		if handled, err := b.handleDepositReply(ctx, c); handled || err != nil {
			return err
		}
	}

	// An active wizard session gets first claim on admin text.
	if b.isAdmin(chatID) {
		reply, handled, err := b.wizard.HandleText(ctx, chatID, c.Text())
		if err != nil {
			return c.Send("⚠️ Something went wrong; the wizard was cancelled. Please start over.")
		}
		if handled {
			return c.Send(reply)
		}
	}

	return b.sendMainMenu(c)
}

// ── Callback queries ──────────────────────────────────────────────────

func (b *Bot) handleCallback(c tele.Context) error {
	ctx := reqContext()
	data := callbackToken(c.Callback().Data)

	_ = c.Respond()

	switch {
	case data == "back_to_menu":
		return b.sendMainMenu(c)

	case data == "add_fund":
		return b.sendAddFundMenu(c)

	case data == "pay_telebirr":
		return b.sendPaymentInstructions(c, "📲 Telebirr Payment Info:\nSend to +251912345678\nName: Bon_Afro\nThen send the screenshot here.")

	case data == "pay_cbe":
		return b.sendPaymentInstructions(c, "🏦 CBE Payment Info:\nAcct: 1000123456789\nName: Bon_Afro\nThen send the screenshot here.")

	case data == "purchase":
		return b.sendAccountList(ctx, c)

	case data == "view_account":
		return b.sendOwnedAccount(ctx, c)

	case data == "contact_support":
		return c.Send("📞 Contact Support:\nTelegram: @BonAfroSupport\nEmail: support@example.com", b.backKeyboard())

	case strings.HasPrefix(data, "select_account_"):
		return b.sendPlanList(ctx, c, strings.TrimPrefix(data, "select_account_"))

	case strings.HasPrefix(data, "select_plan|"):
		plan, accountKey, ok := parsePlanToken(data)
		if !ok {
			return c.Send("❓ Unknown option. Please try again.", b.backKeyboard())
		}
		return b.handlePurchase(ctx, c, plan, accountKey)

	case strings.HasPrefix(data, "send_code_"):
		return b.handleCodeRequest(ctx, c, strings.TrimPrefix(data, "send_code_"))

	default:
		b.logger.Debug("Unknown callback", zap.String("data", data), zap.Int64("user", c.Chat().ID))
		return c.Send("❓ Unknown option. Please try again.", b.backKeyboard())
	}
}

// ── Helpers ───────────────────────────────────────────────────────────

func (b *Bot) isAdmin(chatID int64) bool {
	if chatID == b.cfg.Bot.OwnerID {
		return true
	}
	id := fmt.Sprintf("%d", chatID)
	for _, part := range strings.Split(b.cfg.Bot.Admins, ",") {
		if strings.TrimSpace(part) == id {
			return true
		}
	}
	return false
}

// fail logs a fault and shows the generic apology. Never propagates the
// raw error into the chat.
func (b *Bot) fail(c tele.Context, op string, err error) error {
	b.logger.Error("Handler failed",
		zap.String("op", op),
		zap.Int64("chat_id", c.Chat().ID),
		zap.Error(err))
	return c.Send("⚠️ An error occurred. Please try again later.")
}

// reqContext is the per-update context. Store and mailbox clients carry
// their own timeouts, so no deadline is stacked here.
func reqContext() context.Context {
	return context.Background()
}

// callbackToken strips telebot's "\f" callback framing down to the bare
// token. "|" is part of the plan tokens, so it is left alone.
func callbackToken(data string) string {
	return strings.TrimPrefix(strings.TrimSpace(data), "\f")
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
