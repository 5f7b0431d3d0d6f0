package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"bonbot/internal/models"
	"bonbot/internal/store"
)

// chatContext is the slice of tele.Context the shop handlers touch:
// the chat identity and outbound sends.
type chatContext struct {
	tele.Context
	chat *tele.Chat
	sent []string
}

func (c *chatContext) Chat() *tele.Chat { return c.chat }

func (c *chatContext) Send(what interface{}, _ ...interface{}) error {
	if text, ok := what.(string); ok {
		c.sent = append(c.sent, text)
	}
	return nil
}

type brokenTree struct {
	store.Tree
}

func (brokenTree) Get(context.Context, string, interface{}) error {
	return errors.New("store offline")
}

func newTestBot(tree store.Tree) *Bot {
	return &Bot{tree: tree, logger: zap.NewNop()}
}

func TestSendOwnedAccountStoreFaultGetsApology(t *testing.T) {
	b := newTestBot(brokenTree{})
	c := &chatContext{chat: &tele.Chat{ID: 100}}

	require.NoError(t, b.sendOwnedAccount(context.Background(), c))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "An error occurred")
	assert.NotContains(t, c.sent[0], "don't own an account")
}

func TestSendOwnedAccountWithoutAccount(t *testing.T) {
	b := newTestBot(store.NewMemory())
	c := &chatContext{chat: &tele.Chat{ID: 100}}

	require.NoError(t, b.sendOwnedAccount(context.Background(), c))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "don't own an account")
}

func TestSendOwnedAccountShowsCredential(t *testing.T) {
	ctx := context.Background()
	tree := store.NewMemory()
	require.NoError(t, tree.Set(ctx, models.UserPath(100), models.Profile{
		Balance: 50,
		Account: "Account-7",
		Accounts: map[string]models.Subscription{
			"Account-7": {Plan: "1 Month", PurchaseDate: "2026-08-20", Chance: 2},
		},
	}))
	require.NoError(t, tree.Set(ctx, models.CredentialPath("Account-7"), models.Credential{
		Email: "pool@example.com", Password: "secret",
	}))

	b := newTestBot(tree)
	c := &chatContext{chat: &tele.Chat{ID: 100}}

	require.NoError(t, b.sendOwnedAccount(ctx, c))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "Account-7")
	assert.Contains(t, c.sent[0], "pool@example.com")
	assert.Contains(t, c.sent[0], "1 Month")
}
