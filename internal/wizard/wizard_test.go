package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bonbot/internal/models"
	"bonbot/internal/session"
	"bonbot/internal/store"
)

const owner = int64(99)

func newEngine(t *testing.T) (*Engine, *session.Store, *store.Memory) {
	t.Helper()
	sessions := session.NewStore()
	tree := store.NewMemory()
	return New(sessions, tree, zap.NewNop()), sessions, tree
}

func step(t *testing.T, e *Engine, text string) string {
	t.Helper()
	reply, handled, err := e.HandleText(context.Background(), owner, text)
	require.NoError(t, err)
	require.True(t, handled)
	return reply
}

func TestStoreAccountHappyPath(t *testing.T) {
	ctx := context.Background()
	e, sessions, tree := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	step(t, e, "Account-7")
	step(t, e, "1 Month")
	step(t, e, "100")
	step(t, e, "no")
	step(t, e, "a@b.com")
	reply := step(t, e, "secret")
	assert.Contains(t, reply, "Account-7")

	var record models.AccountRecord
	require.NoError(t, tree.Get(ctx, "Account-7", &record))
	assert.Equal(t, map[string]float64{"1 Month": 100}, record.Plans)
	assert.Equal(t, "a@b.com", record.Credential.Email)
	assert.Equal(t, "secret", record.Credential.Password)
	assert.Empty(t, record.Users)

	_, active := sessions.Get(owner)
	assert.False(t, active, "session must be cleared after completion")
}

func TestStoreAccountMultiplePlans(t *testing.T) {
	ctx := context.Background()
	e, _, tree := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	step(t, e, "account-12") // case-insensitive, canonicalized
	step(t, e, "1 Month")
	step(t, e, "100")
	step(t, e, "yes")
	step(t, e, "3 Months")
	step(t, e, "250.50")
	step(t, e, "no")
	step(t, e, "pool@example.com")
	step(t, e, "hunter2")

	var record models.AccountRecord
	require.NoError(t, tree.Get(ctx, "Account-12", &record))
	assert.Equal(t, map[string]float64{"1 Month": 100, "3 Months": 250.50}, record.Plans)
}

func TestAccountKeyValidation(t *testing.T) {
	ctx := context.Background()
	e, sessions, _ := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	for _, bad := range []string{"Account7", "Account-", "acc-7", "Account-7x", ""} {
		reply := step(t, e, bad)
		assert.Contains(t, reply, "❌", "input %q must be rejected", bad)
		sess, _ := sessions.Get(owner)
		assert.Equal(t, session.StepAskAccountKey, sess.Step, "step must not advance on %q", bad)
	}
}

func TestAccountKeyMustNotExist(t *testing.T) {
	ctx := context.Background()
	e, sessions, tree := newEngine(t)

	require.NoError(t, tree.Set(ctx, "Account-7", map[string]interface{}{"plan": map[string]float64{"1 Month": 100}}))

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	reply := step(t, e, "Account-7")
	assert.Contains(t, reply, "already exists")
	sess, _ := sessions.Get(owner)
	assert.Equal(t, session.StepAskAccountKey, sess.Step)
}

func TestPlanPriceValidation(t *testing.T) {
	ctx := context.Background()
	e, sessions, _ := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)
	step(t, e, "Account-1")
	step(t, e, "1 Month")

	for _, bad := range []string{"0", "-5", "free", ""} {
		reply := step(t, e, bad)
		assert.Contains(t, reply, "❌", "price %q must be rejected", bad)
		sess, _ := sessions.Get(owner)
		assert.Equal(t, session.StepAskPlanPrice, sess.Step)
		assert.Empty(t, sess.Draft.Plans, "draft must be unchanged on %q", bad)
	}

	step(t, e, "100")
	sess, _ := sessions.Get(owner)
	assert.Equal(t, map[string]float64{"1 Month": 100}, sess.Draft.Plans)
}

func TestMorePlansRepromptsOnGibberish(t *testing.T) {
	ctx := context.Background()
	e, sessions, _ := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)
	step(t, e, "Account-1")
	step(t, e, "1 Month")
	step(t, e, "100")

	reply := step(t, e, "maybe")
	assert.Contains(t, reply, "yes or no")
	sess, _ := sessions.Get(owner)
	assert.Equal(t, session.StepAskMorePlans, sess.Step)

	step(t, e, "Y")
	sess, _ = sessions.Get(owner)
	assert.Equal(t, session.StepAskPlanName, sess.Step)
}

func TestSecondWizardStartRejected(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	_, err = e.StartStoreAccount(ctx, owner)
	assert.ErrorIs(t, err, session.ErrActive)
	_, err = e.StartAdjustDate(ctx, owner)
	assert.ErrorIs(t, err, session.ErrActive)
}

func TestCommandsAreNotConsumed(t *testing.T) {
	ctx := context.Background()
	e, sessions, _ := newEngine(t)

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	_, handled, err := e.HandleText(ctx, owner, "/users")
	require.NoError(t, err)
	assert.False(t, handled)

	sess, _ := sessions.Get(owner)
	assert.Equal(t, session.StepAskAccountKey, sess.Step)
}

func TestCancelEndsAnyFlow(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	assert.False(t, e.Cancel(owner))

	_, err := e.StartAdjustDate(ctx, owner)
	require.NoError(t, err)
	assert.True(t, e.Cancel(owner))
	assert.False(t, e.Active(owner))
}

func TestAdjustDateFlowBackfillsDefaults(t *testing.T) {
	ctx := context.Background()
	e, _, tree := newEngine(t)

	require.NoError(t, tree.Set(ctx, models.UserPath(42), map[string]interface{}{"balance": 0}))
	// Legacy subscription without plan or chance.
	require.NoError(t, tree.Set(ctx, models.SubscriptionPath(42, "Account-3"), map[string]interface{}{
		"purchaseDate": "2025-12-01",
	}))

	_, err := e.StartAdjustDate(ctx, owner)
	require.NoError(t, err)

	step(t, e, "42")
	step(t, e, "Account-3")
	reply := step(t, e, "2026-01-15")
	assert.Contains(t, reply, "2026-01-15")

	var sub models.Subscription
	require.NoError(t, tree.Get(ctx, models.SubscriptionPath(42, "Account-3"), &sub))
	assert.Equal(t, "2026-01-15", sub.PurchaseDate)
	assert.Equal(t, "1 Month", sub.Plan)
	assert.Equal(t, 3, sub.Chance)
}

func TestAdjustDateValidation(t *testing.T) {
	ctx := context.Background()
	e, sessions, tree := newEngine(t)

	require.NoError(t, tree.Set(ctx, models.UserPath(42), map[string]interface{}{"balance": 0}))
	require.NoError(t, tree.Set(ctx, models.SubscriptionPath(42, "Account-3"), models.Subscription{
		Plan: "1 Month", PurchaseDate: "2025-12-01", Chance: 3,
	}))

	_, err := e.StartAdjustDate(ctx, owner)
	require.NoError(t, err)

	assert.Contains(t, step(t, e, "not-a-number"), "❌")
	assert.Contains(t, step(t, e, "77"), "❌") // unknown user
	step(t, e, "42")

	assert.Contains(t, step(t, e, "Account-9"), "no subscription")
	step(t, e, "Account-3")

	assert.Contains(t, step(t, e, "15-01-2026"), "YYYY-MM-DD")
	sess, _ := sessions.Get(owner)
	assert.Equal(t, session.StepAskDate, sess.Step)
}

// faultyTree fails every operation, standing in for a broken data store.
type faultyTree struct{ store.Tree }

var errBoom = errors.New("boom")

func (faultyTree) Exists(context.Context, string) (bool, error) { return false, errBoom }

func TestStoreFaultDiscardsSession(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewStore()
	e := New(sessions, faultyTree{store.NewMemory()}, zap.NewNop())

	_, err := e.StartStoreAccount(ctx, owner)
	require.NoError(t, err)

	_, handled, err := e.HandleText(ctx, owner, "Account-7")
	assert.True(t, handled)
	assert.ErrorIs(t, err, errBoom)

	_, active := sessions.Get(owner)
	assert.False(t, active, "session must be discarded after a fault")
}
