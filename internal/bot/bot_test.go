package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanTokenRoundTrip(t *testing.T) {
	cases := []struct {
		plan string
		key  string
	}{
		{"1 Month", "Account-7"},
		{"3 Months", "Account-12"},
		{"Family Plan Premium", "Account-1"},
		{"Weekly", "Account-3"},
		{"Family_Plan", "Account-2"},
		{"50% off | promo", "Account-9"},
	}
	for _, tc := range cases {
		token := planToken(tc.plan, tc.key)
		plan, key, ok := parsePlanToken(token)
		assert.True(t, ok, token)
		assert.Equal(t, tc.plan, plan)
		assert.Equal(t, tc.key, key)
	}
}

func TestParsePlanTokenRejectsMalformed(t *testing.T) {
	for _, data := range []string{"select_plan|", "select_plan||Account-7", "select_plan|1+Month|", "select_account_Account-7", "purchase", ""} {
		_, _, ok := parsePlanToken(data)
		assert.False(t, ok, data)
	}
}

func TestCallbackTokenStripsFraming(t *testing.T) {
	assert.Equal(t, "add_fund", callbackToken("\fadd_fund"))
	assert.Equal(t, "add_fund", callbackToken("add_fund"))
	assert.Equal(t, "select_plan|1+Month|Account-7", callbackToken("\fselect_plan|1+Month|Account-7"))
	assert.Equal(t, "back_to_menu", callbackToken("  \fback_to_menu  "))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "100", formatAmount(100))
	assert.Equal(t, "99.50", formatAmount(99.5))
	assert.Equal(t, "0", formatAmount(0))
	assert.Equal(t, "12.34", formatAmount(12.34))
}
