package bot

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	tele "gopkg.in/telebot.v3"

	"bonbot/internal/models"
)

// mainMenuKeyboard builds the inline main menu. The view button only
// appears once the user owns an account.
func (b *Bot) mainMenuKeyboard(profile *models.Profile) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := []tele.Row{
		menu.Row(menu.Data("➕ Add Fund", "add_fund")),
		menu.Row(menu.Data("💳 Purchase Plan", "purchase")),
		menu.Row(menu.Data("📞 Contact Support", "contact_support")),
	}
	if profile != nil && profile.Account != "" {
		rows = append(rows, menu.Row(menu.Data("📺 View "+profile.Account, "view_account")))
	}
	menu.Inline(rows...)
	return menu
}

func (b *Bot) backKeyboard() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.Data("⬅️ Back to Menu", "back_to_menu")))
	return menu
}

func (b *Bot) addFundKeyboard() *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("📲 Telebirr", "pay_telebirr")),
		menu.Row(menu.Data("🏦 CBE", "pay_cbe")),
		menu.Row(menu.Data("⬅️ Back to Menu", "back_to_menu")),
	)
	return menu
}

// accountListKeyboard lists the sellable accounts with their current
// occupancy, one button per account, sorted for a stable layout.
func (b *Bot) accountListKeyboard(userCounts map[string]int) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}

	keys := make([]string, 0, len(userCounts))
	for key := range userCounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]tele.Row, 0, len(keys)+1)
	for _, key := range keys {
		label := fmt.Sprintf("%s (%d users)", key, userCounts[key])
		rows = append(rows, menu.Row(menu.Data(label, "select_account_"+key)))
	}
	rows = append(rows, menu.Row(menu.Data("⬅️ Back to Menu", "back_to_menu")))
	menu.Inline(rows...)
	return menu
}

func (b *Bot) planListKeyboard(accountKey string, plans map[string]float64) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}

	names := make([]string, 0, len(plans))
	for name := range plans {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]tele.Row, 0, len(names)+1)
	for _, name := range names {
		label := fmt.Sprintf("%s - %s birr", name, formatAmount(plans[name]))
		rows = append(rows, menu.Row(menu.Data(label, planToken(name, accountKey))))
	}
	rows = append(rows, menu.Row(menu.Data("⬅️ Back to Accounts", "purchase")))
	menu.Inline(rows...)
	return menu
}

func (b *Bot) codeRequestKeyboard(accountKey string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.Data("🔐 Get sign-in code", "send_code_"+accountKey)),
		menu.Row(menu.Data("⬅️ Back to Menu", "back_to_menu")),
	)
	return menu
}

// planToken encodes a plan pick. The plan name is percent-escaped so it
// can never collide with the "|" delimiter, whatever the operator named
// the plan; the account key is the last segment.
func planToken(plan, accountKey string) string {
	return "select_plan|" + url.QueryEscape(plan) + "|" + accountKey
}

// parsePlanToken reverses planToken.
func parsePlanToken(data string) (plan, accountKey string, ok bool) {
	rest := strings.TrimPrefix(data, "select_plan|")
	if rest == data {
		return "", "", false
	}
	sep := strings.LastIndexByte(rest, '|')
	if sep <= 0 || sep == len(rest)-1 {
		return "", "", false
	}
	plan, err := url.QueryUnescape(rest[:sep])
	if err != nil || plan == "" {
		return "", "", false
	}
	return plan, rest[sep+1:], true
}
