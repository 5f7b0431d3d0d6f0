package models

import (
	"strconv"
	"strings"
)

// AccountRecord is one shared streaming credential pool sold under one or
// more named plans. It lives at the root of the data store under its key
// (e.g. "Account-7").
type AccountRecord struct {
	Plans      map[string]float64 `json:"plan"`
	Credential Credential         `json:"credential"`
	Users      map[string]bool    `json:"users"`
}

// Credential is the mailbox identity and password of a shared account.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Subscription is one user's purchased plan on one shared account.
// Chance is the remaining number of sign-in code fetches.
type Subscription struct {
	Plan         string `json:"plan"`
	PurchaseDate string `json:"purchaseDate"`
	Chance       int    `json:"chance"`
}

// Profile is the per-user record created on /start.
type Profile struct {
	Balance     float64                 `json:"balance"`
	Account     string                  `json:"account,omitempty"`
	ContactInfo ContactInfo             `json:"contactInfo"`
	Accounts    map[string]Subscription `json:"accounts,omitempty"`
}

// ContactInfo mirrors the sender fields captured at registration.
type ContactInfo struct {
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// PaymentRecord is a received top-up screenshot, optionally annotated with
// the approved amount by the operator.
type PaymentRecord struct {
	FileID    string  `json:"fileId"`
	FileLink  string  `json:"fileLink,omitempty"`
	Timestamp int64   `json:"timestamp"`
	AddedBy   string  `json:"addedBy,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// DisplayName returns the name a user is listed under inside an account's
// user set: the Telegram username when known, "user-<id>" otherwise.
func (c ContactInfo) DisplayName(chatID int64) string {
	if strings.TrimSpace(c.Username) != "" {
		return c.Username
	}
	return "user-" + strconv.FormatInt(chatID, 10)
}

// ── Store paths ───────────────────────────────────────────────────────

func UserPath(chatID int64) string {
	return "users/" + strconv.FormatInt(chatID, 10)
}

func UserAccountLinkPath(chatID int64) string {
	return UserPath(chatID) + "/account"
}

func UserBalancePath(chatID int64) string {
	return UserPath(chatID) + "/balance"
}

func UserPaymentsPath(chatID int64) string {
	return UserPath(chatID) + "/payments"
}

func SubscriptionPath(chatID int64, accountKey string) string {
	return UserPath(chatID) + "/accounts/" + accountKey
}

func PlanPath(accountKey, plan string) string {
	return accountKey + "/plan/" + plan
}

func PlansPath(accountKey string) string {
	return accountKey + "/plan"
}

func CredentialPath(accountKey string) string {
	return accountKey + "/credential"
}

func AccountUsersPath(accountKey string) string {
	return accountKey + "/users"
}

func AccountUserPath(accountKey, displayName string) string {
	return AccountUsersPath(accountKey) + "/" + displayName
}

// ReceiptLogPath is the raw screenshot log kept outside the user profile,
// written before the operator has reviewed anything.
func ReceiptLogPath(chatID int64) string {
	return "payments/" + strconv.FormatInt(chatID, 10)
}
