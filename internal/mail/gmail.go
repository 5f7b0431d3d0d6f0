package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"bonbot/internal/config"
)

const (
	gmailBaseURL = "https://gmail.googleapis.com/gmail/v1"
	tokenURL     = "https://oauth2.googleapis.com/token"
)

// codeRe matches the 4-6 digit codes the streaming service mails out.
var codeRe = regexp.MustCompile(`\b\d{4,6}\b`)

// GmailFetcher reads the shared inbox through the Gmail REST API using an
// offline refresh token.
type GmailFetcher struct {
	cfg    config.MailConfig
	client *resty.Client
	logger *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGmailFetcher(cfg config.MailConfig, logger *zap.Logger) *GmailFetcher {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &GmailFetcher{cfg: cfg, client: client, logger: logger}
}

// FetchCode returns the most recent verification code delivered to the
// given mailbox within the configured recency window, or "" if none.
func (g *GmailFetcher) FetchCode(ctx context.Context, mailbox string) (string, error) {
	token, err := g.token(ctx)
	if err != nil {
		return "", err
	}

	query := g.cfg.Query
	if strings.TrimSpace(mailbox) != "" {
		query += " to:" + mailbox
	}
	query += fmt.Sprintf(" after:%d", time.Now().Add(-g.cfg.Window).Unix())

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"q":          query,
			"maxResults": "5",
		}).
		SetResult(&list).
		Get(gmailBaseURL + "/users/me/messages")
	if err != nil {
		return "", fmt.Errorf("gmail list messages: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gmail list messages: status %d", resp.StatusCode())
	}
	if len(list.Messages) == 0 {
		return "", nil
	}

	var msg gmailMessage
	resp, err = g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&msg).
		Get(gmailBaseURL + "/users/me/messages/" + list.Messages[0].ID)
	if err != nil {
		return "", fmt.Errorf("gmail get message: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gmail get message: status %d", resp.StatusCode())
	}

	body := msg.plainText()
	if body == "" {
		body = msg.Snippet
	}
	return extractCode(body), nil
}

// token returns a cached access token, refreshing it when stale.
func (g *GmailFetcher) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     g.cfg.ClientID,
			"client_secret": g.cfg.ClientSecret,
			"refresh_token": g.cfg.RefreshToken,
			"grant_type":    "refresh_token",
		}).
		SetResult(&result).
		Post(tokenURL)
	if err != nil {
		return "", fmt.Errorf("gmail token refresh: %w", err)
	}
	if resp.IsError() || result.AccessToken == "" {
		return "", fmt.Errorf("gmail token refresh: status %d", resp.StatusCode())
	}

	g.accessToken = result.AccessToken
	// Renew a minute early to stay ahead of expiry.
	g.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn-60) * time.Second)

	g.logger.Debug("Refreshed Gmail access token")
	return g.accessToken, nil
}

type gmailMessage struct {
	Snippet string       `json:"snippet"`
	Payload gmailPayload `json:"payload"`
}

type gmailPayload struct {
	MimeType string         `json:"mimeType"`
	Body     gmailBody      `json:"body"`
	Parts    []gmailPayload `json:"parts"`
}

type gmailBody struct {
	Data string `json:"data"`
}

// plainText walks the whole MIME tree for a text/plain part first; only
// when none exists anywhere does it settle for any other decodable body,
// so a multipart/alternative message never yields its HTML sibling.
func (m *gmailMessage) plainText() string {
	if text := m.Payload.findPlain(); text != "" {
		return text
	}
	return m.Payload.anyBody()
}

func (p *gmailPayload) findPlain() string {
	if strings.HasPrefix(p.MimeType, "text/plain") {
		return p.decodedBody()
	}
	for i := range p.Parts {
		if text := p.Parts[i].findPlain(); text != "" {
			return text
		}
	}
	return ""
}

func (p *gmailPayload) anyBody() string {
	if body := p.decodedBody(); body != "" {
		return body
	}
	for i := range p.Parts {
		if body := p.Parts[i].anyBody(); body != "" {
			return body
		}
	}
	return ""
}

func (p *gmailPayload) decodedBody() string {
	if p.Body.Data == "" {
		return ""
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(p.Body.Data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

// extractCode pulls the first plausible numeric code out of a message
// body, or "" when there is none.
func extractCode(body string) string {
	return codeRe.FindString(body)
}
