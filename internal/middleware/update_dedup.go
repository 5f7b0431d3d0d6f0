// Package middleware holds the Echo middleware in front of the Telegram
// webhook: duplicate-update suppression and a source IP check.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// UpdateDeduper remembers Telegram update IDs that were already handed
// to the bot. Telegram retries webhook deliveries until it sees a 2xx,
// so restarts and slow handlers produce duplicates.
type UpdateDeduper interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
}

type redisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func (d *redisDeduper) Seen(ctx context.Context, updateID int64) (bool, error) {
	key := "bot:update:" + strconv.FormatInt(updateID, 10)
	fresh, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

type memoryDeduper struct {
	mu     sync.Mutex
	seen   map[int64]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func (d *memoryDeduper) Seen(_ context.Context, updateID int64) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[updateID]; ok && exp.After(now) {
		return true, nil
	}
	d.seen[updateID] = now.Add(d.ttl)

	if now.After(d.nextGC) {
		for id, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, id)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}
	return false, nil
}

// NewUpdateDeduper prefers Redis so duplicates are caught across
// replicas; with no address, or when the ping fails, it degrades to a
// process-local map and reports the error alongside the fallback.
func NewUpdateDeduper(addr, pass string, db int, ttl time.Duration) (UpdateDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	memory := &memoryDeduper{seen: make(map[int64]time.Time), ttl: ttl, nextGC: time.Now().Add(ttl)}
	if addr == "" {
		return memory, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return memory, err
	}
	return &redisDeduper{client: client, ttl: ttl}, nil
}

// TelegramUpdateDedup short-circuits webhook deliveries whose update_id
// was already seen. The body is restored for the next handler.
func TelegramUpdateDedup(deduper UpdateDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil || c.Request().Body == nil {
				return next(c)
			}

			req := c.Request()
			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewReader(raw))

			var update struct {
				UpdateID int64 `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &update); err != nil || update.UpdateID == 0 {
				return next(c)
			}

			dup, err := deduper.Seen(req.Context(), update.UpdateID)
			if err != nil {
				// Fail open: a dedup outage must not drop updates.
				return next(c)
			}
			if dup {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// TelegramIPCheck rejects webhook posts that don't originate from
// Telegram's published ranges (149.154.160.0/20, 91.108.4.0/22).
// Loopback is allowed for local testing behind a tunnel.
func TelegramIPCheck() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if strings.HasPrefix(ip, "149.154.") ||
				strings.HasPrefix(ip, "91.108.") ||
				ip == "127.0.0.1" || ip == "::1" {
				return next(c)
			}
			return c.String(http.StatusForbidden, "Forbidden")
		}
	}
}
