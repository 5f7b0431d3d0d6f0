package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduperSeen(t *testing.T) {
	d := &memoryDeduper{seen: map[int64]time.Time{}, ttl: time.Minute, nextGC: time.Now().Add(time.Minute)}
	ctx := context.Background()

	dup, err := d.Seen(ctx, 42)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, _ = d.Seen(ctx, 42)
	assert.True(t, dup)

	dup, _ = d.Seen(ctx, 43)
	assert.False(t, dup)
}

func TestMemoryDeduperExpiry(t *testing.T) {
	d := &memoryDeduper{seen: map[int64]time.Time{}, ttl: 5 * time.Millisecond, nextGC: time.Now()}
	ctx := context.Background()

	_, _ = d.Seen(ctx, 1)
	time.Sleep(10 * time.Millisecond)

	dup, _ := d.Seen(ctx, 1)
	assert.False(t, dup, "expired entries are forgotten")
}

func TestTelegramUpdateDedupDropsDuplicates(t *testing.T) {
	e := echo.New()
	d := &memoryDeduper{seen: map[int64]time.Time{}, ttl: time.Minute, nextGC: time.Now().Add(time.Minute)}

	calls := 0
	h := TelegramUpdateDedup(d)(func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusOK)
	})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":777}`))
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(req, rec)))
		return rec
	}

	rec := post()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)

	rec = post()
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate still gets a 2xx so Telegram stops retrying")
	assert.Equal(t, 1, calls, "handler must not run twice for one update")
}

func TestTelegramUpdateDedupPassesMalformedBody(t *testing.T) {
	e := echo.New()
	d := &memoryDeduper{seen: map[int64]time.Time{}, ttl: time.Minute, nextGC: time.Now().Add(time.Minute)}

	calls := 0
	h := TelegramUpdateDedup(d)(func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, 1, calls)
}
