package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Firebase talks to a Firebase Realtime Database over its REST surface.
// Every node is addressable as <base>/<path>.json.
type Firebase struct {
	client *resty.Client
	auth   string
}

// NewFirebase creates a Firebase-backed Tree. auth is the optional
// database secret or ID token appended as the auth query parameter.
func NewFirebase(databaseURL, auth string) *Firebase {
	client := resty.New().
		SetBaseURL(strings.TrimRight(databaseURL, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Firebase{client: client, auth: auth}
}

func (f *Firebase) request(ctx context.Context) *resty.Request {
	req := f.client.R().SetContext(ctx)
	if f.auth != "" {
		req.SetQueryParam("auth", f.auth)
	}
	return req
}

func nodeURL(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/.json"
	}
	return "/" + path + ".json"
}

var nullBody = []byte("null")

func (f *Firebase) Get(ctx context.Context, path string, out interface{}) error {
	resp, err := f.request(ctx).Get(nodeURL(path))
	if err != nil {
		return fmt.Errorf("firebase get %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase get %s: status %d", path, resp.StatusCode())
	}
	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 || bytes.Equal(body, nullBody) {
		return ErrNotFound
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("firebase decode %s: %w", path, err)
	}
	return nil
}

func (f *Firebase) Set(ctx context.Context, path string, value interface{}) error {
	resp, err := f.request(ctx).SetBody(value).Put(nodeURL(path))
	if err != nil {
		return fmt.Errorf("firebase set %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase set %s: status %d", path, resp.StatusCode())
	}
	return nil
}

func (f *Firebase) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	resp, err := f.request(ctx).SetBody(fields).Patch(nodeURL(path))
	if err != nil {
		return fmt.Errorf("firebase update %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase update %s: status %d", path, resp.StatusCode())
	}
	return nil
}

func (f *Firebase) Push(ctx context.Context, path string, value interface{}) (string, error) {
	resp, err := f.request(ctx).SetBody(value).Post(nodeURL(path))
	if err != nil {
		return "", fmt.Errorf("firebase push %s: %w", path, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("firebase push %s: status %d", path, resp.StatusCode())
	}
	var result struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("firebase push %s: %w", path, err)
	}
	return result.Name, nil
}

func (f *Firebase) Remove(ctx context.Context, path string) error {
	resp, err := f.request(ctx).Delete(nodeURL(path))
	if err != nil {
		return fmt.Errorf("firebase remove %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase remove %s: status %d", path, resp.StatusCode())
	}
	return nil
}

func (f *Firebase) Exists(ctx context.Context, path string) (bool, error) {
	var raw json.RawMessage
	err := f.Get(ctx, path, &raw)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
