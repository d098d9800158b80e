package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hls-downloader/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidVideoID(t *testing.T) {
	for id, want := range map[string]bool{
		"sm9":      true,
		"nm123":    true,
		"so456":    true,
		"sm":       false,
		"lv1":      false,
		"":         false,
		"watch/sm": false,
	} {
		assert.Equal(t, want, validVideoID(id), id)
	}
}

func TestLoadDelivery(t *testing.T) {
	dir := t.TempDir()
	body := `{"recipeId":"nicovideo-sm9","videos":["v1"],"audios":["a1"],"heartbeatLifetime":120,"urls":[{"url":"https://api.example/api/sessions","isWellKnownPort":true,"isSsl":true}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sm9.json"), []byte(body), 0o600))

	ds, err := loadDelivery(filepath.Join(dir, "{id}.json"), "sm9")
	require.NoError(t, err)
	assert.Equal(t, "nicovideo-sm9", ds.RecipeID)
	assert.Equal(t, 120, ds.HeartbeatLifetime)
	require.Len(t, ds.URLs, 1)
	assert.True(t, ds.URLs[0].IsSSL)

	_, err = loadDelivery(filepath.Join(dir, "{id}.json"), "sm10")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600))
	_, err = loadDelivery(filepath.Join(dir, "bad.json"), "sm9")
	assert.Error(t, err)
}

func TestWithCause(t *testing.T) {
	plain := errors.New("fetch failed")
	assert.Equal(t, plain, withCause(context.Background(), plain))

	hbErr := &session.HeartbeatError{SessionID: "abc", Err: errors.New("gone")}
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(hbErr)

	err := withCause(ctx, context.Canceled)
	var he *session.HeartbeatError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "abc", he.SessionID)
}
