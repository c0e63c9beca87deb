package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_NoURL(t *testing.T) {
	assert.False(t, Init(Config{}))
	assert.False(t, Available())
}

func TestInit_InvalidURL(t *testing.T) {
	assert.False(t, Init(Config{URL: "not a url"}))
	assert.False(t, Available())
}

func TestDial_Unreachable(t *testing.T) {
	_, err := dial(Config{URL: "redis://127.0.0.1:1/0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping 127.0.0.1:1")
}

func TestHelpersAreNoOpsWhenDisabled(t *testing.T) {
	ctx := context.Background()
	var out map[string]any
	assert.False(t, GetJSON(ctx, "k", &out))
	assert.False(t, SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute))
	assert.False(t, MirrorSession(ctx, "s1", map[string]string{"a": "b"}, time.Minute))
	ForgetSession(ctx, "s1")

	ids, err := RecentSessions(ctx, 5)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "listing:olx:1821022551", ListingKey("olx:1821022551"))
	assert.Equal(t, "session:abc", SessionKey("abc"))
}
