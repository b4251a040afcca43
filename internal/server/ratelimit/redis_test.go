package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScripter evaluates the window script against an in-memory counter.
type fakeScripter struct {
	counts  map[string]int64
	expires map[string]any
	err     error
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: map[string]int64{}, expires: map[string]any{}}
}

func (f *fakeScripter) run(ctx context.Context, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[keys[0]]++
	if f.counts[keys[0]] == 1 {
		f.expires[keys[0]] = args[0]
	}
	cmd.SetVal(f.counts[keys[0]])
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(ctx, keys, args...)
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(ctx, keys, args...)
}

func (f *fakeScripter) EvalRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(ctx, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(ctx, keys, args...)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("sha")
	return cmd
}

func TestRedisLimiter(t *testing.T) {
	f := newFakeScripter()
	l := NewRedisLimiter(f, Options{Max: 10, Window: 10 * time.Second})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := l.Allow(ctx, 7)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int64(10000), f.expires["sealchat:ratelimit:7"])

	ok, err = l.Allow(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_Error(t *testing.T) {
	f := newFakeScripter()
	f.err = errors.New("connection refused")
	l := NewRedisLimiter(f, Options{Max: 10, Window: 10 * time.Second})

	ok, err := l.Allow(context.Background(), 7)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")
}
