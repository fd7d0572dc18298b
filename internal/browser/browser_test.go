package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/youread/internal/crawler"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	b, err := New(Config{MaxTabs: 2, Headless: true}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	require.Equal(t, defaultActionTimeout, b.cfg.ActionTimeout)
	require.Equal(t, 2, cap(b.limiter))
	require.NotNil(t, b.logger)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxTabs: -1}, nil)
	require.Error(t, err)

	_, err = New(Config{NavigateQPS: -1}, nil)
	require.Error(t, err)

	_, err = New(Config{Cookies: "sid=1"}, nil)
	require.Error(t, err)
}

func TestAcquireBlocksWhenFull(t *testing.T) {
	t.Parallel()

	b, err := New(Config{MaxTabs: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	release, err := b.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	again, err := b.acquire(context.Background())
	require.NoError(t, err)
	again()
}

func TestParseCookies(t *testing.T) {
	t.Parallel()

	cookies, err := parseCookies(" user_acc=abc ; bad; session = xyz ;", "https://www.manganato.gg/bookmark")
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	require.Equal(t, "user_acc", cookies[0].Name)
	require.Equal(t, "abc", cookies[0].Value)
	require.Equal(t, "www.manganato.gg", cookies[0].Domain)
	require.Equal(t, "https://www.manganato.gg", cookies[0].URL)
	require.True(t, cookies[0].Secure)
	require.Equal(t, "session", cookies[1].Name)

	none, err := parseCookies("  ", "")
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = parseCookies("a=b", "not a url")
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, classify("op", nil, live, false))

	err := classify("op", context.DeadlineExceeded, live, false)
	require.ErrorIs(t, err, errActionTimeout)
	require.True(t, crawler.IsTransient(err))

	err = classify("op", errors.New("boom"), live, true)
	require.ErrorIs(t, err, crawler.ErrTabClosed)
	require.False(t, crawler.IsTransient(err))

	err = classify("op", context.Canceled, cancelled, false)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, crawler.IsTransient(err))

	err = classify("op", errors.New("cdp: no such node"), live, false)
	require.True(t, crawler.IsTransient(err))
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled")
	}
}

func TestWaitHostThrottles(t *testing.T) {
	t.Parallel()

	b, err := New(Config{NavigateQPS: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	require.NoError(t, b.waitHost(context.Background(), "https://www.manganato.gg/bookmark"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, b.waitHost(ctx, "https://www.manganato.gg/bookmark?page=2"))
	require.NoError(t, b.waitHost(ctx, "https://other.example/"))
}
