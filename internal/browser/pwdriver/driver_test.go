package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagewright/internal/browser"
	"github.com/xkilldash9x/pagewright/internal/config"
)

func TestLaunchOptions(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	cfg.Args = []string{"--lang=en-US"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := launchOptions(ctx, cfg)

	require.NotNil(t, opts.Headless)
	assert.True(t, *opts.Headless)
	assert.Equal(t, []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage", "--lang=en-US"}, opts.Args)
	require.NotNil(t, opts.Timeout)
	assert.InDelta(t, 10000, *opts.Timeout, 1000)

	assert.Nil(t, launchOptions(context.Background(), cfg).Timeout, "no deadline leaves playwright's default")
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))

	closed := mapErr(fmt.Errorf("click: %w", playwright.ErrTargetClosed))
	assert.ErrorIs(t, closed, browser.ErrClosed)

	other := errors.New("strict mode violation")
	assert.Same(t, other, mapErr(other))
}

func TestCall(t *testing.T) {
	t.Run("returns the result", func(t *testing.T) {
		v, err := call(context.Background(), func() (int, error) { return 7, nil })
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("stops waiting when ctx ends", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := call(ctx, func() (int, error) {
			<-release
			return 1, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("does not start after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		started := false
		err := do(ctx, func() error {
			started = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, started)
	})
}

func TestWaitStatesCoverEveryState(t *testing.T) {
	for _, state := range []browser.WaitState{browser.StateVisible, browser.StateHidden, browser.StateAttached, browser.StateDetached} {
		assert.Contains(t, waitStates, state)
	}
}

// TestDriver_Integration drives a real Chromium. It runs only when
// PAGEWRIGHT_BROWSER_TESTS is set.
func TestDriver_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("PAGEWRIGHT_BROWSER_TESTS") == "" {
		t.Skip("set PAGEWRIGHT_BROWSER_TESTS to run browser integration tests")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ping":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"ok":true}`)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<html><body>
				<input id="name">
				<button id="go" onclick="alert('hello ' + document.getElementById('name').value)">Go</button>
				<script>fetch('/api/ping')</script>
			</body></html>`)
		}
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	logger := zaptest.NewLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	driver, err := Launch(ctx, cfg, logger)
	if err != nil {
		t.Skip("playwright not available:", err)
	}
	defer driver.Close(context.Background())

	page, err := driver.NewPage(ctx)
	require.NoError(t, err)

	var responses []string
	unsubscribe := page.OnResponse(func(r browser.Response) { responses = append(responses, r.URL()) })
	require.NoError(t, page.Goto(ctx, server.URL))
	require.NoError(t, page.WaitForNetworkIdle(ctx))
	unsubscribe()
	assert.Contains(t, responses, server.URL+"/api/ping")

	require.NoError(t, page.Locator("#name").Fill(ctx, "world"))

	messages := make(chan string, 1)
	page.OnDialog(func(d browser.Dialog) {
		messages <- d.Message()
		_ = d.Accept("")
	})
	require.NoError(t, page.Locator("#go").Click(ctx, browser.ClickOptions{}))
	select {
	case msg := <-messages:
		assert.Equal(t, "hello world", msg)
	case <-ctx.Done():
		t.Fatal("dialog never opened")
	}

	require.NoError(t, page.Close(ctx))
	assert.True(t, page.IsClosed())
}
