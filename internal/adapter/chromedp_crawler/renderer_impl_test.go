package chromedp_crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/pkg/apperr"
)

func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary on PATH")
}

func TestRender_ReturnsScriptBuiltDOM(t *testing.T) {
	requireChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><div id="app"></div>
<script>document.getElementById("app").innerText = "Sec. 1-1. Sales tax levied.";</script></body></html>`)
	}))
	defer srv.Close()

	r := NewChromedpRenderer(1, 30*time.Second, "", zap.NewNop())
	defer r.Close()

	html, err := r.Render(context.Background(), srv.URL+"/code")
	require.NoError(t, err)
	assert.Contains(t, string(html), "Sales tax levied")

	_, err = r.Render(context.Background(), srv.URL+"/missing")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRender_HonoursCancelledContext(t *testing.T) {
	r := NewChromedpRenderer(1, time.Second, "", zap.NewNop())
	defer r.Close()
	r.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Render(ctx, "about:blank")
	assert.ErrorIs(t, err, context.Canceled)
}
