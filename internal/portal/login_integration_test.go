//go:build integration

package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webot/internal/browser"

	"github.com/stretchr/testify/require"
)

// Mimics the sign-in form's ant-select: the dropdown is detached from the
// trigger and each option records its selection on click.
const antSelectFixture = `<!DOCTYPE html>
<html><body>
<div class="ant-select-selector" onclick="document.querySelector('.ant-select-dropdown').style.display='block'">
  Select service type
</div>
<div class="ant-select-dropdown" style="display:none">
  <div class="ant-select-item ant-select-item-option ant-select-item-option-active">
    <div class="ant-select-item-option-content" onclick="window.picked='Mobile'">Mobile</div>
  </div>
  <div class="ant-select-item ant-select-item-option">
    <div class="ant-select-item-option-content" onclick="window.picked='Internet'">Internet</div>
  </div>
</div>
</body></html>`

// Needs a local Chrome/Chromium. Run with: go test -tags integration ./internal/portal/
func TestSelectInternetServiceType_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, antSelectFixture)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.Headless = true
	mgr := browser.NewManager(cfg)
	defer mgr.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	uc, err := mgr.NewContext(ctx)
	require.NoError(t, err)
	defer uc.Close()

	page := uc.Page().Context(ctx)
	require.NoError(t, page.Navigate(ts.URL))
	require.NoError(t, page.WaitLoad())

	d := New(mgr, Config{LoginTimeout: 15 * time.Second})
	require.NoError(t, d.selectInternetServiceType(page))

	// The Internet option must be the one clicked, not the active Mobile one.
	got, err := page.Eval(`() => window.picked`)
	require.NoError(t, err)
	require.Equal(t, "Internet", got.Value.Str())
}
