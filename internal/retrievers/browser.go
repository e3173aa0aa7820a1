package retrievers

import (
	"context"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

const DefaultBrowserTimeout = 30 * time.Second

// Browser renders script-driven paste pages in headless Chrome before
// extracting their text.
type Browser struct {
	Enabled bool
	Timeout time.Duration
	// Render returns the page HTML. Nil uses headless Chrome.
	Render func(ctx context.Context, rawURL string) (string, error)
}

func (*Browser) Identifier() string    { return "browser" }
func (*Browser) Order() pipeline.Order { return pipeline.Latest }

func (b *Browser) Applies(u *url.URL, _ pipeline.Event, snap *remoteconfig.Snapshot) bool {
	if !b.Enabled {
		return false
	}
	p, ok := snap.Pastebin(u)
	return ok && p.Mode == remoteconfig.ModeBrowser
}

func (b *Browser) Fetch(ctx context.Context, u *url.URL, _ *remoteconfig.Snapshot) ([]string, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	render := b.Render
	if render == nil {
		render = renderChrome
	}
	html, err := render(ctx, u.String())
	if err != nil {
		return nil, err
	}
	text, err := extractText([]byte(html), u)
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

func renderChrome(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(httpclient.DefaultUserAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
