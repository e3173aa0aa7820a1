package retrievers

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

// HTML downloads a paste page and keeps the readable text of it, for hosts
// without a raw endpoint.
type HTML struct {
	Client *httpclient.Client
}

func (HTML) Identifier() string    { return "html" }
func (HTML) Order() pipeline.Order { return pipeline.Later }

func (HTML) Applies(u *url.URL, _ pipeline.Event, snap *remoteconfig.Snapshot) bool {
	p, ok := snap.Pastebin(u)
	return ok && p.Mode == remoteconfig.ModeHTML
}

func (h HTML) Fetch(ctx context.Context, u *url.URL, _ *remoteconfig.Snapshot) ([]string, error) {
	page, err := h.Client.GetBytes(ctx, u.String(), map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	text, err := extractText(page, u)
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

// stripTags drops every element; script and style bodies go with them.
var stripTags = bluemonday.StrictPolicy()

// extractText keeps the readable text of page. Pages readability cannot
// make sense of, such as a bare <pre> block, fall back to the page with all
// tags removed.
func extractText(page []byte, u *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(page), u)
	if err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text, nil
		}
	}
	text := strings.TrimSpace(html.UnescapeString(stripTags.Sanitize(string(page))))
	if text != "" {
		return text, nil
	}
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return "", errEmptyContent
}
