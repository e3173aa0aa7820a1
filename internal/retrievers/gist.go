package retrievers

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

const DefaultGistAPI = "https://api.github.com"

// Gist returns one body per file of a GitHub gist, ordered by file name.
type Gist struct {
	Client *httpclient.Client
	API    string
}

type gistFile struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

type gistResponse struct {
	Files map[string]gistFile `json:"files"`
}

func (Gist) Identifier() string    { return "gist" }
func (Gist) Order() pipeline.Order { return pipeline.Default }

func (Gist) Applies(u *url.URL, _ pipeline.Event, _ *remoteconfig.Snapshot) bool {
	return isHTTP(u) && strings.EqualFold(u.Hostname(), "gist.github.com") && gistID(u) != ""
}

func (g Gist) Fetch(ctx context.Context, u *url.URL, _ *remoteconfig.Snapshot) ([]string, error) {
	id := gistID(u)
	if id == "" {
		return nil, fmt.Errorf("no gist id in %s", u)
	}
	api := strings.TrimRight(g.API, "/")
	if api == "" {
		api = DefaultGistAPI
	}
	var resp gistResponse
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if err := g.Client.DoJSON(ctx, "GET", api+"/gists/"+url.PathEscape(id), headers, nil, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Files))
	for name := range resp.Files {
		names = append(names, name)
	}
	slices.Sort(names)

	bodies := make([]string, 0, len(names))
	for _, name := range names {
		f := resp.Files[name]
		content := f.Content
		if f.Truncated && f.RawURL != "" {
			full, err := g.Client.GetText(ctx, f.RawURL, nil)
			if err != nil {
				return nil, fmt.Errorf("gist file %s: %w", name, err)
			}
			content = full
		}
		bodies = append(bodies, content)
	}
	return bodies, nil
}

// gistID accepts /<user>/<id> and /<id>, ignoring /raw and revision suffixes.
func gistID(u *url.URL) string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) >= 2 && parts[0] != "":
		return parts[1]
	case len(parts) == 1:
		return parts[0]
	}
	return ""
}
