package retrievers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

// Pastebin fetches the raw form of pastes listed in the config snapshot.
type Pastebin struct {
	Client *httpclient.Client
}

func (Pastebin) Identifier() string    { return "pastebin" }
func (Pastebin) Order() pipeline.Order { return pipeline.Default }

func (Pastebin) Applies(u *url.URL, _ pipeline.Event, snap *remoteconfig.Snapshot) bool {
	p, ok := snap.Pastebin(u)
	return ok && p.Mode == remoteconfig.ModeRaw && p.RawURL(u) != ""
}

func (p Pastebin) Fetch(ctx context.Context, u *url.URL, snap *remoteconfig.Snapshot) ([]string, error) {
	entry, ok := snap.Pastebin(u)
	if !ok {
		return nil, fmt.Errorf("no pastebin entry for %s", u)
	}
	body, err := p.Client.GetText(ctx, entry.RawURL(u), map[string]string{"Accept": "text/plain"})
	if err != nil {
		return nil, err
	}
	return []string{body}, nil
}
