package retrievers

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

// AttachmentHosts serve uploaded files under /attachments/.
var AttachmentHosts = []string{"cdn.discordapp.com", "media.discordapp.net"}

// Attachment downloads plain log files, inflating gzipped ones.
type Attachment struct {
	Client   *httpclient.Client
	MaxBytes int64
}

func (Attachment) Identifier() string    { return "attachment" }
func (Attachment) Order() pipeline.Order { return pipeline.Default }

func (Attachment) Applies(u *url.URL, _ pipeline.Event, snap *remoteconfig.Snapshot) bool {
	if !isHTTP(u) {
		return false
	}
	if _, ok := snap.Pastebin(u); ok {
		return false
	}
	if hasAnySuffix(u.Path, ".log", ".txt", ".log.gz") {
		return true
	}
	return slices.Contains(AttachmentHosts, strings.ToLower(u.Hostname())) &&
		strings.HasPrefix(u.Path, "/attachments/") && !hasAnySuffix(u.Path, ".png", ".jpg", ".jpeg", ".gif", ".webp", ".mp4", ".zip", ".jar")
}

func (a Attachment) Fetch(ctx context.Context, u *url.URL, _ *remoteconfig.Snapshot) ([]string, error) {
	data, err := a.Client.GetBytes(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	data, err = maybeGunzip(data, a.MaxBytes)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}
