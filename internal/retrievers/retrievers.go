// Package retrievers holds the built-in retrieval stages.
package retrievers

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

// Deps carries what the built-in retrievers need.
type Deps struct {
	Client         *httpclient.Client
	Logger         *zap.Logger
	Cache          BodyCache
	CacheTTL       time.Duration
	BrowserEnabled bool
	BrowserTimeout time.Duration
	MaxBytes       int64
	GistAPI        string
}

// RegisterDefaults registers attachment, pastebin, gist, html and browser
// retrievers. Network retrievers are wrapped with the body cache when one is
// configured. The first registration error is returned.
func RegisterDefaults(p *pipeline.Pipeline, deps Deps) error {
	if deps.Client == nil {
		deps.Client = httpclient.New(0, 2, 0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	stages := []pipeline.Retriever{
		Attachment{Client: deps.Client, MaxBytes: deps.MaxBytes},
		Pastebin{Client: deps.Client},
		Gist{Client: deps.Client, API: deps.GistAPI},
		HTML{Client: deps.Client},
		&Browser{Enabled: deps.BrowserEnabled, Timeout: deps.BrowserTimeout},
	}
	for _, s := range stages {
		if deps.Cache != nil {
			s = Cache(s, deps.Cache, deps.CacheTTL, deps.Logger)
		}
		if err := p.Retrievers().Register(s); err != nil {
			return err
		}
	}
	return nil
}

var errEmptyContent = errors.New("no text content")

func hasAnySuffix(s string, suffixes ...string) bool {
	s = strings.ToLower(s)
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// maybeGunzip inflates data when it carries the gzip magic bytes.
func maybeGunzip(data []byte, limit int64) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer zr.Close()
	if limit <= 0 {
		limit = httpclient.DefaultMaxBytes
	}
	out, err := io.ReadAll(io.LimitReader(zr, limit))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}

func isHTTP(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https")
}
