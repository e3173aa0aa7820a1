package remoteconfig

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
)

// Source loads the raw config document.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
	String() string
}

// HTTPSource reads the document from an http(s) URL.
type HTTPSource struct {
	URL    string
	Client *httpclient.Client
}

func (s HTTPSource) Load(ctx context.Context) ([]byte, error) {
	return s.Client.GetBytes(ctx, s.URL, map[string]string{"Accept": "application/yaml, text/plain"})
}

func (s HTTPSource) String() string { return s.URL }

// FileSource reads the document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path)
}

func (s FileSource) String() string {
	if filepath.IsAbs(s.Path) {
		return "file://" + s.Path
	}
	return "file:" + s.Path
}

// filePath resolves file URLs. "file:./x" and "file://dir/x" are relative to
// the working directory; "file:///x" and "file://localhost/x" are absolute.
func filePath(u *url.URL) string {
	switch {
	case u.Opaque != "":
		return u.Opaque
	case u.Host != "" && u.Host != "localhost":
		return filepath.Join(u.Host, u.Path)
	}
	return u.Path
}

// NewSource picks a source for location: http(s) URLs, file:// URLs or plain paths.
func NewSource(location string, client *httpclient.Client) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("remote config location is empty")
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("remote config location: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if client == nil {
			client = httpclient.New(0, 2, 0)
		}
		return HTTPSource{URL: location, Client: client}, nil
	case "file":
		return FileSource{Path: filePath(u)}, nil
	case "":
		return FileSource{Path: location}, nil
	default:
		return nil, fmt.Errorf("unsupported remote config scheme %q", u.Scheme)
	}
}
