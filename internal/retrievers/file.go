package retrievers

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

// File reads file:// links. Only the CLI registers it.
type File struct {
	MaxBytes int64
}

func (File) Identifier() string    { return "file" }
func (File) Order() pipeline.Order { return pipeline.Default }

func (File) Applies(u *url.URL, _ pipeline.Event, _ *remoteconfig.Snapshot) bool {
	return u != nil && u.Scheme == "file" && u.Path != ""
}

func (f File) Fetch(ctx context.Context, u *url.URL, _ *remoteconfig.Snapshot) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = httpclient.DefaultMaxBytes
	}
	fh, err := os.Open(u.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	data, err := io.ReadAll(io.LimitReader(fh, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Path, err)
	}
	data, err = maybeGunzip(data, limit)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}
