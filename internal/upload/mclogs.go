// Package upload shares log content on mclo.gs.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/httpclient"
)

const DefaultEndpoint = "https://api.mclo.gs"

var ErrEmptyContent = errors.New("upload: empty content")

// Result is a successful upload.
type Result struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	Raw string `json:"raw"`
}

// RejectedError is returned when mclo.gs answers with success=false.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "upload rejected: " + e.Reason
}

type Mclogs struct {
	Client   *httpclient.Client
	Endpoint string
}

func NewMclogs(client *httpclient.Client, endpoint string) *Mclogs {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Mclogs{Client: client, Endpoint: strings.TrimRight(endpoint, "/")}
}

type mclogsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Result
}

// Upload posts content and returns where it can be viewed.
func (m *Mclogs) Upload(ctx context.Context, content string) (Result, error) {
	if strings.TrimSpace(content) == "" {
		return Result{}, ErrEmptyContent
	}
	var resp mclogsResponse
	form := url.Values{"content": {content}}
	if err := m.Client.PostForm(ctx, m.Endpoint+"/1/log", form, &resp); err != nil {
		return Result{}, fmt.Errorf("upload to mclo.gs: %w", err)
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "unknown error"
		}
		return Result{}, &RejectedError{Reason: reason}
	}
	if resp.URL == "" {
		return Result{}, &RejectedError{Reason: "response without url"}
	}
	return resp.Result, nil
}
