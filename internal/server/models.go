package server

import "github.com/cozy-crashes/crashlens/internal/pipeline"

type HTTPError struct {
	Error string `json:"error"`
}

// AnalyzeRequest is the body of POST /api/analyze. Content may contain any
// number of links; attachments are URLs analyzed alongside them.
type AnalyzeRequest struct {
	Content        string            `json:"content"`
	Attachments    []string          `json:"attachments"`
	Source         string            `json:"source"`
	Channel        string            `json:"channel"`
	Author         string            `json:"author"`
	Attributes     map[string]string `json:"attributes"`
	IncludeContent bool              `json:"include_content"`
}

func (r AnalyzeRequest) event() pipeline.Event {
	return pipeline.Event{
		Source:     r.Source,
		Channel:    r.Channel,
		Author:     r.Author,
		Attributes: r.Attributes,
	}
}

type StageInfo struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	Order      string `json:"order"`
}
