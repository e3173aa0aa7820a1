package parsers

import (
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

const binaryReason = "This file contains binary data and does not look like a log. Please upload the plain text log instead."

// ContentGuard aborts logs that are not text.
func ContentGuard() pipeline.Parser {
	return pipeline.LogStage{
		ID: "content_guard",
		At: pipeline.Earliest,
		Run: func(l *logs.Log) error {
			if strings.ContainsRune(l.Content(), 0) {
				l.Abort(binaryReason)
			}
			return nil
		},
	}
}
