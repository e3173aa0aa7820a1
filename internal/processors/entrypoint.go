package processors

import (
	"fmt"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

// EntrypointStageError reports the first mod entrypoint that failed to start.
func EntrypointStageError() pipeline.Processor {
	return pipeline.LogStage{
		ID: "entrypoint_stage_error",
		At: pipeline.Earlier,
		Run: func(l *logs.Log) error {
			m := entrypointError.FindStringSubmatch(l.Content())
			if m == nil {
				return nil
			}
			stage, modID, className := strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
			l.AddMessage(fmt.Sprintf("**Entrypoint %s provided by mod `%s` failed during startup**\n- `%s`", stage, modID, className))
			l.MarkProblem()
			return nil
		},
	}
}
