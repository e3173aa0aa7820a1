package processors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

var unsupportedLoaderPlugin = regexp.MustCompile(`(?i)Could not load plugin '(.+?)' as it is not marked as supporting (\w+)!`)

// UnsupportedLoaderPlugins reports every plugin the platform refused to load
// because it does not declare support for it.
func UnsupportedLoaderPlugins() pipeline.Processor {
	return pipeline.LogStage{
		ID: "unsupported_loader_plugins",
		At: pipeline.Earlier,
		Run: func(l *logs.Log) error {
			for _, m := range unsupportedLoaderPlugin.FindAllStringSubmatch(l.Content(), -1) {
				plugin, loader := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
				l.AddMessage(fmt.Sprintf(
					"**Plugin `%s` is not marked as supporting `%s`.**\nThis plugin must explicitly declare support for `%s` or be updated.",
					plugin, loader, loader))
				l.MarkProblem()
			}
			return nil
		},
	}
}
