// Package parsers holds the built-in parsing stages. Each one reads the log
// content and fills in part of the fact model.
package parsers

import (
	"regexp"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

// Defaults returns the built-in parsers in registration order.
func Defaults() []pipeline.Parser {
	return []pipeline.Parser{
		ContentGuard(),
		Launcher(),
		Loaders(),
		MinecraftVersion(),
		Environment(),
		FabricMods(),
		QuiltMods(),
		ForgeMods(),
		Plugins(),
	}
}

// RegisterDefaults registers Defaults on p and returns the first error.
func RegisterDefaults(p *pipeline.Pipeline) error {
	for _, s := range Defaults() {
		if err := p.Parsers().Register(s); err != nil {
			return err
		}
	}
	return nil
}

// firstSubmatch returns the trimmed group 1 of the first pattern that matches.
func firstSubmatch(content string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(content); len(m) > 1 {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}
