// Package processors holds the built-in diagnostic rules.
package processors

import (
	"regexp"

	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

// Defaults returns the built-in processors in registration order.
func Defaults() []pipeline.Processor {
	return []pipeline.Processor{
		PiratedLauncher(),
		EntrypointStageError(),
		UnsupportedLoaderPlugins(),
		FabricImpl(),
		JavaVersion(),
	}
}

func RegisterDefaults(p *pipeline.Pipeline) error {
	for _, s := range Defaults() {
		if err := p.Processors().Register(s); err != nil {
			return err
		}
	}
	return nil
}

// entrypointError captures stage, providing mod id and class.
var entrypointError = regexp.MustCompile(`(?i)Could not execute entrypoint stage '(.+?)' due to errors, provided by '(.+?)' at '(.+?)'!`)
