package processors

import (
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

const piratedLauncherReason = "You appear to be using TLauncher, a launcher that distributes pirated copies of the game and is known to bundle malware. " +
	"We can't help with problems in this setup. Please buy the game and use the official launcher or a trusted one such as Prism Launcher."

// PiratedLauncher aborts analysis of logs produced by TLauncher.
func PiratedLauncher() pipeline.Processor {
	return pipeline.LogStage{
		ID: "pirated_launcher",
		At: pipeline.Earliest,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return l.Launcher != nil
		},
		Run: func(l *logs.Log) error {
			if strings.EqualFold(l.Launcher.Name, "TLauncher") {
				l.Abort(piratedLauncherReason)
			}
			return nil
		},
	}
}
