package parsers

import (
	"regexp"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

type launcherPattern struct {
	name string
	re   *regexp.Regexp
}

// Checked in order; group 1, when present, is the version.
var launcherPatterns = []launcherPattern{
	{"TLauncher", regexp.MustCompile(`(?i)(?:--versionType\s+)?\btlauncher\b(?:[ /-]v?(\d[\w.\-]*))?`)},
	{"Prism Launcher", regexp.MustCompile(`Prism Launcher version: (\S+)`)},
	{"PolyMC", regexp.MustCompile(`PolyMC version: (\S+)`)},
	{"MultiMC", regexp.MustCompile(`MultiMC version: (\S+)`)},
	{"ATLauncher", regexp.MustCompile(`ATLauncher(?: [Vv]ersion:?)? v?(\d[\w.\-]*)`)},
	{"Modrinth App", regexp.MustCompile(`(?i)(?:modrinth app|com\.modrinth\.theseus)(?:[ /]v?(\d[\w.\-]*))?`)},
	{"GDLauncher", regexp.MustCompile(`(?i)gdlauncher(?:[ /]v?(\d[\w.\-]*))?`)},
}

// Launcher records the first launcher that left a signature in the log.
func Launcher() pipeline.Parser {
	return pipeline.LogStage{
		ID: "launcher",
		At: pipeline.Earlier,
		Run: func(l *logs.Log) error {
			content := l.Content()
			for _, p := range launcherPatterns {
				m := p.re.FindStringSubmatch(content)
				if m == nil {
					continue
				}
				launcher := &logs.Launcher{Name: p.name}
				if len(m) > 1 {
					launcher.Version = m[1]
				}
				l.Launcher = launcher
				return nil
			}
			return nil
		},
	}
}
