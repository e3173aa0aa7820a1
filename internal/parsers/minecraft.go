package parsers

import (
	"regexp"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

var minecraftVersionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Loading Minecraft (\S+) with`),
	regexp.MustCompile(`Minecraft Version: (\S+)`),
	regexp.MustCompile(`--fml\.mcVersion,? ([^,\s\]]+)`),
	regexp.MustCompile(`\(MC: ([^)\s]+)\)`),
	regexp.MustCompile(`--version,? (\d+\.\d+(?:\.\d+)?)\b`),
}

func MinecraftVersion() pipeline.Parser {
	return pipeline.LogStage{
		ID: "minecraft_version",
		At: pipeline.Default,
		Run: func(l *logs.Log) error {
			if l.MinecraftVersion != nil {
				return nil
			}
			if raw := firstSubmatch(l.Content(), minecraftVersionPatterns...); raw != "" {
				v := logs.ParseVersion(raw)
				l.MinecraftVersion = &v
			}
			return nil
		},
	}
}
