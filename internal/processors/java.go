package processors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

// JavaVersion reports a Java runtime older than the Minecraft version needs.
func JavaVersion() pipeline.Processor {
	return pipeline.LogStage{
		ID: "java_version",
		At: pipeline.Default,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return l.MinecraftVersion != nil && l.MinecraftVersion.Valid() && l.Environment.JavaVersion != ""
		},
		Run: func(l *logs.Log) error {
			have, ok := javaMajor(l.Environment.JavaVersion)
			if !ok {
				return nil
			}
			need := RequiredJava(*l.MinecraftVersion)
			if have >= need {
				return nil
			}
			l.AddMessage(fmt.Sprintf(
				"**Java %d is too old for Minecraft %s**\nThis version of the game needs Java %d or newer.",
				have, l.MinecraftVersion, need))
			l.MarkProblem()
			return nil
		},
	}
}

// RequiredJava is the minimum Java major version for a Minecraft release.
// Pre-releases and release candidates share the floor of their release.
func RequiredJava(mc logs.Version) int {
	if !mc.Valid() {
		return 8
	}
	switch core := [3]int{mc.Major(), mc.Minor(), mc.Patch()}; {
	case releaseAtLeast(core, 1, 20, 5):
		return 21
	case releaseAtLeast(core, 1, 18, 0):
		return 17
	case releaseAtLeast(core, 1, 17, 0):
		return 16
	}
	return 8
}

func releaseAtLeast(core [3]int, major, minor, patch int) bool {
	want := [3]int{major, minor, patch}
	for i := range core {
		if core[i] != want[i] {
			return core[i] > want[i]
		}
	}
	return true
}

// javaMajor reads "17.0.8", "21" or the legacy "1.8.0_381" form.
func javaMajor(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, " ,"); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(raw, ".")
	major, err := strconv.Atoi(strings.TrimSuffix(parts[0], "-ea"))
	if err != nil {
		return 0, false
	}
	if major == 1 && len(parts) > 1 {
		major, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, false
		}
	}
	return major, true
}
