package processors

import (
	"fmt"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

const classNotFoundPrefix = "Caused by: java.lang.ClassNotFoundException:"

type scanState int

const (
	searchingForTrigger scanState = iota
	searchingForCorroboration
)

// FabricImpl flags Quilt logs where a mod entrypoint failed because a class
// from Fabric's implementation or mixin packages was missing.
func FabricImpl() pipeline.Processor {
	return pipeline.LogStage{
		ID: "quilt-fabric-impl",
		At: pipeline.Default,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return l.HasLoader(logs.LoaderQuilt)
		},
		Run: func(l *logs.Log) error {
			modID, className, ok := scanFabricInternals(strings.Split(l.Content(), "\n"))
			if !ok {
				return nil
			}
			l.MarkProblem()
			l.AddMessage(fmt.Sprintf("Mod `%s` may be using Fabric internals:\n`%s`", modID, className))
			return nil
		},
	}
}

// scanFabricInternals walks lines once. The trigger is the first entrypoint
// error; corroboration is the first ClassNotFoundException at a later line.
func scanFabricInternals(lines []string) (modID, className string, ok bool) {
	state := searchingForTrigger
	triggerLine := -1
	for i, line := range lines {
		switch state {
		case searchingForTrigger:
			if m := entrypointError.FindStringSubmatch(line); m != nil {
				modID = strings.TrimSpace(m[2])
				triggerLine = i
				state = searchingForCorroboration
			}
		case searchingForCorroboration:
			if i <= triggerLine || !strings.HasPrefix(line, classNotFoundPrefix) {
				continue
			}
			className = strings.TrimSpace(line[strings.LastIndex(line, "ClassNotFoundException:")+len("ClassNotFoundException:"):])
			return modID, className, isFabricInternal(className)
		}
	}
	return "", "", false
}

func isFabricInternal(className string) bool {
	return strings.Contains(className, ".fabricmc.") &&
		(strings.Contains(className, ".impl.") || strings.Contains(className, ".mixin."))
}
