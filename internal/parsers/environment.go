package parsers

import (
	"regexp"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

var (
	javaVersionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Java Version: ([^,\n]+)`),
		regexp.MustCompile(`Java is version ([^,\s]+)`),
	}
	jvmVersionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Java VM Version: (.+)$`),
	}
	jvmArgsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)JVM Flags: \d+ total; (.+)$`),
	}
	osPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Operating System: (.+)$`),
	}
	cpuPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Processor Name: (.+)$`),
		regexp.MustCompile(`(?m)CPU: \d+x (.+)$`),
	}
	gpuPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Graphics card #0 name: (.+)$`),
		regexp.MustCompile(`(?m)GL info: (.+?) GL version`),
	}
	systemMemoryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Physical memory \(MiB\): (\d+)`),
	}
	gameMemoryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Memory: .*up to \d+ bytes \((\d+ MiB)\)`),
	}
	shaderpackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)(?:Using|Loaded) shaderpack:? (.+)$`),
	}
)

// Environment extracts the Java and machine details most crash reports carry.
func Environment() pipeline.Parser {
	return pipeline.LogStage{
		ID: "environment",
		At: pipeline.Default,
		Run: func(l *logs.Log) error {
			c := l.Content()
			env := &l.Environment
			env.SetJavaVersion(firstSubmatch(c, javaVersionPatterns...))
			env.SetJVMVersion(firstSubmatch(c, jvmVersionPatterns...))
			env.SetJVMArgs(firstSubmatch(c, jvmArgsPatterns...))
			env.SetOS(firstSubmatch(c, osPatterns...))
			env.SetCPU(firstSubmatch(c, cpuPatterns...))
			env.SetGPU(firstSubmatch(c, gpuPatterns...))
			if mib := firstSubmatch(c, systemMemoryPatterns...); mib != "" {
				env.SetSystemMemory(mib + " MiB")
			}
			env.SetGameMemory(firstSubmatch(c, gameMemoryPatterns...))
			env.SetShaderpack(firstSubmatch(c, shaderpackPatterns...))
			return nil
		},
	}
}
