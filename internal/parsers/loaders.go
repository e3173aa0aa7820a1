package parsers

import (
	"regexp"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

var (
	quiltFabricLoader = regexp.MustCompile(`with (Quilt|Fabric) Loader (\S+)`)
	fabricCrashLoader = regexp.MustCompile(`(?m)^\s*fabricloader: Fabric Loader (\S+)`)
	forgeArg          = regexp.MustCompile(`--fml\.forgeVersion,? ([^,\s\]]+)`)
	forgeBanner       = regexp.MustCompile(`MinecraftForge v(\S+)`)
	neoForgeArg       = regexp.MustCompile(`--fml\.neoForgeVersion,? ([^,\s\]]+)`)
	paperVersion      = regexp.MustCompile(`running (Paper|Purpur) version (\S+)`)
	craftBukkit       = regexp.MustCompile(`running CraftBukkit version (\S+)`)
	velocityBoot      = regexp.MustCompile(`Booting up Velocity (\S+)`)
	bungeeEnabled     = regexp.MustCompile(`Enabled (BungeeCord|Waterfall) version (\S+)`)
)

// Loaders detects every mod loader and server platform with its version.
func Loaders() pipeline.Parser {
	return pipeline.LogStage{
		ID:  "loaders",
		At:  pipeline.Earlier,
		Run: detectLoaders,
	}
}

func detectLoaders(l *logs.Log) error {
	content := l.Content()
	set := func(kind logs.LoaderKind, raw string) {
		l.SetLoader(kind, logs.ParseVersion(strings.TrimSpace(raw)))
	}

	if m := quiltFabricLoader.FindStringSubmatch(content); m != nil {
		if m[1] == "Quilt" {
			set(logs.LoaderQuilt, m[2])
		} else {
			set(logs.LoaderFabric, m[2])
		}
	} else if v := firstSubmatch(content, fabricCrashLoader); v != "" {
		set(logs.LoaderFabric, v)
	}

	if v := firstSubmatch(content, neoForgeArg); v != "" {
		set(logs.LoaderNeoForge, v)
	} else if v := firstSubmatch(content, forgeArg, forgeBanner); v != "" {
		set(logs.LoaderForge, v)
	}

	if m := paperVersion.FindStringSubmatch(content); m != nil {
		if m[1] == "Purpur" {
			set(logs.LoaderPurpur, m[2])
		} else {
			set(logs.LoaderPaper, m[2])
		}
	}
	if v := firstSubmatch(content, craftBukkit); v != "" {
		if strings.Contains(strings.ToLower(v), "spigot") {
			set(logs.LoaderSpigot, v)
		} else {
			set(logs.LoaderBukkit, v)
		}
	}
	if v := firstSubmatch(content, velocityBoot); v != "" {
		set(logs.LoaderVelocity, v)
	}
	if m := bungeeEnabled.FindStringSubmatch(content); m != nil {
		if m[1] == "Waterfall" {
			set(logs.LoaderWaterfall, m[2])
		} else {
			set(logs.LoaderBungeeCord, m[2])
		}
	}
	return nil
}
