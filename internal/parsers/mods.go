package parsers

import (
	"regexp"
	"strings"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
)

var (
	fabricModsHeader = regexp.MustCompile(`Loading \d+ mods:\s*$`)
	fabricModEntry   = regexp.MustCompile(`^\s*- (\S+) (\S+)`)
	fabricModChild   = regexp.MustCompile(`^\s*[|\\]--`)
	quiltTableRow    = regexp.MustCompile(`^\|\s*\d+\s*\|`)
	forgeModRow      = regexp.MustCompile(`^\s*(\S+\.jar)\s*\|([^|]+)\|([^|]+)\|([^|]+)\|`)
	pluginPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`Loading server plugin (\S+) v(\S+)`),
		regexp.MustCompile(`Loaded plugin (\S+) version (\S+) by`),
		regexp.MustCompile(`Loaded plugin (\S+) (\S+) by`),
	}
)

func hasAnyLoader(l *logs.Log, kinds ...logs.LoaderKind) bool {
	for _, k := range kinds {
		if l.HasLoader(k) {
			return true
		}
	}
	return false
}

// FabricMods reads the top-level entries of the "Loading N mods:" list.
// Nested jar-in-jar entries are skipped.
func FabricMods() pipeline.Parser {
	return pipeline.LogStage{
		ID: "fabric_mods",
		At: pipeline.Later,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return hasAnyLoader(l, logs.LoaderFabric)
		},
		Run: func(l *logs.Log) error {
			lines := strings.Split(l.Content(), "\n")
			start := -1
			for i, line := range lines {
				if fabricModsHeader.MatchString(line) {
					start = i + 1
					break
				}
			}
			if start < 0 {
				return nil
			}
			for _, line := range lines[start:] {
				if m := fabricModEntry.FindStringSubmatch(line); m != nil {
					l.AddMod(logs.Mod{Name: m[1], Version: m[2]})
					continue
				}
				if fabricModChild.MatchString(line) {
					continue
				}
				break
			}
			return nil
		},
	}
}

// QuiltMods reads the mod table Quilt Loader prints at start-up. Columns are
// located by header name.
func QuiltMods() pipeline.Parser {
	return pipeline.LogStage{
		ID: "quilt_mods",
		At: pipeline.Later,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return hasAnyLoader(l, logs.LoaderQuilt)
		},
		Run: func(l *logs.Log) error {
			columns := map[string]int{}
			for _, line := range strings.Split(l.Content(), "\n") {
				line = trimLogPrefix(line)
				if !strings.HasPrefix(line, "|") {
					continue
				}
				cells := splitRow(line)
				if len(columns) == 0 {
					if len(cells) > 0 && strings.EqualFold(cells[0], "Index") {
						for i, c := range cells {
							columns[strings.ToLower(c)] = i
						}
					}
					continue
				}
				if !quiltTableRow.MatchString(line) {
					continue
				}
				id, ok := cell(cells, columns, "id")
				if !ok {
					continue
				}
				version, _ := cell(cells, columns, "version")
				mod := logs.Mod{Name: id, Version: version}
				if name, ok := cell(cells, columns, "mod"); ok && name != "" {
					mod.Metadata = map[string]string{"display_name": name}
				}
				l.AddMod(mod)
			}
			return nil
		},
	}
}

// trimLogPrefix drops a "[time] [thread/LEVEL]: " prefix when the table row
// was printed through the logger.
func trimLogPrefix(line string) string {
	if i := strings.Index(line, "]: |"); i >= 0 {
		return line[i+3:]
	}
	return strings.TrimSpace(line)
}

func splitRow(line string) []string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func cell(cells []string, columns map[string]int, name string) (string, bool) {
	i, ok := columns[name]
	if !ok || i >= len(cells) {
		return "", false
	}
	return cells[i], true
}

// ForgeMods reads the "Mod List:" section of Forge and NeoForge crash reports.
func ForgeMods() pipeline.Parser {
	return pipeline.LogStage{
		ID: "forge_mods",
		At: pipeline.Later,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return hasAnyLoader(l, logs.LoaderForge, logs.LoaderNeoForge)
		},
		Run: func(l *logs.Log) error {
			inList := false
			for _, line := range strings.Split(l.Content(), "\n") {
				if !inList {
					inList = strings.Contains(line, "Mod List:")
					continue
				}
				m := forgeModRow.FindStringSubmatch(line)
				if m == nil {
					if strings.TrimSpace(line) == "" {
						continue
					}
					break
				}
				l.AddMod(logs.Mod{
					Name:    strings.TrimSpace(m[3]),
					Version: strings.TrimSpace(m[4]),
					Metadata: map[string]string{
						"file":         m[1],
						"display_name": strings.TrimSpace(m[2]),
					},
				})
			}
			return nil
		},
	}
}

// Plugins lists server and proxy plugins as mods.
func Plugins() pipeline.Parser {
	return pipeline.LogStage{
		ID: "plugins",
		At: pipeline.Later,
		When: func(l *logs.Log, _ pipeline.Event) bool {
			return l.IsPluginPlatform()
		},
		Run: func(l *logs.Log) error {
			for _, line := range strings.Split(l.Content(), "\n") {
				for _, re := range pluginPatterns {
					if m := re.FindStringSubmatch(line); m != nil {
						l.AddMod(logs.Mod{Name: m[1], Version: m[2]})
						break
					}
				}
			}
			return nil
		},
	}
}
