// Package report turns analyzed logs into JSON-ready values for callers.
package report

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cozy-crashes/crashlens/internal/logs"
)

// Status summarises a log for display.
type Status string

const (
	StatusOK       Status = "ok"
	StatusProblems Status = "problems"
	StatusAborted  Status = "aborted"
)

type Report struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source,omitempty"`
	Logs      []Log     `json:"logs"`
	// Skipped counts logs that were analyzed but had nothing to report.
	Skipped int `json:"skipped"`
}

type Log struct {
	URL              string      `json:"url,omitempty"`
	Title            string      `json:"title"`
	Status           Status      `json:"status"`
	MinecraftVersion string      `json:"minecraft_version,omitempty"`
	Environment      Environment `json:"environment"`
	Launcher         *Launcher   `json:"launcher,omitempty"`
	Loaders          []Loader    `json:"loaders,omitempty"`
	Mods             []Mod       `json:"mods,omitempty"`
	PluginPlatform   bool        `json:"plugin_platform"`
	Messages         []string    `json:"messages,omitempty"`
	Embeds           []Embed     `json:"embeds,omitempty"`
	AbortReason      string      `json:"abort_reason,omitempty"`
	Content          string      `json:"content,omitempty"`
}

type Environment struct {
	JavaVersion  string `json:"java_version,omitempty"`
	JVMVersion   string `json:"jvm_version,omitempty"`
	JVMArgs      string `json:"jvm_args,omitempty"`
	OS           string `json:"os,omitempty"`
	CPU          string `json:"cpu,omitempty"`
	GPU          string `json:"gpu,omitempty"`
	SystemMemory string `json:"system_memory,omitempty"`
	GameMemory   string `json:"game_memory,omitempty"`
	Shaderpack   string `json:"shaderpack,omitempty"`
}

type Launcher struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type Loader struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

type Mod struct {
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Interesting reports whether a log is worth showing: it was aborted, has
// problems or messages, or at least a Minecraft version or mods were found.
func Interesting(l *logs.Log) bool {
	return l.Aborted() ||
		l.HasProblems() ||
		len(l.Messages()) > 0 ||
		l.MinecraftVersion != nil ||
		len(l.Mods()) > 0
}

// New builds a report holding the interesting logs among analyzed.
func New(source string, analyzed []*logs.Log, now time.Time) Report {
	r := Report{
		ID:        uuid.New(),
		CreatedAt: now.UTC(),
		Source:    source,
		Logs:      []Log{},
	}
	for _, l := range analyzed {
		if !Interesting(l) {
			r.Skipped++
			continue
		}
		r.Logs = append(r.Logs, FromLog(l))
	}
	return r
}

// FromLog copies every fact of l, evaluating its extra embeds.
func FromLog(l *logs.Log) Log {
	out := Log{
		URL:            l.Source(),
		Title:          Title(l),
		Status:         StatusOf(l),
		PluginPlatform: l.IsPluginPlatform(),
		Messages:       l.Messages(),
		AbortReason:    l.AbortReason(),
		Content:        l.Content(),
		Environment:    Environment(l.Environment),
	}
	if l.MinecraftVersion != nil {
		out.MinecraftVersion = l.MinecraftVersion.String()
	}
	if l.Launcher != nil {
		out.Launcher = &Launcher{Name: l.Launcher.Name, Version: l.Launcher.Version}
	}
	for _, e := range l.Loaders() {
		out.Loaders = append(out.Loaders, Loader{Kind: string(e.Kind), Version: e.Version.String()})
	}
	for _, m := range l.Mods() {
		out.Mods = append(out.Mods, Mod{Name: m.Name, Version: m.Version, Metadata: m.Metadata})
	}
	for _, fn := range l.ExtraEmbeds() {
		var e logs.Embed
		fn(&e)
		embed := Embed{Title: e.Title, Description: e.Description}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, EmbedField(f))
		}
		out.Embeds = append(out.Embeds, embed)
	}
	return out
}

func StatusOf(l *logs.Log) Status {
	switch {
	case l.Aborted():
		return StatusAborted
	case l.HasProblems():
		return StatusProblems
	}
	return StatusOK
}

// Title is "Crash Log" or "Log File" with a status suffix.
func Title(l *logs.Log) string {
	base := "Log File"
	if content := l.Content(); strings.HasPrefix(content, "---- Crashed! ----") ||
		strings.HasPrefix(content, "---- Minecraft Crash Report ----") {
		base = "Crash Log"
	}
	switch StatusOf(l) {
	case StatusAborted:
		return base + ": Aborted"
	case StatusProblems:
		return base + ": Problems Found"
	}
	return base
}

// WithoutContent returns a copy of r with log bodies removed.
func (r Report) WithoutContent() Report {
	out := r
	out.Logs = make([]Log, len(r.Logs))
	for i, l := range r.Logs {
		l.Content = ""
		out.Logs[i] = l
	}
	return out
}
