// Package logs holds the fact model every pipeline stage reads and writes.
package logs

import (
	"net/url"
	"slices"
)

// Environment describes the machine and runtime a log came from.
// Empty fields are unknown.
type Environment struct {
	JavaVersion  string
	JVMVersion   string
	JVMArgs      string
	OS           string
	CPU          string
	GPU          string
	SystemMemory string
	GameMemory   string
	Shaderpack   string
}

// Launcher identifies the launcher that produced a log.
type Launcher struct {
	Name    string
	Version string
}

// Mod is one entry of a mod or plugin list.
type Mod struct {
	Name     string
	Version  string
	Metadata map[string]string
}

// Embed is supplementary output attached by a processor.
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// EmbedFunc fills an Embed. The pipeline never calls it.
type EmbedFunc func(*Embed)

// Log is the record built for one raw text body. Content is fixed at
// construction; flags only ever move from false to true.
type Log struct {
	content string
	url     *url.URL

	Environment      Environment
	Launcher         *Launcher
	MinecraftVersion *Version

	loaders     []LoaderEntry
	mods        []Mod
	messages    []string
	extraEmbeds []EmbedFunc

	hasProblems bool
	aborted     bool
	abortReason string
}

// New creates a Log for content fetched from u (u may be nil).
func New(content string, u *url.URL) *Log {
	return &Log{content: content, url: u}
}

func (l *Log) Content() string { return l.content }

func (l *Log) URL() *url.URL { return l.url }

// Source returns the origin URL as a string, or "" when unknown.
func (l *Log) Source() string {
	if l.url == nil {
		return ""
	}
	return l.url.String()
}

// SetLoader records a detected loader. A kind seen before keeps its position
// and gets the new version.
func (l *Log) SetLoader(kind LoaderKind, version Version) {
	for i := range l.loaders {
		if l.loaders[i].Kind == kind {
			l.loaders[i].Version = version
			return
		}
	}
	l.loaders = append(l.loaders, LoaderEntry{Kind: kind, Version: version})
}

// Loader returns the version of kind when it was detected.
func (l *Log) Loader(kind LoaderKind) (Version, bool) {
	for _, e := range l.loaders {
		if e.Kind == kind {
			return e.Version, true
		}
	}
	return Version{}, false
}

func (l *Log) HasLoader(kind LoaderKind) bool {
	_, ok := l.Loader(kind)
	return ok
}

// Loaders returns the detected loaders in detection order.
func (l *Log) Loaders() []LoaderEntry { return slices.Clone(l.loaders) }

// IsPluginPlatform reports whether any detected loader is a plugin platform.
func (l *Log) IsPluginPlatform() bool {
	for _, e := range l.loaders {
		if e.Kind.IsPluginPlatform() {
			return true
		}
	}
	return false
}

func (l *Log) AddMod(m Mod) { l.mods = append(l.mods, m) }

func (l *Log) Mods() []Mod { return slices.Clone(l.mods) }

func (l *Log) AddMessage(msg string) { l.messages = append(l.messages, msg) }

func (l *Log) Messages() []string { return slices.Clone(l.messages) }

func (l *Log) AddEmbed(fn EmbedFunc) {
	if fn != nil {
		l.extraEmbeds = append(l.extraEmbeds, fn)
	}
}

func (l *Log) ExtraEmbeds() []EmbedFunc { return slices.Clone(l.extraEmbeds) }

// MarkProblem flags the log as having at least one problem.
func (l *Log) MarkProblem() { l.hasProblems = true }

func (l *Log) HasProblems() bool { return l.hasProblems }

// Abort stops the remaining stages of the current kind. Only the first
// reason is kept.
func (l *Log) Abort(reason string) {
	if l.aborted {
		return
	}
	l.aborted = true
	l.abortReason = reason
}

func (l *Log) Aborted() bool { return l.aborted }

func (l *Log) AbortReason() string { return l.abortReason }

// SetJavaVersion and friends only fill unknown fields; the first parser to
// see a value wins.
func (e *Environment) SetJavaVersion(v string)  { setOnce(&e.JavaVersion, v) }
func (e *Environment) SetJVMVersion(v string)   { setOnce(&e.JVMVersion, v) }
func (e *Environment) SetJVMArgs(v string)      { setOnce(&e.JVMArgs, v) }
func (e *Environment) SetOS(v string)           { setOnce(&e.OS, v) }
func (e *Environment) SetCPU(v string)          { setOnce(&e.CPU, v) }
func (e *Environment) SetGPU(v string)          { setOnce(&e.GPU, v) }
func (e *Environment) SetSystemMemory(v string) { setOnce(&e.SystemMemory, v) }
func (e *Environment) SetGameMemory(v string)   { setOnce(&e.GameMemory, v) }
func (e *Environment) SetShaderpack(v string)   { setOnce(&e.Shaderpack, v) }

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
