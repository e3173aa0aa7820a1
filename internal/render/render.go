// Package render formats reports as chat-style markdown sections and
// terminal output.
package render

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cozy-crashes/crashlens/internal/report"
)

const (
	// DescriptionLimit is the largest section body Sections produces.
	DescriptionLimit = 2048
	TitleLimit       = 256

	minChunk = 16
)

// Section is one titled block of output for a log.
type Section struct {
	Title  string
	Body   string
	Status report.Status
}

var titleCaser = cases.Title(language.English)

// Sections renders l into one or more sections, splitting the body at
// DescriptionLimit and numbering titles when it does.
func Sections(l report.Log) []Section {
	full := Header(l)
	if msgs := Messages(l); msgs != "" {
		full += "\n\n" + msgs
	}
	chunks := Chunk(full, DescriptionLimit)
	out := make([]Section, 0, len(chunks))
	for i, c := range chunks {
		title := l.Title
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s (%d/%d)", l.Title, i+1, len(chunks))
		}
		if utf8.RuneCountInString(title) > TitleLimit {
			title = string([]rune(title)[:TitleLimit-3]) + "..."
		}
		out = append(out, Section{Title: title, Body: c, Status: l.Status})
	}
	return out
}

// Header lists the environment, launcher, loaders and mod count.
func Header(l report.Log) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	// group writes non-empty entries followed by a blank line.
	group := func(entries ...[2]string) {
		wrote := false
		for _, e := range entries {
			if e[1] == "" {
				continue
			}
			line(e[0], e[1])
			wrote = true
		}
		if wrote {
			b.WriteByte('\n')
		}
	}

	mc := l.MinecraftVersion
	if mc == "" {
		mc = "Unknown"
	}
	env := l.Environment
	line("**__Environment Info__**")
	b.WriteByte('\n')
	line("**Minecraft Version:** `%s`", mc)
	group(
		[2]string{"**Java Version:** `%s`", env.JavaVersion},
		[2]string{"**JVM Version:** `%s`", env.JVMVersion},
	)
	group([2]string{"**Java Args:** `%s`", env.JVMArgs})
	group(
		[2]string{"**OS:** %s", env.OS},
		[2]string{"**CPU:** `%s`", env.CPU},
		[2]string{"**GPU:** `%s`", env.GPU},
		[2]string{"**System Memory:** `%s`", env.SystemMemory},
	)
	group(
		[2]string{"**Game Memory:** `%s`", env.GameMemory},
		[2]string{"**Shaderpack:** `%s`", env.Shaderpack},
	)

	if l.Launcher != nil {
		version := l.Launcher.Version
		if version == "" {
			version = "Unknown Version"
		}
		line("**Launcher:** %s (`%s`)", l.Launcher.Name, version)
		b.WriteByte('\n')
	}

	loaders := slices.Clone(l.Loaders)
	slices.SortFunc(loaders, func(a, b report.Loader) int { return strings.Compare(a.Kind, b.Kind) })
	for _, ld := range loaders {
		name := titleCaser.String(ld.Kind)
		if l.PluginPlatform {
			line("**Platform:** %s", name)
			line("**Version:** `%s`", ld.Version)
		} else {
			line("**Loader:** %s (`%s`)", name, ld.Version)
		}
	}

	items := "Mods"
	if l.PluginPlatform {
		items = "Plugins"
	}
	count := "None"
	if len(l.Mods) > 0 {
		count = fmt.Sprint(len(l.Mods))
	}
	line("**%s:** %s", items, count)
	return strings.TrimSpace(b.String())
}

// Messages is the messages block, or the abort notice for aborted logs.
// It is empty when there is nothing to say.
func Messages(l report.Log) string {
	aborted := l.Status == report.StatusAborted
	if !aborted && len(l.Messages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("__**Messages**__\n\n")
	if aborted {
		b.WriteString("__**Log parsing aborted**__\n")
		b.WriteString(l.AbortReason)
		b.WriteByte('\n')
	} else {
		for _, m := range l.Messages {
			b.WriteString(m)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Chunk splits content on line boundaries into pieces of at most limit
// runes. Lines longer than limit are cut with "..." markers. Limits below
// minChunk are raised to it.
func Chunk(content string, limit int) []string {
	limit = max(limit, minChunk)
	if utf8.RuneCountInString(content) <= limit {
		return []string{content}
	}
	const marker = "..."
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
			curLen = 0
		}
	}
	add := func(s string, n int) {
		cur.WriteString(s)
		cur.WriteByte('\n')
		curLen += n + 1
	}

	for _, line := range strings.Split(content, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n+1 <= limit {
			add(line, n)
			continue
		}
		flush()
		if n <= limit {
			add(line, n)
			continue
		}
		rest := []rune(line)
		split := limit - 10
		for len(rest) > limit {
			chunks = append(chunks, string(rest[:split])+marker)
			rest = append([]rune(marker), rest[split:]...)
		}
		if len(rest) > 0 {
			add(string(rest), len(rest))
		}
	}
	flush()
	return chunks
}

// Terminal writes every log of r to w, colouring titles by status.
func Terminal(w io.Writer, r report.Report) error {
	if len(r.Logs) == 0 {
		_, err := fmt.Fprintln(w, "No logs with anything to report.")
		return err
	}
	for i, l := range r.Logs {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		for _, s := range Sections(l) {
			title := statusColor(s.Status).Sprint(s.Title)
			if l.URL != "" {
				title += " " + l.URL
			}
			if _, err := fmt.Fprintf(w, "%s\n\n%s\n", title, s.Body); err != nil {
				return err
			}
		}
		for _, e := range l.Embeds {
			if _, err := fmt.Fprintf(w, "\n%s\n", Embed(e)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Embed renders an extra embed as a bold title, its description and one
// "name: value" line per field.
func Embed(e report.Embed) string {
	var b strings.Builder
	if e.Title != "" {
		b.WriteString(color.New(color.Bold).Sprint(e.Title))
		b.WriteByte('\n')
	}
	if e.Description != "" {
		b.WriteString(e.Description)
		b.WriteByte('\n')
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusColor(s report.Status) *color.Color {
	switch s {
	case report.StatusAborted:
		return color.New(color.FgRed, color.Bold)
	case report.StatusProblems:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgGreen, color.Bold)
}
