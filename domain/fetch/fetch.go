// Package fetch defines the narrow, typed contract around the external
// media fetch tool. The tool itself is a black-box subprocess; this
// package owns everything deterministic about talking to it: argument
// profiles, progress-line parsing, filename sanitization and output
// path reconstruction. The subprocess handling lives in adapters/ytdlp.
package fetch

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Request describes one item handed to the fetch tool (value type).
type Request struct {
	URL      string
	TargetID string // stable id, part of the output filename
	Name     string // human title, sanitized before use
	Format   string // "mp3", "m4a", "mp4", "mkv", ...
	Quality  string // "audio", "720", "1080", "best"
}

// progressRe matches a percentage token inside a noisy progress line,
// e.g. "[download]  42.7% of 10.3MiB at 1.2MiB/s".
var progressRe = regexp.MustCompile(`(?:^|\s)(\d{1,3}(?:\.\d+)?)%`)

// alreadyDownloaded is the tool's marker for a file it has fetched
// before; it terminates the progress stream without a 100% line.
const alreadyDownloaded = "has already been downloaded"

// ParseProgressLine extracts a percentage from one line of tool output.
// The "already downloaded" terminal signal reports as 100%. Values are
// clamped to [0,100]. The bool is false for lines with no progress
// information.
// This is a PURE function.
func ParseProgressLine(line string) (float64, bool) {
	if strings.Contains(line, alreadyDownloaded) {
		return 100, true
	}
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// destinationRe matches the tool's announcement of its output file.
var destinationRe = regexp.MustCompile(`Destination:\s+(.+)$`)

// mergeRe matches the merger's announcement when separate streams are
// combined into a container.
var mergeRe = regexp.MustCompile(`Merging formats into "(.+)"`)

// ParseFinalPath extracts the output file path from a line of tool
// output, if the line announces one.
// This is a PURE function.
func ParseFinalPath(line string) (string, bool) {
	if m := mergeRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := destinationRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// audioFormats are formats requested via audio extraction.
var audioFormats = map[string]bool{
	"mp3": true, "m4a": true, "opus": true, "flac": true, "wav": true,
}

// IsAudio reports whether a requested format implies audio extraction.
// This is a PURE function.
func IsAudio(format string) bool {
	return audioFormats[strings.ToLower(format)]
}

// Args builds the subprocess argument vector for a request. Three
// profiles exist: audio extraction, capped-resolution video merge, and
// maximum-available-resolution merge. --newline forces line-buffered
// progress output so the adapter can scan it.
// This is a PURE function.
func Args(req Request, outputDir string) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-warnings",
		"-o", OutputTemplate(outputDir, req),
	}

	switch {
	case IsAudio(req.Format):
		args = append(args,
			"-x",
			"--audio-format", strings.ToLower(req.Format),
			"--audio-quality", "0",
		)
	case req.Quality == "" || strings.EqualFold(req.Quality, "best"):
		args = append(args,
			"-f", "bestvideo+bestaudio/best",
			"--merge-output-format", containerFor(req.Format),
		)
	default:
		args = append(args,
			"-f", "bestvideo[height<="+req.Quality+"]+bestaudio/best[height<="+req.Quality+"]",
			"--merge-output-format", containerFor(req.Format),
		)
	}

	return append(args, req.URL)
}

// containerFor maps a requested video format to a merge container,
// defaulting to mp4.
func containerFor(format string) string {
	switch strings.ToLower(format) {
	case "mkv", "webm", "mp4":
		return strings.ToLower(format)
	default:
		return "mp4"
	}
}

// OutputTemplate is the -o value: sanitized name plus target id keeps
// filenames unique within a batch without trusting remote titles.
// This is a PURE function.
func OutputTemplate(outputDir string, req Request) string {
	return filepath.Join(outputDir, baseName(req)+".%(ext)s")
}

// OutputPath reconstructs the expected output file path for a request.
// Used when the tool exits without announcing where it wrote; packing
// still needs to locate the file.
// This is a PURE function.
func OutputPath(outputDir string, req Request) string {
	ext := containerFor(req.Format)
	if IsAudio(req.Format) {
		ext = strings.ToLower(req.Format)
	}
	return filepath.Join(outputDir, baseName(req)+"."+ext)
}

func baseName(req Request) string {
	name := SanitizeName(req.Name)
	if req.TargetID != "" {
		return name + "_" + SanitizeName(req.TargetID)
	}
	return name
}

// maxNameLen bounds sanitized names so paths stay portable.
const maxNameLen = 120

// SanitizeName reduces a string to a filesystem- and archive-safe
// character set: letters, digits, dot, dash and underscore. Everything
// else collapses to single underscores. Empty input becomes "download".
// This is a PURE function.
func SanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	if out == "" {
		return "download"
	}
	return out
}
