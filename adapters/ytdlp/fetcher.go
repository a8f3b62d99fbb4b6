// Package ytdlp runs the external media fetch tool as a subprocess.
// It is a thin adapter: everything deterministic (argument profiles,
// progress parsing, output path reconstruction) lives in domain/fetch;
// this package owns process lifecycle and stream scanning only.
package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/artpar/fetchvault/domain/fetch"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

// Fetcher invokes the fetch tool binary per item.
type Fetcher struct {
	binary string
	logger zerolog.Logger
}

// New creates a fetcher for the given tool binary (e.g. "yt-dlp").
func New(binary string, logger zerolog.Logger) *Fetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Fetcher{binary: binary, logger: logger}
}

// Fetch downloads one item into outputDir. Progress percentages are
// forwarded through onProgress as the tool reports them; only forward
// movement is reported, so a tool that re-emits lower percentages for
// a second stream (audio after video) never makes progress go
// backwards. A non-zero exit fails this item only.
func (f *Fetcher) Fetch(ctx context.Context, req fetch.Request, outputDir string, onProgress func(percent float64)) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	args := fetch.Args(req, outputDir)
	cmd := exec.CommandContext(ctx, f.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	// The tool writes progress to stdout and errors to stderr; fold
	// stderr into the same scanner so "already downloaded" notices are
	// not missed.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", f.binary, err)
	}

	var (
		finalPath string
		lastPct   float64
		lastLine  string
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			lastLine = line
		}

		if pct, ok := fetch.ParseProgressLine(line); ok && pct > lastPct {
			lastPct = pct
			if onProgress != nil {
				onProgress(pct)
			}
		}

		if p, ok := fetch.ParseFinalPath(line); ok {
			finalPath = p
		}
	}

	waitErr := cmd.Wait()
	if scanErr := scanner.Err(); scanErr != nil && waitErr == nil {
		waitErr = scanErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.logger.Warn().
			Str("url", req.URL).
			Str("last_line", lastLine).
			Err(waitErr).
			Msg("fetch tool exited with error")
		return "", fmt.Errorf("fetch %s: %w", req.URL, waitErr)
	}

	if onProgress != nil && lastPct < 100 {
		onProgress(100)
	}

	// The tool does not always announce its output file (it stays
	// silent for already-present files, and the merge line depends on
	// the profile). Fall back to the deterministic reconstruction.
	if finalPath == "" {
		finalPath = fetch.OutputPath(outputDir, req)
	}
	if _, err := os.Stat(finalPath); err != nil {
		reconstructed := fetch.OutputPath(outputDir, req)
		if _, err2 := os.Stat(reconstructed); err2 == nil {
			finalPath = reconstructed
		} else {
			return "", fmt.Errorf("fetch %s: output file missing: %w", req.URL, err)
		}
	}

	f.logger.Debug().
		Str("url", req.URL).
		Str("path", finalPath).
		Msg("fetch complete")

	return finalPath, nil
}

// Ensure interface compliance.
var _ ports.Fetcher = (*Fetcher)(nil)
