package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/internal/logs"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/render"
	"github.com/cozy-crashes/crashlens/internal/report"
	"github.com/cozy-crashes/crashlens/internal/retrievers"
	"github.com/cozy-crashes/crashlens/internal/upload"
)

func analyzeCMD(cfgPath *string) *cobra.Command {
	var (
		asJSON   bool
		noColor  bool
		doUpload bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze <file|url|->...",
		Short: "Analyze log files, links or standard input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if err := a.bootstrapRemote(ctx); err != nil {
				return err
			}
			if err := a.buildPipeline(ctx, retrievers.File{MaxBytes: a.cfg.Retrieval.MaxBytes}); err != nil {
				return err
			}

			analyzed, err := analyzeArgs(ctx, a, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			r := report.New("cli", analyzed, time.Now())

			if doUpload {
				up := upload.NewMclogs(a.client, a.cfg.Mclogs.Endpoint)
				for i, l := range r.Logs {
					res, err := up.Upload(ctx, l.Content)
					if err != nil {
						a.logger.Warn("upload failed", zap.Int("log", i), zap.Error(err))
						continue
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "log %d uploaded to %s\n", i+1, res.URL)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(r.WithoutContent())
			}
			if noColor {
				color.NoColor = true
			}
			return render.Terminal(out, r)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	cmd.Flags().BoolVar(&doUpload, "upload", false, "upload every reported log to mclo.gs")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall analysis timeout")
	return cmd
}

// analyzeArgs reads "-" from stdin, treats anything with a scheme as a link
// and everything else as a local path. Standard input is reported first.
func analyzeArgs(ctx context.Context, a *app, args []string, stdin io.Reader) ([]*logs.Log, error) {
	ev := pipeline.Event{Source: "cli"}
	snap := a.remote.Current()

	var out []*logs.Log
	var links []string
	for _, arg := range args {
		if arg == "-" {
			b, err := io.ReadAll(io.LimitReader(stdin, a.cfg.Retrieval.MaxBytes))
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			out = append(out, a.pipeline.AnalyzeContent(snap, string(b), nil, ev))
			continue
		}
		// single-letter schemes are Windows drive letters
		if u, err := url.Parse(arg); err == nil && len(u.Scheme) > 1 {
			links = append(links, arg)
			continue
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, err
		}
		links = append(links, (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String())
	}
	if len(links) > 0 {
		out = append(out, a.pipeline.Analyze(ctx, snap, "", links, ev)...)
	}
	return out, nil
}
