// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ostafen/digler/internal/block"
	"github.com/ostafen/digler/internal/disk"
	"github.com/ostafen/digler/internal/manifest"
	"github.com/ostafen/digler/internal/recovery"
	"github.com/ostafen/digler/internal/validate"
	"github.com/ostafen/digler/pkg/pbar"
	"github.com/ostafen/digler/pkg/sysinfo"
)

func DefineScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "scan <device>",
		Short:        "Scan an image file or disk for recoverable files",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunScan,
	}

	cmd.Flags().StringP("mode", "m", "normal", "scan mode: normal, quick, carving, deep")
	cmd.Flags().StringSliceP("ext", "", nil, "file extensions to carve for in carving mode (default: all known formats) or to keep in normal mode (default: important formats); ignored by quick and deep")
	cmd.Flags().IntSlice("partition", nil, "partition numbers to scan (default: all)")
	cmd.Flags().Bool("deep-validate", true, "decode JPEG, PNG and GIF candidates with the image package and adjust their score")
	cmd.Flags().Bool("mime-sniff", false, "cross-check each candidate against net/http's content sniffer")
	cmd.Flags().StringP("output", "o", "manifest.json", "path to write the resulting manifest")
	cmd.Flags().String("dump", "", "also extract recovered files to the specified directory")
	cmd.Flags().String("log-file", "", "path to write scan logs to (default: stderr)")
	cmd.Flags().String("log-level", "INFO", "minimum log level: DEBUG, INFO, WARN, ERROR")
	cmd.Flags().Bool("mmap", false, "memory-map the source instead of issuing a pread per read")

	return cmd
}

func RunScan(cmd *cobra.Command, args []string) error {
	path := disk.NormalizeVolumePath(args[0])

	src, err := openSource(cmd, path)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer src.Close()

	opts, err := parseRecoveryOptions(cmd)
	if err != nil {
		return err
	}

	if sys, sysErr := sysinfo.Stat(); sysErr == nil {
		opts.Logger.Info("starting scan", "source", path, "size", humanize.Bytes(src.Length()), "os", sys.Name, "os_release", sys.Release)
	}

	start := time.Now()
	bar := pbar.NewProgressBarState(int64(src.Length()))
	m, err := recovery.Execute(context.Background(), src, opts, func(p recovery.ProgressEvent) {
		bar.ProcessedBytes = int64(p.ProgressPct / 100 * float64(src.Length()))
		bar.FilesFound = p.FilesFound
		bar.Render(false)
	})
	bar.Render(true)
	bar.Finish()
	if err != nil {
		opts.Logger.Warn("scan completed with errors", "err", err)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating manifest file %q: %w", outputPath, err)
	}
	defer out.Close()
	if err := manifest.Write(out, m); err != nil {
		return err
	}

	fmt.Printf("found %d files (%d partial) in %s, manifest written to %s\n",
		m.Statistics.TotalFiles, m.Statistics.PartialFiles, time.Since(start).Round(time.Second), outputPath)

	if dumpDir, _ := cmd.Flags().GetString("dump"); dumpDir != "" {
		result, err := recovery.Extract(context.Background(), path, m, nil, dumpDir, opts.Logger)
		if err != nil {
			return err
		}
		fmt.Printf("extracted %d files to %s (%d mismatched checksum)\n", len(result.Written), dumpDir, len(result.Mismatch))
	}

	return nil
}

func openSource(cmd *cobra.Command, path string) (block.Source, error) {
	if useMmap, _ := cmd.Flags().GetBool("mmap"); useMmap {
		return block.OpenMmap(path)
	}
	return block.OpenFile(path)
}

func parseRecoveryOptions(cmd *cobra.Command) (recovery.Options, error) {
	modeStr, _ := cmd.Flags().GetString("mode")
	mode := recovery.Mode(strings.ToLower(modeStr))
	switch mode {
	case recovery.ModeNormal, recovery.ModeQuick, recovery.ModeCarving, recovery.ModeDeep:
	default:
		return recovery.Options{}, fmt.Errorf("unknown scan mode %q", modeStr)
	}

	exts, _ := cmd.Flags().GetStringSlice("ext")
	partitions, _ := cmd.Flags().GetIntSlice("partition")
	deepValidate, _ := cmd.Flags().GetBool("deep-validate")
	mimeSniff, _ := cmd.Flags().GetBool("mime-sniff")
	logFile, _ := cmd.Flags().GetString("log-file")
	logLevel, _ := cmd.Flags().GetString("log-level")

	log, err := newLogger(logFile, parseLogLevel(logLevel))
	if err != nil {
		return recovery.Options{}, err
	}

	return recovery.Options{
		Mode:       mode,
		Extensions: exts,
		Partitions: partitions,
		Validate: validate.Options{
			DeepValidate: deepValidate,
			MIMESniff:    mimeSniff,
		},
		Logger: log,
	}, nil
}

func newLogger(logFile string, level slog.Level) (*slog.Logger, error) {
	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", logFile, err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
