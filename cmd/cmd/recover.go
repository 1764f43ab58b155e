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
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ostafen/digler/internal/manifest"
	"github.com/ostafen/digler/internal/recovery"
)

func DefineRecoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover <image_path> <manifest_file>",
		Short: "Recover files from a disk image using a scan manifest",
		Long: `The 'recover' command extracts files from a disk image or device based on the information recorded in a manifest produced by 'scan'.
You must provide the full path to the image file and the manifest file.
Recovered files are saved to the specified output directory.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunRecover,
	}
	cmd.Flags().StringP("output-dir", "i", "", "absolute path to the directory where recovered data will be placed")
	cmd.Flags().StringSlice("only", nil, "only extract the named manifest entries (default: all)")
	cmd.Flags().String("log-level", "INFO", "minimum log level: DEBUG, INFO, WARN, ERROR")
	return cmd
}

func RunRecover(cmd *cobra.Command, args []string) error {
	imagePath, manifestPath := args[0], args[1]

	reportFile, err := os.Open(manifestPath)
	if err != nil {
		return err
	}
	defer reportFile.Close()

	m, err := manifest.Read(reportFile)
	if err != nil {
		return fmt.Errorf("reading manifest %q: %w", manifestPath, err)
	}

	outDir, _ := cmd.Flags().GetString("output-dir")
	if outDir == "" {
		wdir, err := os.Getwd()
		if err != nil {
			return err
		}
		base := filepath.Base(manifestPath)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		outDir = filepath.Join(wdir, name+"-dump")
	}

	only, _ := cmd.Flags().GetStringSlice("only")
	logLevel, _ := cmd.Flags().GetString("log-level")

	log, err := newLogger("", parseLogLevel(logLevel))
	if err != nil {
		return err
	}

	result, err := recovery.Extract(context.Background(), imagePath, m, only, outDir, log)
	if err != nil {
		return err
	}

	fmt.Printf("recovered %d files to %s\n", len(result.Written), outDir)
	if len(result.Mismatch) > 0 {
		fmt.Printf("%d files failed checksum verification (saved as .mismatch)\n", len(result.Mismatch))
	}
	for name, ferr := range result.Failed {
		fmt.Printf("failed to recover %s: %v\n", name, ferr)
	}
	return nil
}
