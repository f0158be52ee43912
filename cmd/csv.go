/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/tlumach/internal/segmenter"
)

var (
	csvInputFile  string
	csvOutputFile string
	csvColumns    []int
	csvSkipHeader bool
	csvWorkers    int
)

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Translate columns of a CSV file",
	Long: `Translate one or more columns in a CSV file.

By default all columns are translated. Use -l to select specific columns
(0-indexed). The flag may be repeated to select multiple columns. Cells that
contain HTML are translated with their markup preserved. Cells that cannot
be translated keep their original text.

Example:
  tlumach translate csv -i data.csv -o out.csv -t uk -l 1 -l 3 --skip-header`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if csvInputFile == csvOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		f, err := os.Open(csvInputFile)
		if err != nil {
			return fmt.Errorf("failed to open input CSV: %w", err)
		}
		records, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("CSV file is empty")
		}

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		src := sourceLang
		if len(records) > 1 && len(records[1]) > 0 {
			src = resolveSource(records[1][0])
		}

		out := make([][]string, len(records))
		for i, row := range records {
			out[i] = slices.Clone(row)
		}

		var failed atomic.Int32
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(csvWorkers, 1))
		for rowIdx, row := range records {
			if rowIdx == 0 && csvSkipHeader {
				continue
			}
			for colIdx, cell := range row {
				if cell == "" || (len(csvColumns) > 0 && !slices.Contains(csvColumns, colIdx)) {
					continue
				}
				g.Go(func() error {
					translated, ok := translateCell(gctx, rt, cell, src)
					if !ok {
						failed.Add(1)
						fmt.Fprintf(os.Stderr, "Row %d col %d: translation failed, keeping original\n", rowIdx, colIdx)
						return nil
					}
					out[rowIdx][colIdx] = translated
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(csvOutputFile), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		outFile, err := os.Create(csvOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output CSV: %w", err)
		}
		defer outFile.Close()

		writer := csv.NewWriter(outFile)
		if err := writer.WriteAll(out); err != nil {
			return fmt.Errorf("failed to write output CSV: %w", err)
		}

		fmt.Printf("CSV translated successfully: %s", csvOutputFile)
		if n := failed.Load(); n > 0 {
			fmt.Printf(" (%d cells kept untranslated)", n)
		}
		fmt.Println()
		return nil
	},
}

// translateCell routes markup through the HTML pipeline and everything else
// through plain translation.
func translateCell(ctx context.Context, rt *runtime, cell, src string) (string, bool) {
	if segmenter.HasTags(cell) {
		out := rt.orch.TranslateHTMLFrom(ctx, cell, src, targetLang)
		return out, out != cell
	}
	out, err := rt.orch.TranslateFrom(ctx, cell, src, targetLang)
	if err != nil {
		return "", false
	}
	return out, true
}

func init() {
	translateCmd.AddCommand(csvCmd)

	csvCmd.Flags().StringVarP(&csvInputFile, "input", "i", "", "Input CSV file (required)")
	csvCmd.Flags().StringVarP(&csvOutputFile, "output", "o", "", "Output CSV file (required)")
	csvCmd.Flags().StringVarP(&sourceLang, "from", "f", "auto", "Source language, or auto")
	csvCmd.Flags().StringVarP(&targetLang, "to", "t", "", "Target language (required)")
	csvCmd.Flags().BoolVar(&detect, "detect", false, "Detect the source language locally from the first data row")
	csvCmd.Flags().IntSliceVarP(&csvColumns, "column", "l", nil, "Column index to translate (0-indexed, repeatable; default: all columns)")
	csvCmd.Flags().BoolVar(&csvSkipHeader, "skip-header", false, "Leave the first row untranslated")
	csvCmd.Flags().IntVar(&csvWorkers, "workers", 4, "Cells translated in parallel")
	csvCmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall time limit (0 for none)")

	_ = csvCmd.MarkFlagRequired("input")
	_ = csvCmd.MarkFlagRequired("output")
	_ = csvCmd.MarkFlagRequired("to")
}
