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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/tlumach/internal/detector"
	"github.com/valpere/tlumach/internal/logging"
)

var (
	inputFile  string
	outputFile string
	sourceLang string
	targetLang string
	detect     bool
	timeout    time.Duration
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate plain text",
	Long: `Translate plain text read from a file or stdin.

All enabled providers are called in parallel and the first one in priority
order that succeeds wins. If every provider fails, the first free provider
is tried once more.

Examples:
  echo "Good morning" | tlumach translate -t uk
  tlumach translate -i notes.txt -o notes.uk.txt -t uk --providers deepl,google`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" && inputFile != "-" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		text, err := readInput(inputFile)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		src := resolveSource(text)
		out, err := rt.orch.TranslateFrom(ctx, text, src, targetLang)
		if err != nil {
			return err
		}
		if err := writeOutput(outputFile, out); err != nil {
			return err
		}
		if outputFile != "" && outputFile != "-" {
			fmt.Fprintf(os.Stderr, "Translated %s to %s into %s\n", src, targetLang, outputFile)
		}
		return nil
	},
}

// commandContext adds a request ID and the --timeout bound.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx := logging.WithRequestID(parent, logging.NewRequestID())
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// resolveSource applies --detect to the source language flag.
func resolveSource(sample string) string {
	if !detect {
		return sourceLang
	}
	src := detector.New().Resolve(sample, sourceLang)
	if src != sourceLang {
		fmt.Fprintf(os.Stderr, "Detected source language: %s\n", src)
	}
	return src
}

func addLanguageFlags(c *cobra.Command) {
	c.Flags().StringVarP(&inputFile, "input", "i", "-", "Input file (- for stdin)")
	c.Flags().StringVarP(&outputFile, "output", "o", "-", "Output file (- for stdout)")
	c.Flags().StringVarP(&sourceLang, "from", "f", "auto", "Source language, or auto")
	c.Flags().StringVarP(&targetLang, "to", "t", "", "Target language (required)")
	c.Flags().BoolVar(&detect, "detect", false, "Detect the source language locally when --from is auto")
	c.Flags().DurationVar(&timeout, "timeout", 0, "Overall time limit (0 for none)")
	_ = c.MarkFlagRequired("to")
}

func init() {
	rootCmd.AddCommand(translateCmd)
	addLanguageFlags(translateCmd)
}
