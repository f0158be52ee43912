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
	"fmt"

	"github.com/spf13/cobra"
)

var htmlCmd = &cobra.Command{
	Use:   "html",
	Short: "Translate an HTML fragment",
	Long: `Translate the text of an HTML fragment while keeping its markup.

Text inside script, style, code, pre, textarea and noscript is left alone.
Anything that cannot be translated is kept as it was, so the command
always produces output.

Example:
  tlumach html -i article.html -o article.uk.html -t uk`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" && inputFile != "-" && inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}
		markup, err := readInput(inputFile)
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

		out := rt.orch.TranslateHTMLFrom(ctx, markup, sourceLang, targetLang)
		return writeOutput(outputFile, out)
	},
}

func init() {
	rootCmd.AddCommand(htmlCmd)
	addLanguageFlags(htmlCmd)
}
