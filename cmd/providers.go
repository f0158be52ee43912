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
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/valpere/tlumach/internal/translator"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the translation providers",
	Long: `List every known provider with its capabilities, and whether it is
enabled and has credentials in the current configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		yes := color.New(color.FgGreen).SprintFunc()
		no := color.New(color.FgHiBlack).SprintFunc()
		warn := color.New(color.FgYellow).SprintFunc()
		flag := func(b bool) string {
			if b {
				return yes("yes")
			}
			return no("no")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSERVICE\tFREE\tHTML\tENABLED\tCREDENTIALS")
		for _, name := range translator.Names() {
			sc := cfg.Service(name)
			p, err := translator.New(name, sc, translator.Deps{})
			if err != nil {
				return err
			}
			d := p.Descriptor()

			creds := no("not needed")
			if d.NeedsCredential {
				creds = warn("missing")
				if n := len(sc.Credentials); n > 0 {
					creds = yes(fmt.Sprintf("%d configured", n))
				}
			}
			enabled := "-"
			if i := slices.Index(cfg.Enabled, name); i >= 0 {
				enabled = yes(fmt.Sprintf("#%d", i+1))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				name, d.Alias, flag(d.Free), flag(d.HTMLSafe), enabled, creds)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nEnabled order: %s\n", strings.Join(cfg.Enabled, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
