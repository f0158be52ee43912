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
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var (
	cfgFile      string
	logLevel     string
	providerList []string
	noCache      bool
)

var rootCmd = &cobra.Command{
	Use:   "tlumach",
	Short: "Multi-provider text and HTML translator",
	Long: `tlumach translates plain text and HTML fragments by racing several
translation providers, caching the results and keeping markup intact.

Free providers (google, lingva, mymemory, ollama) work without credentials.
Credentialed ones read keys from the config file or TLUMACH_<NAME>_KEYS.

Use "tlumach providers" to see what is available.`,
	Version:      version,
	SilenceUsage:  true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./tlumach.yaml or ~/.config/tlumach/tlumach.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringSliceVar(&providerList, "providers", nil, "Providers to use, in priority order (comma-separated)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Disable the translation cache")
}
