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
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/tlumach/internal/cache"
	"github.com/valpere/tlumach/internal/config"
	"github.com/valpere/tlumach/internal/logging"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear the translation cache",
	Long:  `Show statistics, list entries and clear the persisted translation cache.`,
}

// withCache opens the configured cache for a maintenance command.
func withCache(fn func(ctx context.Context, c *cache.Cache) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Cache.Backend == config.BackendMemory {
		return fmt.Errorf("the %s cache backend keeps nothing between runs", config.BackendMemory)
	}
	logger, logCloser, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := context.Background()
	c, closer, err := openCache(ctx, cfg.Cache, logger, nil)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(ctx, c)
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(ctx context.Context, c *cache.Cache) error {
			stats := c.Stats()
			pairs := make(map[string]int)
			providers := make(map[string]int)
			for _, r := range c.Records() {
				pairs[r.Entry.SourceLang+" -> "+r.Entry.TargetLang]++
				providers[r.Entry.Provider]++
			}

			fmt.Printf("Entries:     %d / %d\n", stats.Entries, stats.MaxEntries)
			fmt.Printf("TTL:         %s\n", stats.TTL)
			printCounts("Language pairs", pairs)
			printCounts("Providers", providers)
			return nil
		})
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}

var cacheListLimit int

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(ctx context.Context, c *cache.Cache) error {
			records := c.Records()
			if len(records) == 0 {
				fmt.Println("No entries in the cache.")
				return nil
			}
			sort.Slice(records, func(i, j int) bool {
				return records[i].Entry.CreatedAt.After(records[j].Entry.CreatedAt)
			})
			if cacheListLimit > 0 && len(records) > cacheListLimit {
				records = records[:cacheListLimit]
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSOURCE\tTARGET\tPROVIDER\tCREATED\tTEXT")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortKey(r.Key), r.Entry.SourceLang, r.Entry.TargetLang, r.Entry.Provider,
					r.Entry.CreatedAt.Format("2006-01-02 15:04"), snippet(r.Entry.Text, 40))
			}
			return w.Flush()
		})
	},
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all entries from the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(ctx context.Context, c *cache.Cache) error {
			n := c.Len()
			if err := c.Clear(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Printf("Cleared %d entries from the cache.\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheListCmd, cacheClearCmd)
	cacheListCmd.Flags().IntVarP(&cacheListLimit, "limit", "n", 50, "Maximum entries to show (0 for all)")
}
