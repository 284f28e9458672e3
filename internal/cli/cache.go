package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimcheck/internal/cache"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embedding, LLM, fetch and translation cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.New(appConfig.Cache, appLogger)
		defer func() { _ = c.Close() }()

		n, err := c.Purge()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Removed %d expired entries from %s\n", n, appConfig.Cache.Dir)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.New(appConfig.Cache, appLogger)
		defer func() { _ = c.Close() }()

		if err := c.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Cleared cache at %s\n", appConfig.Cache.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
