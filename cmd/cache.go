package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyforge/studyforge/internal/config"
	"github.com/studyforge/studyforge/internal/semcache"
)

// The semantic cache lives inside the serve process, so these commands
// talk to the running server over its HTTP API.

var cacheServerURL string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the semantic answer cache of a running server",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache hit rate and occupancy",
	RunE:  runCacheStats,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Remove cached answers matching the given criteria",
	RunE:  runCacheInvalidate,
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheServerURL, "server", "", "server base URL (default derived from config port)")
	cacheStatsCmd.Flags().Bool("json", false, "output stats as JSON")
	cacheInvalidateCmd.Flags().String("tags", "", "comma-separated tags to invalidate")
	cacheInvalidateCmd.Flags().String("model", "", "invalidate answers produced by this model")
	cacheInvalidateCmd.Flags().String("older-than", "", "invalidate answers older than this duration, e.g. 24h")
	cacheInvalidateCmd.Flags().String("similar-to", "", "invalidate answers to questions similar to this query")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}

// serverURL resolves the base URL of the running studyforge server.
func serverURL() string {
	if cacheServerURL != "" {
		return strings.TrimSuffix(cacheServerURL, "/")
	}
	port := 8080
	if cfg, err := config.Load(cfgFile); err == nil && cfg.Server.Port > 0 {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL() + "/api/cache/stats")
	if err != nil {
		return fmt.Errorf("reaching server: %w\nIs `studyforge serve` running?", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var stats semcache.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decoding stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Println("Semantic Cache")
	fmt.Println("==============")
	fmt.Printf("  Entries:        %d / %d\n", stats.Entries, stats.Capacity)
	fmt.Printf("  Lookups:        %d\n", stats.Lookups)
	fmt.Printf("  Hits:           %d (%.1f%%)\n", stats.Hits, stats.HitRate*100)
	if stats.Hits > 0 {
		fmt.Printf("  Avg similarity: %.3f\n", stats.AvgHitSimilarity)
	}
	fmt.Printf("  Resident size:  %.1f KiB\n", float64(stats.MemoryBytes)/1024)
	if len(stats.TopTags) > 0 {
		fmt.Println("  Top tags:")
		for _, tc := range stats.TopTags {
			fmt.Printf("    %-24s %d\n", tc.Tag, tc.Count)
		}
	}
	return nil
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	tags, _ := cmd.Flags().GetString("tags")
	model, _ := cmd.Flags().GetString("model")
	olderThan, _ := cmd.Flags().GetString("older-than")
	similarTo, _ := cmd.Flags().GetString("similar-to")

	if tags == "" && model == "" && olderThan == "" && similarTo == "" {
		return fmt.Errorf("at least one of --tags, --model, --older-than, --similar-to is required")
	}
	if olderThan != "" {
		if _, err := time.ParseDuration(olderThan); err != nil {
			return fmt.Errorf("invalid --older-than duration %q: %w", olderThan, err)
		}
	}

	payload, err := json.Marshal(map[string]string{
		"tags":       tags,
		"model":      model,
		"older_than": olderThan,
		"similar_to": similarTo,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(serverURL()+"/api/cache/invalidate", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("reaching server: %w\nIs `studyforge serve` running?", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var result struct {
		Invalidated int `json:"invalidated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("Invalidated %d cached answer(s)\n", result.Invalidated)
	return nil
}
