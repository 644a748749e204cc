package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"toolvet/internal/config"
	"toolvet/internal/core"
	"toolvet/internal/logger"
	"toolvet/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the enriched-candidate cache and the model audit log",
		Long:  `Inspect and clear the file-based run artifacts: the enriched.json candidate cache used by --resume and the model audit log.`,
	}

	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheClearCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show enriched-cache and audit-log statistics",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheStats(); err != nil {
				logger.Error("Failed to get cache stats", err)
				os.Exit(1)
			}
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the enriched-candidate cache and the audit log",
		Run: func(cmd *cobra.Command, args []string) {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if err := runCacheClear(confirm); err != nil {
				logger.Error("Failed to clear cache", err)
				os.Exit(1)
			}
		},
	}

	clearCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	return clearCmd
}

func runCacheStats() error {
	cfg := config.Get()
	enrichedPath := filepath.Join(cfg.Output.Directory, pipeline.EnrichedFileName)

	fmt.Println("📊 Cache Statistics")
	fmt.Println("==================")

	info, err := os.Stat(enrichedPath)
	if os.IsNotExist(err) {
		fmt.Printf("📄 Enriched cache: none (%s)\n", enrichedPath)
	} else if err != nil {
		return err
	} else {
		count := 0
		if data, err := os.ReadFile(enrichedPath); err == nil {
			var cands []core.Candidate
			if err := json.Unmarshal(data, &cands); err == nil {
				count = len(cands)
			}
		}
		fmt.Printf("📄 Enriched cache: %d candidates, %.1f KB\n", count, float64(info.Size())/1024)
		fmt.Printf("📅 Last updated: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
	}

	if cfg.Ollama.AuditLog == "" {
		fmt.Println("📝 Audit log: disabled")
		return nil
	}
	if info, err := os.Stat(cfg.Ollama.AuditLog); err == nil {
		fmt.Printf("📝 Audit log: %.1f KB (%s)\n", float64(info.Size())/1024, cfg.Ollama.AuditLog)
	} else {
		fmt.Printf("📝 Audit log: none (%s)\n", cfg.Ollama.AuditLog)
	}
	return nil
}

func runCacheClear(confirm bool) error {
	if !confirm {
		fmt.Print("⚠️  This will remove the enriched cache and audit log. Continue? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Cache clear cancelled")
			return nil
		}
	}

	cfg := config.Get()
	targets := []string{filepath.Join(cfg.Output.Directory, pipeline.EnrichedFileName)}
	if cfg.Ollama.AuditLog != "" {
		targets = append(targets, cfg.Ollama.AuditLog)
	}

	for _, path := range targets {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	fmt.Println("✅ Cache cleared successfully")
	return nil
}
