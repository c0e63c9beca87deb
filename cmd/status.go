package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayuer/haggle-go/internal/config"
	"github.com/dayuer/haggle-go/internal/providers"
	"github.com/dayuer/haggle-go/internal/redis"
	"github.com/dayuer/haggle-go/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show haggle status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}

	fmt.Println("haggle status")
	fmt.Println()
	fmt.Printf("Config: %s\n", path)
	fmt.Printf("Data: %s\n", cfg.GetDataDir())
	if pid := runningPID(cfg); pid != 0 {
		fmt.Printf("Server: running (pid %d) on %s:%d\n", pid, cfg.Server.Host, cfg.Server.Port)
	} else {
		fmt.Println("Server: stopped")
	}

	fmt.Println("\nDecision tiers:")
	printTier("agent", cfg.LLM.Primary)
	printTier("enhancer", cfg.LLM.Enhancer)
	fmt.Println("  rules: ✓")

	switch {
	case cfg.Redis.URL == "":
		fmt.Println("\nRedis: not configured")
	case redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}):
		ids, err := redis.RecentSessions(cmd.Context(), 10)
		redis.Close()
		fmt.Printf("\nRedis: %s (db %d) ✓\n", cfg.Redis.URL, cfg.Redis.DB)
		if err == nil && len(ids) > 0 {
			fmt.Printf("  Recently mirrored sessions: %v\n", ids)
		}
	default:
		fmt.Printf("\nRedis: %s (unreachable)\n", cfg.Redis.URL)
	}

	if a, err := session.NewArchive(cfg.GetDataDir()); err == nil {
		fmt.Printf("Archived transcripts: %d\n", len(a.List()))
	}
	return nil
}

func printTier(name string, pc config.ProviderConfig) {
	if !pc.Enabled() {
		fmt.Printf("  %s: disabled\n", name)
		return
	}
	label := pc.Provider
	spec := providers.FindByName(pc.Provider)
	if spec == nil {
		spec = providers.FindByModel(pc.Model)
	}
	if spec != nil {
		label = spec.Label()
	}
	fmt.Printf("  %s: %s (%s)\n", name, pc.Model, label)
}
