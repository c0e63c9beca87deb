package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/config"
	"github.com/dayuer/haggle-go/internal/decision"
	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/logger"
	"github.com/dayuer/haggle-go/internal/providers"
)

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, errors.Wrap(err, "loading config")
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// setupLogger installs the process-wide logger described by cfg.
func setupLogger(cfg config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	var l *logger.Logger
	if strings.EqualFold(cfg.Log.Format, "json") {
		l = logger.NewJSON(level, os.Stderr)
	} else {
		l = logger.New(level, os.Stderr)
	}
	logger.SetDefault(l)
	return l
}

// makeProvider builds one LLM backend. A disabled tier returns nil.
func makeProvider(ctx context.Context, pc config.ProviderConfig) (providers.LLMProvider, error) {
	if !pc.Enabled() {
		return nil, nil
	}
	return providers.New(ctx, providers.Options{
		Provider: pc.Provider,
		Model:    pc.Model,
		APIKey:   pc.APIKey,
		APIBase:  pc.APIBase,
	})
}

func llmOptions(pc config.ProviderConfig, d config.DecisionConfig) decision.LLMOptions {
	return decision.LLMOptions{
		Model:         pc.Model,
		MaxTokens:     pc.MaxTokens,
		Temperature:   pc.Temperature,
		HistoryWindow: d.HistoryWindow,
		TokenBudget:   d.PromptTokenBudget,
	}
}

// makePipeline assembles agent → enhancer → rules. A tier whose provider
// cannot be built is left out and the reason logged.
func makePipeline(ctx context.Context, cfg config.Config, log *logger.Logger) *decision.Pipeline {
	primary, err := makeProvider(ctx, cfg.LLM.Primary)
	if err != nil {
		log.Warn("agent tier disabled", "model", cfg.LLM.Primary.Model, "error", err)
	}
	enhancer, err := makeProvider(ctx, cfg.LLM.Enhancer)
	if err != nil {
		log.Warn("enhancer tier disabled", "model", cfg.LLM.Enhancer.Model, "error", err)
	}

	return decision.NewPipeline(
		[]decision.Tier{
			decision.NewAgentTier(primary, llmOptions(cfg.LLM.Primary, cfg.Decision)),
			decision.NewEnhancerTier(enhancer, llmOptions(cfg.LLM.Enhancer, cfg.Decision)),
		},
		decision.WithTierTimeout(cfg.Decision.TierTimeoutDuration()),
		decision.WithThreshold(cfg.Decision.ConfidenceThreshold),
		decision.WithPipelineLogger(log.WithComponent("decision")),
	)
}

// makeResolver builds the listing resolver. The category table is read from
// the configured file when present and watched for changes until ctx ends.
func makeResolver(ctx context.Context, cfg config.Config, log *logger.Logger) *listing.Resolver {
	rc := cfg.Resolver
	store := listing.NewCategoryStore(nil)
	if rc.CategoryFile != "" {
		if t, err := listing.LoadCategoryFile(rc.CategoryFile); err != nil {
			log.Warn("category file not loaded, using built-in table", "error", err)
		} else {
			store = listing.NewCategoryStore(t)
		}
		if err := store.Watch(ctx, rc.CategoryFile, log.WithComponent("categories")); err != nil {
			log.Warn("category file not watched", "error", err)
		}
	}

	return listing.NewResolver(
		listing.NewHTTPFetcher(rc.UserAgent, rc.RatePerSecond),
		listing.WithCache(listing.RedisCache{TTL: rc.CacheTTLDuration()}),
		listing.WithTimeout(rc.FetchTimeoutDuration()),
		listing.WithCategories(store),
		listing.WithLogger(log.WithComponent("resolver")),
	)
}

// --- PID file ---

func pidFilePath(cfg config.Config) string {
	return filepath.Join(cfg.GetDataDir(), "haggle.pid")
}

func writePID(cfg config.Config) error {
	path := pidFilePath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePID(cfg config.Config) {
	os.Remove(pidFilePath(cfg))
}

// runningPID returns the PID of a live server, or 0.
func runningPID(cfg config.Config) int {
	data, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		return 0
	}
	return pid
}
