// Command simulate plays batches of all-bot matches and prints win and
// length statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/bot"
	"github.com/threatlanes/threatlanes-server-go/internal/config"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"github.com/threatlanes/threatlanes-server-go/internal/repository"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to configuration file")
		games      = flag.Int("games", 20, "number of matches to play")
		players    = flag.Int("players", 3, "bots per match")
		parallel   = flag.Int("parallel", 4, "matches played concurrently")
		seed       = flag.Uint64("seed", 1, "seed of the first match")
		dbPath     = flag.String("db", "", "sqlite file to record results in")
		depth      = flag.Int("depth", 0, "planner depth (0 uses config)")
		branches   = flag.Int("branches", 0, "planner leaf budget (0 uses config)")
		verbose    = flag.Bool("v", false, "log every match")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := content.Default()
	if cfg.Content.Dir != "" {
		lib, err = content.Load(os.DirFS(cfg.Content.Dir))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load card content: %v\n", err)
		os.Exit(1)
	}

	engine := game.NewEngine(logger, lib, cfg.GameRules())
	if *dbPath != "" {
		store, err := repository.NewSQLiteStore(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", *dbPath, err)
			os.Exit(1)
		}
		defer store.Close()
		engine.SetResultStore(store)
	}

	constraints := cfg.Constraints()
	if *depth > 0 {
		constraints.MaxDepth = *depth
	}
	if *branches > 0 {
		constraints.MaxBranches = *branches
	}
	driver := bot.NewDriver(logger, engine, planner.New(logger), constraints,
		bot.WithTurnTimeout(cfg.Planner.TurnTimeout))

	sum, err := bot.RunBatch(ctx, logger, engine, driver, bot.BatchConfig{
		Games:    *games,
		Players:  *players,
		Parallel: *parallel,
		BaseSeed: *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== %d matches, %d bots, depth %d, %d leaves ===\n",
		len(sum.Matches), *players, constraints.MaxDepth, constraints.MaxBranches)
	fmt.Printf("Elapsed:        %s\n", sum.Duration.Round(time.Millisecond))
	fmt.Printf("Average rounds: %.1f\n", sum.Rounds)
	fmt.Printf("Average actions: %.1f\n", sum.Actions)

	fmt.Println("Wins:")
	for _, id := range sortedKeys(sum.Wins) {
		fmt.Printf("  %-10s %d\n", id, sum.Wins[id])
	}
	fmt.Println("End reasons:")
	for _, r := range sortedKeys(sum.Reasons) {
		fmt.Printf("  %-20s %d\n", r, sum.Reasons[r])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
