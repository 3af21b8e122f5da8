// Command voicereception-alertcheck scans every active tenant's persisted
// call logs and calendar sync history for conditions an operator should be
// paged about, without requiring a running metrics scraper.
//
// Exit codes (spec.md §6): 0 no findings, 1 setup/config error, 2 one or
// more tenants have a finding.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/MrWong99/glyphoxa/internal/config"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML configuration file (overrides environment variables)")
	window := flag.Duration("window", time.Hour, "how far back to look for call logs and sync runs")
	failureRateThreshold := flag.Float64("failure-rate-threshold", 0.3, "fraction of failed calls within -window that triggers a finding")
	syncFailureThreshold := flag.Int("sync-failure-threshold", 1, "number of failed calendar sync runs within -window that triggers a finding")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alertcheck: config: %v\n", err)
		return 1
	}

	factory, err := store.NewFactory(cfg.Store.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alertcheck: open store factory: %v\n", err)
		return 1
	}
	defer factory.Close()

	registryDB, err := factory.Registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "alertcheck: open registry database: %v\n", err)
		return 1
	}
	reg, err := tenant.New(registryDB, factory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alertcheck: load tenant registry: %v\n", err)
		return 1
	}

	ctx := context.Background()
	since := time.Now().Add(-*window)

	var findings []string
	for _, t := range reg.ListActive() {
		db, err := factory.Get(t.ID)
		if err != nil {
			findings = append(findings, fmt.Sprintf("tenant %s: cannot open store: %v", t.ID, err))
			continue
		}
		ts := store.NewTenantStore(db)

		counts, err := ts.CallOutcomeCounts(ctx, since)
		if err != nil {
			findings = append(findings, fmt.Sprintf("tenant %s: call outcome query failed: %v", t.ID, err))
			continue
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if total > 0 {
			rate := float64(counts[store.CallStatusFailed]) / float64(total)
			if rate > *failureRateThreshold {
				findings = append(findings, fmt.Sprintf(
					"tenant %s: call failure rate %.0f%% (%d/%d) over the last %s exceeds %.0f%%",
					t.ID, rate*100, counts[store.CallStatusFailed], total, *window, *failureRateThreshold*100))
			}
		}

		failedSyncs, err := ts.RecentSyncFailureCount(ctx, since)
		if err != nil {
			findings = append(findings, fmt.Sprintf("tenant %s: sync failure query failed: %v", t.ID, err))
			continue
		}
		if failedSyncs >= *syncFailureThreshold {
			findings = append(findings, fmt.Sprintf(
				"tenant %s: %d failed calendar sync run(s) over the last %s", t.ID, failedSyncs, *window))
		}
	}

	if len(findings) == 0 {
		fmt.Println("alertcheck: no findings")
		return 0
	}

	fmt.Fprintln(os.Stderr, "alertcheck: findings:")
	for _, f := range findings {
		fmt.Fprintf(os.Stderr, "  - %s\n", f)
	}
	return 2
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}
