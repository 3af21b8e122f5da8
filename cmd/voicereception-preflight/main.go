// Command voicereception-preflight validates a deployment's configuration
// and dependencies before voicereceptiond is started against it.
//
// Exit codes (spec.md §6): 0 everything checks out, 1 configuration is
// unusable, 2 the configuration loads but one or more checks failed (e.g.
// an unreachable coordinator) and an operator should look before deploying.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/glyphoxa/internal/config"
	"github.com/MrWong99/glyphoxa/internal/store"
	"github.com/MrWong99/glyphoxa/internal/tenant"
	"github.com/MrWong99/glyphoxa/internal/vault"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML configuration file (overrides environment variables)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight: config: %v\n", err)
		return 1
	}

	var findings []string

	factory, err := store.NewFactory(cfg.Store.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight: open store factory: %v\n", err)
		return 1
	}
	defer factory.Close()

	registryDB, err := factory.Registry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight: open registry database: %v\n", err)
		return 1
	}

	reg, err := tenant.New(registryDB, factory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "preflight: load tenant registry: %v\n", err)
		return 1
	}
	fmt.Printf("ok: tenant registry loaded (%d tenants)\n", len(reg.ListAll()))

	if _, err := vault.New(factory, reg, cfg.Security.EncryptionKeyHex); err != nil {
		fmt.Fprintf(os.Stderr, "preflight: credential vault: %v\n", err)
		return 1
	}
	fmt.Println("ok: credential vault key is valid")

	if cfg.Coordinator.RedisURL == "" {
		findings = append(findings, "coordinator: no COORDINATOR_URL set — running in degraded single-instance mode")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pingRedis(ctx, cfg.Coordinator.RedisURL); err != nil {
			findings = append(findings, fmt.Sprintf("coordinator: redis ping failed: %v", err))
		} else {
			fmt.Println("ok: coordinator redis reachable")
		}
		cancel()
	}

	if cfg.Calendar.GoogleClientID == "" && cfg.Calendar.OutlookClientID == "" {
		findings = append(findings, "calendar: neither a Google nor an Outlook OAuth app is configured")
	}

	if cfg.Providers.LLM.Name == "" {
		findings = append(findings, "providers: no LLM provider configured")
	}
	if cfg.Providers.STT.Name == "" {
		findings = append(findings, "providers: no STT provider configured")
	}
	if cfg.Providers.TTS.Name == "" {
		findings = append(findings, "providers: no TTS provider configured")
	}

	if len(findings) == 0 {
		fmt.Println("preflight: all checks passed")
		return 0
	}

	fmt.Fprintln(os.Stderr, "preflight: findings:")
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

func pingRedis(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Join(errors.New("redis ping"), err)
	}
	return nil
}
