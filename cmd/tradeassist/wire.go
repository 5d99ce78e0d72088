package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/tradeassist/config"
	"github.com/alejandrodnm/tradeassist/internal/adapters/coinbase"
	"github.com/alejandrodnm/tradeassist/internal/adapters/lock"
	"github.com/alejandrodnm/tradeassist/internal/application/bank"
	"github.com/alejandrodnm/tradeassist/internal/application/engine"
	"github.com/alejandrodnm/tradeassist/internal/application/execution"
	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

func newRunLock(ctx context.Context, cfg config.LockConfig) (ports.RunLock, func(), error) {
	if cfg.Backend != "redis" {
		return lock.NewMemory(), func() {}, nil
	}
	r, err := lock.NewRedis(ctx, lock.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.Prefix,
		TTL:      cfg.TTL(),
	})
	if err != nil {
		return nil, nil, err
	}
	return r, func() {
		if err := r.Close(); err != nil {
			slog.Warn("closing redis lock", "err", err)
		}
	}, nil
}

// newEngine arma el stack de un perfil: exchange → bank → executor → engine.
func newEngine(cfg *config.Config, p config.ProfileConfig, store ports.Storage, runLock ports.RunLock) (*engine.Engine, error) {
	client, err := coinbase.NewClient(cfg.Exchange.BaseURL, coinbase.Credentials{
		KeyName:    p.APIKey,
		PrivateKey: p.APISecret,
	})
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.ID, err)
	}

	skipReconcile := p.SkipReconcile
	if !client.Authenticated() {
		// solo llega aquí en simulación: Validate exige credenciales en live
		skipReconcile = true
		slog.Info("no API credentials, using public market data", "profile", p.ID)
	}

	retry := execution.RetryPolicy{
		MaxAttempts: cfg.Execution.RequestAttempts,
		Backoff:     execution.Linear(cfg.Execution.RequestBackoff()),
	}

	b := bank.New(bank.Config{
		ProfileID:      p.ID,
		QuoteCurrency:  p.QuoteCurrency,
		InitialDeposit: p.InitialDeposit,
		Reserve:        p.BankReserve,
		SkipReconcile:  skipReconcile,
	}, store, client, retry)

	exec := execution.NewExecutor(client, b, execution.Config{
		Simulation:   p.IsSimulation(),
		MaxRetries:   cfg.Execution.MaxRetries,
		PollInterval: cfg.Execution.PollInterval(),
		SettleDelay:  cfg.Execution.SettleDelay(),
		Request:      retry,
	})

	slog.Info("profile configured",
		"profile", p.ID,
		"simulation", p.IsSimulation(),
		"quote", p.QuoteCurrency,
		"max_allocation", p.MaxAllocation,
		"interval", p.Interval(),
	)

	return engine.New(engine.Config{
		ProfileID: p.ID,
		Universe: engine.Universe{
			QuoteCurrency: p.QuoteCurrency,
			MinVolume24h:  p.MinVolume24h,
			Whitelist:     p.Whitelist,
			Blacklist:     p.Blacklist,
		},
		ReservePercentage: p.ReservePercentage,
		MaxAllocation:     p.MaxAllocation,
		AutoBuy:           p.AutoBuy,
		Parameters:        p.Parameters,
	}, client, store, b, exec, runLock, retry), nil
}

func sortedTrackers(m map[string]domain.TrackerState) []domain.TrackerState {
	out := make([]domain.TrackerState, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
