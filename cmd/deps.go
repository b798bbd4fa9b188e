package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/searchterm-cli/internal/account"
	"github.com/sells-group/searchterm-cli/internal/store"
	"github.com/sells-group/searchterm-cli/pkg/anthropic"
	"github.com/sells-group/searchterm-cli/pkg/googleads"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "searchterm.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initAdsClient() (googleads.Client, error) {
	creds, err := googleads.LoadCredentials(cfg.GoogleAds.CredentialsPath)
	if err != nil {
		return nil, err
	}
	return googleads.NewClient(creds,
		googleads.WithBaseURL(cfg.GoogleAds.BaseURL),
		googleads.WithAPIVersion(cfg.GoogleAds.APIVersion),
	), nil
}

// initAnthropic returns nil when no API key is configured; the pipeline
// treats a nil client as "LLM stage unavailable".
func initAnthropic() anthropic.Client {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	return anthropic.NewClient(cfg.Anthropic.Key)
}

func lookupAccount(alias string) (account.Account, error) {
	if alias == "" {
		return account.Account{}, eris.New("--account is required")
	}
	registry, err := account.LoadRegistry(cfg.Accounts.Path)
	if err != nil {
		return account.Account{}, err
	}
	return registry.Lookup(alias)
}
