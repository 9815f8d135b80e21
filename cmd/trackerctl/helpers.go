package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/app"
	"github.com/noah-isme/civic-tracker-api/pkg/logger"
)

// withApp builds the application against the configured data directory, runs
// fn and writes a final snapshot.
func withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	cfg := loadConfig(cliViper)
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(cfg, logr)
	if err != nil {
		return err
	}
	if err := a.Start(ctx, false); err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logr.Error("final snapshot failed", zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
