package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"tvwebhook/internal/service"
)

// SelfTest 在不启动 HTTP 服务的情况下，通过完整流水线发送一条合成告警。
func (a *App) SelfTest(ctx context.Context, opts SelfTestOptions) error {
	return a.selfTest(ctx, os.Stdout, opts)
}

func (a *App) selfTest(ctx context.Context, out io.Writer, opts SelfTestOptions) error {
	svc, closeSinks, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	res, err := svc.SelfTest(ctx, opts.Overrides)
	if err != nil {
		return fmt.Errorf("selftest: %w", err)
	}

	return printJSON(out, map[string]any{
		"ok":          true,
		"mode":        "selftest",
		"received_at": res.Key.Name,
		"sent":        res.Sent,
		"parsed":      res.Parsed,
	})
}

// Example prints the alert template for the configured secret.
func (a *App) Example(ctx context.Context) error {
	if err := a.resolveSecret(ctx); err != nil {
		return err
	}
	return printJSON(os.Stdout, service.ExampleMessage(a.Config.Webhook.Secret))
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
