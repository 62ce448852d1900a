package service

import (
	"context"

	"tvwebhook/internal/payload"
)

const (
	sourceSelfTest    = "selftest"
	sourceTradingView = "tradingview"
	overrideToken     = "token"
)

// templateField describes one payload field of a synthetic alert. Param is
// the override key when it differs from the field name.
type templateField struct {
	Name        string
	Param       string
	Default     string
	Placeholder string
}

var alertTemplate = []templateField{
	{Name: "ticker", Default: "BTCUSD", Placeholder: "{{ticker}}"},
	{Name: "exchange", Default: "BINANCE", Placeholder: "{{exchange}}"},
	{Name: "interval", Default: "3", Placeholder: "{{interval}}"},
	{Name: "time", Default: "2025-11-06 22:30:00", Placeholder: "{{time}}"},
	{Name: "timenow", Default: "2025-11-06 22:30:01", Placeholder: "{{timenow}}"},
	{Name: "open", Default: "100", Placeholder: "{{open}}"},
	{Name: "close", Default: "101", Placeholder: "{{close}}"},
	{Name: "high", Default: "102", Placeholder: "{{high}}"},
	{Name: "low", Default: "99.5", Placeholder: "{{low}}"},
	{Name: "volume", Default: "12345", Placeholder: "{{volume}}"},
	{Name: "currency", Default: "USD", Placeholder: "{{syminfo.currency}}"},
	{Name: "basecurrency", Default: "BTC", Placeholder: "{{syminfo.basecurrency}}"},
	{Name: "kernel_regression_estimate", Param: "kre", Default: "100.8", Placeholder: `{{plot("Kernel Regression Estimate")}}`},
	{Name: "buy", Default: "0", Placeholder: `{{plot("Buy")}}`},
	{Name: "sell", Default: "1", Placeholder: `{{plot("Sell")}}`},
	{Name: "stopbuy", Default: "0", Placeholder: `{{plot("StopBuy")}}`},
	{Name: "stopsell", Default: "1", Placeholder: `{{plot("StopSell")}}`},
	{Name: "backtest_stream", Param: "bt", Default: "0", Placeholder: `{{plot("Backtest Stream")}}`},
	{Name: "plot_0", Default: "0", Placeholder: "{{plot_0}}"},
	{Name: "plot_1", Default: "0", Placeholder: "{{plot_1}}"},
	{Name: "plot_2", Default: "0", Placeholder: "{{plot_2}}"},
	{Name: "plot_3", Default: "0", Placeholder: "{{plot_3}}"},
	{Name: "plot_4", Default: "0", Placeholder: "{{plot_4}}"},
	{Name: "plot_5", Default: "0", Placeholder: "{{plot_5}}"},
}

// SelfTestResult is an accepted synthetic alert together with what was sent.
type SelfTestResult struct {
	AckResult
	Sent payload.Payload
}

// SelfTest builds a synthetic alert from defaults and overrides and feeds it
// through the same path as an external request. The token override, when
// present, replaces the configured secret so a wrong one is rejected exactly
// like a real caller would be.
func (s *Service) SelfTest(ctx context.Context, overrides map[string]string) (SelfTestResult, error) {
	if !s.selfTest {
		s.stats.selfTestOff.Add(1)
		logger := s.log(ctx)
		logger.Warn().Msg("selftest rejected: disabled")
		return SelfTestResult{}, ErrSelfTestDisabled
	}

	token := s.secret
	if v, ok := overrides[overrideToken]; ok {
		token = v
	}

	sent := SelfTestPayload(overrides)
	ack, err := s.ingest(ctx, payload.NewMessage(token, sourceSelfTest, sent), modeSelfTest)
	if err != nil {
		return SelfTestResult{}, err
	}
	return SelfTestResult{AckResult: ack, Sent: sent}, nil
}

// SelfTestPayload returns the default synthetic payload with overrides
// applied. Overrides are matched on the short parameter name first, then on
// the field name. Unknown override keys are ignored.
func SelfTestPayload(overrides map[string]string) payload.Payload {
	fields := make(map[string]string, len(alertTemplate))
	for _, f := range alertTemplate {
		value := f.Default
		if v, ok := overrides[f.Name]; ok {
			value = v
		}
		if f.Param != "" {
			if v, ok := overrides[f.Param]; ok {
				value = v
			}
		}
		fields[f.Name] = value
	}
	return payload.StringPayload(fields)
}

// Example returns the alert template with the configured secret filled in,
// ready to paste into the alert message box of the sender.
func (s *Service) Example() payload.IncomingMessage {
	return ExampleMessage(s.secret)
}

// ExampleMessage builds the placeholder template for a given secret.
func ExampleMessage(secret string) payload.IncomingMessage {
	fields := make(map[string]string, len(alertTemplate))
	for _, f := range alertTemplate {
		fields[f.Name] = f.Placeholder
	}
	return payload.NewMessage(secret, sourceTradingView, payload.StringPayload(fields))
}
