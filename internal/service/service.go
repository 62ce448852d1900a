package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tvwebhook/internal/alerting"
	"tvwebhook/internal/cache"
	"tvwebhook/internal/payload"
	"tvwebhook/internal/storage"
)

const (
	modeWebhook  = "webhook"
	modeSelfTest = "selftest"

	defaultSideEffectTimeout = 5 * time.Second
)

// RecordStore is the durable writer behind the pipeline.
type RecordStore interface {
	Persist(ctx context.Context, rec storage.StoredRecord) (storage.RecordKey, error)
}

// Options carry the resolved webhook settings.
type Options struct {
	Secret          string
	SelfTestEnabled bool
	// SideEffectTimeout bounds each mirror write and the outbound notification.
	SideEffectTimeout time.Duration
}

// AckResult is returned for every accepted message. Raw and Parsed are the
// same values written to storage and to the last-message cache.
type AckResult struct {
	Key        storage.RecordKey
	ReceivedAt time.Time
	Raw        payload.IncomingMessage
	Parsed     payload.NormalizedPayload
}

// Service runs the ingestion pipeline: authenticate, normalize, persist,
// cache, log, acknowledge.
type Service struct {
	secret   string
	selfTest bool
	timeout  time.Duration
	store    RecordStore
	mirrors  []storage.RecordSink
	last     *cache.LastMessage
	notifier alerting.Notifier
	stats    *Stats
	logger   zerolog.Logger
}

// New constructs the ingestion service. mirrors and notifier may be nil.
func New(opts Options, store RecordStore, mirrors []storage.RecordSink, last *cache.LastMessage, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	timeout := opts.SideEffectTimeout
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	if last == nil {
		last = cache.NewLastMessage()
	}

	return &Service{
		secret:   opts.Secret,
		selfTest: opts.SelfTestEnabled,
		timeout:  timeout,
		store:    store,
		mirrors:  mirrors,
		last:     last,
		notifier: notifier,
		stats:    &Stats{},
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Last exposes the last-message cache.
func (s *Service) Last() *cache.LastMessage { return s.last }

// Stats exposes the outcome counters.
func (s *Service) Stats() *Stats { return s.stats }

// SelfTestEnabled reports whether SelfTest may run.
func (s *Service) SelfTestEnabled() bool { return s.selfTest }

// IngestBody decodes an HTTP body and runs it through Ingest. A body that is
// not a JSON object fails with ErrNoBody.
func (s *Service) IngestBody(ctx context.Context, body []byte) (AckResult, error) {
	msg, err := payload.DecodeMessage(body)
	if err != nil {
		s.stats.noBody.Add(1)
		logger := s.log(ctx)
		logger.Warn().Err(err).Int("body_bytes", len(body)).Msg("tv alert rejected: no json body")
		return AckResult{}, fmt.Errorf("%w: %v", ErrNoBody, err)
	}
	return s.Ingest(ctx, msg)
}

// Ingest authenticates and accepts one message.
func (s *Service) Ingest(ctx context.Context, msg payload.IncomingMessage) (AckResult, error) {
	return s.ingest(ctx, msg, modeWebhook)
}

func (s *Service) ingest(ctx context.Context, msg payload.IncomingMessage, mode string) (AckResult, error) {
	logger := s.log(ctx)

	if msg.IsEmpty() {
		s.stats.noBody.Add(1)
		logger.Warn().Str("mode", mode).Msg("tv alert rejected: empty body")
		return AckResult{}, ErrNoBody
	}

	if token, ok := msg.Token(); !ok || token != s.secret {
		s.stats.badToken.Add(1)
		logger.Warn().Str("mode", mode).
			Str("token", msg.TokenText()).
			Str("source", msg.Source()).
			Msg("tv alert rejected: bad token")
		return AckResult{}, ErrBadToken
	}

	// Past authentication nothing may fail the request, including a client
	// that has already hung up.
	ctx = context.WithoutCancel(ctx)

	parsed := payload.NormalizePayload(msg.Payload())
	rec := storage.StoredRecord{Raw: msg, Parsed: parsed}

	key, err := s.store.Persist(ctx, rec)
	if err != nil {
		// durability is best-effort; the alert is still acknowledged
		s.stats.storeFailures.Add(1)
		logger.Error().Err(err).Str("key", key.Name).Msg("failed to persist record")
	}
	s.mirror(ctx, logger, key, rec)

	s.last.Set(cache.Snapshot{
		Key:        key.Name,
		ReceivedAt: key.At,
		Raw:        msg,
		Parsed:     parsed,
	})
	s.stats.accepted.Add(1)

	s.logAccepted(logger, mode, key, msg, parsed)
	s.notify(ctx, logger, key, msg, parsed)

	return AckResult{Key: key, ReceivedAt: key.At, Raw: msg, Parsed: parsed}, nil
}

func (s *Service) mirror(ctx context.Context, logger zerolog.Logger, key storage.RecordKey, rec storage.StoredRecord) {
	for _, sink := range s.mirrors {
		if sink == nil {
			continue
		}
		sinkCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := sink.Put(sinkCtx, key, rec)
		cancel()
		if err != nil {
			s.stats.mirrorFailures.Add(1)
			logger.Error().Err(err).Str("sink", sink.Name()).Str("key", key.Name).Msg("failed to mirror record")
		}
	}
}

func (s *Service) notify(ctx context.Context, logger zerolog.Logger, key storage.RecordKey, msg payload.IncomingMessage, parsed payload.NormalizedPayload) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	note := alerting.NewNotification(key.Name, key.At, msg, parsed)
	if err := s.notifier.Notify(notifyCtx, note); err != nil {
		s.stats.notifyFailures.Add(1)
		logger.Error().Err(err).Str("key", key.Name).Msg("failed to forward alert")
	}
}

func (s *Service) logAccepted(logger zerolog.Logger, mode string, key storage.RecordKey, msg payload.IncomingMessage, parsed payload.NormalizedPayload) {
	p := msg.Payload()
	event := logger.Info().
		Str("mode", mode).
		Str("key", key.Name).
		Str("source", msg.Source()).
		Str("ticker", parsed.Get("ticker").Text()).
		Str("interval", p.Get("interval").Text()).
		Str("open", parsed.Get("open").Text()).
		Str("close", parsed.Get("close").Text())
	if mode == modeSelfTest {
		event.Msg("SELFTEST OK")
		return
	}
	event.Str("buy", parsed.Get("buy").Text()).
		Str("sell", parsed.Get("sell").Text()).
		Msg("TV OK")
}

func (s *Service) log(ctx context.Context) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return s.logger.With().Str("request_id", id).Logger()
	}
	return s.logger
}
