package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tvwebhook/internal/alerting"
	"tvwebhook/internal/cache"
	"tvwebhook/internal/storage"
)

const testSecret = "s3cret"

func newTestService(t *testing.T, selfTest bool) (*Service, *storage.FileStore) {
	t.Helper()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "logs"))
	svc := New(Options{Secret: testSecret, SelfTestEnabled: selfTest}, store, nil, cache.NewLastMessage(), nil, zerolog.Nop())
	return svc, store
}

func recordFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "tv_*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func TestIngestAcceptsAndNormalizes(t *testing.T) {
	svc, store := newTestService(t, false)

	body := []byte(`{"token":"s3cret","source":"tv","payload":{"ticker":"BTCUSD","open":"100.5","close":"1,012.75","buy":"","interval":"3"}}`)
	ack, err := svc.IngestBody(context.Background(), body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if f, ok := ack.Parsed.Get("open").Float(); !ok || f != 100.5 {
		t.Fatalf("open = %v, %v", f, ok)
	}
	if f, ok := ack.Parsed.Get("close").Float(); !ok || f != 1012.75 {
		t.Fatalf("close = %v, %v", f, ok)
	}
	if !ack.Parsed.Get("buy").IsUnparseable() {
		t.Fatalf("empty buy should be unparseable")
	}
	if v, _ := ack.Parsed.Get("ticker").Value(); v.Text() != "BTCUSD" {
		t.Fatalf("ticker = %q", v.Text())
	}
	if ack.Key.Name == "" || ack.ReceivedAt.IsZero() {
		t.Fatalf("ack must carry a key and time: %+v", ack.Key)
	}

	files := recordFiles(t, store.Dir())
	if len(files) != 1 {
		t.Fatalf("expected 1 record file, got %d", len(files))
	}
	if files[0] != store.Path(ack.Key) {
		t.Fatalf("record written to %s, ack key %s", files[0], ack.Key)
	}

	loaded, err := storage.ReadRecord(files[0])
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if tok, _ := loaded.Record.Raw.Token(); tok != testSecret {
		t.Fatalf("stored raw token = %q", tok)
	}
	if f, _ := loaded.Record.Parsed.Get("close").Float(); f != 1012.75 {
		t.Fatalf("stored close = %v", f)
	}

	snap, ok := svc.Last().Get()
	if !ok {
		t.Fatal("cache should hold the accepted message")
	}
	if snap.Key != ack.Key.Name || !snap.ReceivedAt.Equal(ack.ReceivedAt) {
		t.Fatalf("cache key %s, ack key %s", snap.Key, ack.Key.Name)
	}
	if got := svc.Stats().Snapshot().Accepted; got != 1 {
		t.Fatalf("accepted = %d", got)
	}
}

func TestIngestRejectsMissingBody(t *testing.T) {
	svc, store := newTestService(t, false)

	for _, body := range []string{"", "not json", "[]", "{}", "null"} {
		_, err := svc.IngestBody(context.Background(), []byte(body))
		if !errors.Is(err, ErrNoBody) {
			t.Fatalf("%q: expected ErrNoBody, got %v", body, err)
		}
		if !IsValidation(err) {
			t.Fatalf("%q: should classify as validation", body)
		}
	}

	if files := recordFiles(t, store.Dir()); len(files) != 0 {
		t.Fatalf("rejected bodies must not be stored: %v", files)
	}
	if _, ok := svc.Last().Get(); ok {
		t.Fatal("rejected bodies must not reach the cache")
	}
	if got := svc.Stats().Snapshot().NoBody; got != 5 {
		t.Fatalf("no_body = %d", got)
	}
}

func TestIngestAuthGate(t *testing.T) {
	cases := map[string]string{
		"wrong":   `{"token":"nope","payload":{"ticker":"X"}}`,
		"missing": `{"payload":{"ticker":"X"}}`,
		"numeric": `{"token":123,"payload":{"ticker":"X"}}`,
		"case":    `{"token":"S3CRET","payload":{"ticker":"X"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store := newTestService(t, false)
			_, err := svc.IngestBody(context.Background(), []byte(body))
			if !errors.Is(err, ErrBadToken) || !IsAuth(err) {
				t.Fatalf("expected ErrBadToken, got %v", err)
			}
			if files := recordFiles(t, store.Dir()); len(files) != 0 {
				t.Fatalf("unauthenticated message stored: %v", files)
			}
			if _, ok := svc.Last().Get(); ok {
				t.Fatal("unauthenticated message cached")
			}
		})
	}
}

type failingStore struct {
	keys *storage.KeyGen
}

func (f *failingStore) Persist(context.Context, storage.StoredRecord) (storage.RecordKey, error) {
	return f.keys.Next(), errors.New("disk full")
}

func TestIngestStoreFailureStillAcknowledges(t *testing.T) {
	svc := New(Options{Secret: testSecret}, &failingStore{keys: storage.NewKeyGen()}, nil, nil, nil, zerolog.Nop())

	ack, err := svc.IngestBody(context.Background(), []byte(`{"token":"s3cret","payload":{"close":"5"}}`))
	if err != nil {
		t.Fatalf("store failure must not fail the request: %v", err)
	}
	if ack.Key.Name == "" {
		t.Fatal("ack should still carry a key")
	}
	if _, ok := svc.Last().Get(); !ok {
		t.Fatal("cache must be updated even when the store fails")
	}
	stats := svc.Stats().Snapshot()
	if stats.StoreFailures != 1 || stats.Accepted != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Put(_ context.Context, key storage.RecordKey, _ storage.StoredRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key.Name)
	return r.err
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

func TestIngestSideEffectsAreBestEffort(t *testing.T) {
	ok := &recordingSink{}
	broken := &recordingSink{err: errors.New("connection refused")}
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	store := storage.NewFileStore(t.TempDir())

	svc := New(Options{Secret: testSecret}, store, []storage.RecordSink{broken, ok}, nil, notifier, zerolog.Nop())

	ack, err := svc.IngestBody(context.Background(), []byte(`{"token":"s3cret","payload":{"ticker":"ETHUSD","close":"2500"}}`))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(ok.keys) != 1 || ok.keys[0] != ack.Key.Name {
		t.Fatalf("healthy mirror keys = %v", ok.keys)
	}
	if len(broken.keys) != 1 {
		t.Fatalf("broken mirror should still be attempted")
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Ticker != "ETHUSD" {
		t.Fatalf("notifications = %+v", notifier.notes)
	}

	stats := svc.Stats().Snapshot()
	if stats.MirrorFailures != 1 || stats.NotifyFailures != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestIngestIgnoresCancelledRequestAfterAuth(t *testing.T) {
	svc, store := newTestService(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ack, err := svc.IngestBody(ctx, []byte(`{"token":"s3cret","payload":{"ticker":"X"}}`))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := os.Stat(store.Path(ack.Key)); err != nil {
		t.Fatalf("record should be written despite cancellation: %v", err)
	}
}

func TestIngestConcurrentDistinctKeys(t *testing.T) {
	svc, store := newTestService(t, false)

	const n = 32
	var wg sync.WaitGroup
	keys := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"token":"s3cret","payload":{"ticker":"T%d","close":"%d"}}`, i, i)
			ack, err := svc.IngestBody(context.Background(), []byte(body))
			if err != nil {
				t.Errorf("ingest %d: %v", i, err)
				return
			}
			keys <- ack.Key.Name
		}(i)
	}
	wg.Wait()
	close(keys)

	seen := map[string]bool{}
	for k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
	}
	if files := recordFiles(t, store.Dir()); len(files) != n {
		t.Fatalf("expected %d files, got %d", n, len(files))
	}

	snap, ok := svc.Last().Get()
	if !ok {
		t.Fatal("cache empty")
	}
	raw, _ := snap.Raw.Payload().Get("ticker").Str()
	parsed, _ := snap.Parsed.Get("ticker").Value()
	if raw != parsed.Text() {
		t.Fatalf("torn cache snapshot: raw %s parsed %s", raw, parsed.Text())
	}
}

func TestSelfTestDisabledHasNoSideEffects(t *testing.T) {
	svc, store := newTestService(t, false)

	_, err := svc.SelfTest(context.Background(), map[string]string{"token": testSecret, "ticker": "ETHUSD"})
	if !errors.Is(err, ErrSelfTestDisabled) {
		t.Fatalf("expected ErrSelfTestDisabled, got %v", err)
	}
	if files := recordFiles(t, store.Dir()); len(files) != 0 {
		t.Fatalf("disabled selftest stored records: %v", files)
	}
	if _, ok := svc.Last().Get(); ok {
		t.Fatal("disabled selftest touched the cache")
	}
	if got := svc.Stats().Snapshot().SelfTestOff; got != 1 {
		t.Fatalf("selftest_disabled = %d", got)
	}
}

func TestSelfTestDefaultsAndOverrides(t *testing.T) {
	svc, store := newTestService(t, true)

	res, err := svc.SelfTest(context.Background(), map[string]string{
		"ticker": "ETHUSD",
		"close":  "2,500.25",
		"kre":    "2499",
		"bt":     "1",
		"bogus":  "ignored",
	})
	if err != nil {
		t.Fatalf("selftest: %v", err)
	}

	if s, _ := res.Sent.Get("ticker").Str(); s != "ETHUSD" {
		t.Fatalf("sent ticker = %q", s)
	}
	if s, _ := res.Sent.Get("open").Str(); s != "100" {
		t.Fatalf("default open = %q", s)
	}
	if _, ok := res.Sent["bogus"]; ok {
		t.Fatal("unknown overrides must not leak into the payload")
	}
	if f, _ := res.Parsed.Get("close").Float(); f != 2500.25 {
		t.Fatalf("parsed close = %v", f)
	}
	if f, _ := res.Parsed.Get("kernel_regression_estimate").Float(); f != 2499 {
		t.Fatalf("kre alias not applied: %v", f)
	}
	if f, _ := res.Parsed.Get("backtest_stream").Float(); f != 1 {
		t.Fatalf("bt alias not applied: %v", f)
	}
	if res.Raw.Source() != "selftest" {
		t.Fatalf("source = %q", res.Raw.Source())
	}
	if files := recordFiles(t, store.Dir()); len(files) != 1 {
		t.Fatalf("selftest should persist one record, got %d", len(files))
	}
}

func TestSelfTestBadToken(t *testing.T) {
	svc, store := newTestService(t, true)

	_, err := svc.SelfTest(context.Background(), map[string]string{"token": "wrong"})
	if !errors.Is(err, ErrBadToken) {
		t.Fatalf("expected ErrBadToken, got %v", err)
	}
	if files := recordFiles(t, store.Dir()); len(files) != 0 {
		t.Fatalf("bad-token selftest stored records: %v", files)
	}
}

func TestExampleMessage(t *testing.T) {
	svc, _ := newTestService(t, false)

	msg := svc.Example()
	if tok, _ := msg.Token(); tok != testSecret {
		t.Fatalf("example token = %q", tok)
	}
	if s, _ := msg.Payload().Get("buy").Str(); s != `{{plot("Buy")}}` {
		t.Fatalf("buy placeholder = %q", s)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields, _ := decoded["payload"].(map[string]any)
	if len(fields) != len(alertTemplate) {
		t.Fatalf("template has %d fields, want %d", len(fields), len(alertTemplate))
	}
	if fields["currency"] != "{{syminfo.currency}}" {
		t.Fatalf("currency placeholder = %v", fields["currency"])
	}
}
