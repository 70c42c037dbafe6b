package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/storefront-backend/pkg/bigquery"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{PurchasesTable: " "}); err == nil {
		t.Fatal("expected error when purchases table missing")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	if err != nil || !nj.Valid || nj.JSONVal != `{"foo":"bar"}` {
		t.Fatalf("unexpected map encoding %+v %v", nj, err)
	}
	if nj, _ := EncodeJSON(nil); nj.Valid {
		t.Fatal("nil should encode as NULL")
	}
	if nj, _ := EncodeJSON(json.RawMessage(nil)); nj.Valid {
		t.Fatal("empty raw message should encode as NULL")
	}
	raw := json.RawMessage(`{"foo":"baz"}`)
	if nj, _ := EncodeJSON(raw); nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %s", nj.JSONVal)
	}
}

func TestRetriesTransientError(t *testing.T) {
	w, fake := fakeWriter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	if err := w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.calls) != 2 || fake.calls[1].table != "purchases" {
		t.Fatalf("unexpected calls %+v", fake.calls)
	}
	if len(w.pending) != 0 {
		t.Fatal("expected queue to drain")
	}
}

func TestBatching(t *testing.T) {
	w, fake := fakeWriter(t)
	w.batchSize = 2

	_ = w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "1"})
	if len(fake.calls) != 0 {
		t.Fatalf("expected no insert before batch is full, got %d", len(fake.calls))
	}
	_ = w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "2"})
	if len(fake.calls) != 1 || fake.calls[0].rowCount != 2 {
		t.Fatalf("expected one insert of two rows, got %+v", fake.calls)
	}
}

func TestFailedBatchKeepsEarlierRows(t *testing.T) {
	w, fake := fakeWriter(t)
	w.batchSize = 2
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	_ = w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "1"})
	if err := w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "2"}); err == nil {
		t.Fatal("expected error")
	}
	if len(w.pending) != 1 || w.pending[0].EventID != "1" {
		t.Fatalf("expected only the earlier row to stay queued, got %+v", w.pending)
	}
}

func TestFlush(t *testing.T) {
	w, fake := fakeWriter(t)
	w.batchSize = 10
	_ = w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "1"})

	if err := w.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(fake.calls) != 1 || len(w.pending) != 0 {
		t.Fatalf("expected a single insert and empty queue, calls=%d pending=%d", len(fake.calls), len(w.pending))
	}
	if err := w.Flush(context.Background()); err != nil || len(fake.calls) != 1 {
		t.Fatal("flushing an empty queue should be a no-op")
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	w, fake := fakeWriter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	if err := w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "1"}); err == nil {
		t.Fatal("expected permanent error to surface")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	w, fake := fakeWriter(t)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, nil}

	err := w.InsertPurchase(context.Background(), types.PurchaseRow{EventID: "1"})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if len(fake.calls) != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, len(fake.calls))
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"all rows transient", cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&googleapi.Error{Code: 503}}}}, true},
		{"one row permanent", cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: 503}}},
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: 400}}},
		}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := isTransient(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	var err error
	if i := len(f.calls); i < len(f.responses) {
		err = f.responses[i]
	}
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	return err
}

func fakeWriter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	w, err := New(&pkgbigquery.Client{}, Config{
		PurchasesTable: "purchases",
		RetryPolicy:    RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	fake := &fakeInserter{}
	w.client = fake
	return w, fake
}
