package orders

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"
)

var orderNumberPattern = regexp.MustCompile(`^PN-\d{4}-[A-Z0-9]{3}$`)

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		number, err := NewOrderNumber(now, nil)
		if err != nil {
			t.Fatalf("NewOrderNumber: %v", err)
		}
		if !orderNumberPattern.MatchString(number) {
			t.Fatalf("unexpected order number %q", number)
		}
		if number[:8] != "PN-1403-" {
			t.Fatalf("expected day/month prefix, got %q", number)
		}
	}
}

func TestNewOrderNumberDeterministicReader(t *testing.T) {
	now := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	first, err := NewOrderNumber(now, bytes.NewReader(bytes.Repeat([]byte{0}, 64)))
	if err != nil {
		t.Fatalf("NewOrderNumber: %v", err)
	}
	if first != "PN-0201-AAA" {
		t.Fatalf("expected PN-0201-AAA, got %q", first)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestNewOrderNumberReaderError(t *testing.T) {
	if _, err := NewOrderNumber(time.Now(), failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}
