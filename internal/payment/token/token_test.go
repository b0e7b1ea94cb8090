package token

import (
	"context"
	"net/url"
	"testing"

	"github.com/gateflow/internal/payment"
)

func TestQueryProviderRoundTrip(t *testing.T) {
	p := NewQueryProvider("")
	invoice := &payment.Invoice{TrackingNumber: 123, CallbackURL: "https://shop.example.com/verify?order=9"}

	tok, err := p.ProvideToken(context.Background(), invoice)
	if err != nil {
		t.Fatalf("provide token failed: %v", err)
	}
	if len(tok) != 32 {
		t.Fatalf("token should be a 32-char hex uuid, got %q", tok)
	}

	parsed, err := url.Parse(invoice.CallbackURL)
	if err != nil {
		t.Fatalf("parse callback url failed: %v", err)
	}
	if parsed.Query().Get(DefaultQueryName) != tok {
		t.Fatalf("callback url should carry the token: %s", invoice.CallbackURL)
	}
	if parsed.Query().Get("order") != "9" {
		t.Fatalf("existing query should be kept: %s", invoice.CallbackURL)
	}

	ctx := payment.WithCallback(context.Background(), payment.CallbackFromValues(parsed.Query()))
	got, err := p.RetrieveToken(ctx)
	if err != nil {
		t.Fatalf("retrieve token failed: %v", err)
	}
	if got != tok {
		t.Fatalf("retrieved token want %s got %s", tok, got)
	}
	again, _ := p.RetrieveToken(ctx)
	if again != got {
		t.Fatalf("retrieve should be idempotent")
	}
}

func TestQueryProviderUniqueTokens(t *testing.T) {
	p := NewQueryProvider("tk")
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		tok, _ := p.ProvideToken(context.Background(), &payment.Invoice{})
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestQueryProviderRetrieveWithoutCallback(t *testing.T) {
	p := NewQueryProvider("tk")
	got, err := p.RetrieveToken(context.Background())
	if err != nil || got != "" {
		t.Fatalf("retrieve without callback want empty got %q err=%v", got, err)
	}
}

func TestRandomTrackingNumberRespectsMinimum(t *testing.T) {
	g := NewRandomTrackingNumber(0)
	if g.Minimum != DefaultMinimumTrackingNumber {
		t.Fatalf("minimum want %d got %d", DefaultMinimumTrackingNumber, g.Minimum)
	}
	for i := 0; i < 100; i++ {
		n, err := g.Next()
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if n < DefaultMinimumTrackingNumber {
			t.Fatalf("tracking number %d below minimum", n)
		}
	}

	if _, err := (&RandomTrackingNumber{}).Next(); err != ErrInvalidTrackingRange {
		t.Fatalf("zero minimum want ErrInvalidTrackingRange got %v", err)
	}
}
