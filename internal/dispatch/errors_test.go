package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindRetryable(t *testing.T) {
	t.Parallel()
	retryable := []Kind{KindNetwork, KindRateLimit, KindServer}
	terminal := []Kind{KindClient, KindAuth, KindUnknown}

	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestFromStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		kind   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimit},
		{400, KindClient},
		{404, KindClient},
		{422, KindClient},
		{500, KindServer},
		{502, KindServer},
		{503, KindServer},
		{302, KindUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			t.Parallel()
			de := FromStatus("prov", tt.status, "")
			if de.Kind != tt.kind {
				t.Fatalf("FromStatus(%d).Kind = %s, want %s", tt.status, de.Kind, tt.kind)
			}
			if de.Provider != "prov" {
				t.Fatalf("Provider = %q, want prov", de.Provider)
			}
		})
	}
}

func TestClassifyDeadlineIsNetwork(t *testing.T) {
	t.Parallel()
	de := Classify("prov", context.DeadlineExceeded)
	if de.Kind != KindNetwork {
		t.Fatalf("Kind = %s, want network", de.Kind)
	}
	if !de.Retryable() {
		t.Fatal("deadline expiry must be retryable")
	}
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	t.Parallel()
	orig := NewError(KindAuth, "prov", "bad token")
	wrapped := fmt.Errorf("call failed: %w", orig)

	de := Classify("other", wrapped)
	if de.Kind != KindAuth || de.Provider != "prov" {
		t.Fatalf("got %s/%s, want auth/prov", de.Kind, de.Provider)
	}
}

func TestClassifyFillsMissingProvider(t *testing.T) {
	t.Parallel()
	de := Classify("prov", &Error{Kind: KindServer, Message: "boom"})
	if de.Provider != "prov" {
		t.Fatalf("Provider = %q, want prov", de.Provider)
	}
}

func TestClassifyUnknown(t *testing.T) {
	t.Parallel()
	de := Classify("prov", errors.New("something odd"))
	if de.Kind != KindUnknown {
		t.Fatalf("Kind = %s, want unknown", de.Kind)
	}
	if de.Retryable() {
		t.Fatal("unknown errors must not be retryable")
	}
}

func TestClassifyConnectionHints(t *testing.T) {
	t.Parallel()
	for _, msg := range []string{"read tcp: connection reset by peer", "dial tcp: no such host"} {
		de := Classify("prov", errors.New(msg))
		if de.Kind != KindNetwork {
			t.Errorf("Classify(%q).Kind = %s, want network", msg, de.Kind)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	de := WrapError(KindNetwork, "prov", errPlain)
	if !errors.Is(de, errPlain) {
		t.Fatal("wrapped cause should be reachable via errors.Is")
	}
}
