package catalog

import (
	"errors"
	"testing"
)

func TestResolveKnownModel(t *testing.T) {
	r := New(map[string]bool{ProviderOpenAI: true})

	e, err := r.Resolve("gpt-3.5-turbo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Provider != ProviderOpenAI {
		t.Fatalf("provider = %q, want %q", e.Provider, ProviderOpenAI)
	}
}

func TestResolveUnknownModel(t *testing.T) {
	r := New(map[string]bool{ProviderOpenAI: true})

	_, err := r.Resolve("gpt-99-ultra")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
}

// TestListAvailableFiltersByCredential verifies that only providers with a
// configured credential contribute entries, e.g. OpenAI-only config returns
// exactly the four OpenAI models.
func TestListAvailableFiltersByCredential(t *testing.T) {
	r := New(map[string]bool{ProviderOpenAI: true})

	got := r.ListAvailable()
	want := []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo", "gpt-3.5-turbo-16k"}

	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(got), len(want), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("entry %d = %q, want %q", i, got[i].ID, id)
		}
		if got[i].Provider != ProviderOpenAI {
			t.Errorf("entry %d provider = %q, want openai", i, got[i].Provider)
		}
	}
}

// TestListAvailableDeclarationOrder verifies provider ordering: OpenAI models
// precede Anthropic, Anthropic precede Google, Google precede Cohere.
func TestListAvailableDeclarationOrder(t *testing.T) {
	r := New(map[string]bool{
		ProviderOpenAI:    true,
		ProviderAnthropic: true,
		ProviderGoogle:    true,
		ProviderCohere:    true,
	})

	rank := map[string]int{
		ProviderOpenAI:    0,
		ProviderAnthropic: 1,
		ProviderGoogle:    2,
		ProviderCohere:    3,
	}

	got := r.ListAvailable()
	if len(got) != 11 {
		t.Fatalf("got %d entries, want 11", len(got))
	}
	for i := 1; i < len(got); i++ {
		if rank[got[i-1].Provider] > rank[got[i].Provider] {
			t.Fatalf("entries out of declaration order: %q before %q",
				got[i-1].ID, got[i].ID)
		}
	}
}

func TestListAvailableEmptyWhenNoCredentials(t *testing.T) {
	r := New(nil)

	if got := r.ListAvailable(); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}
