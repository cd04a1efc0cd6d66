package usage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTableCostKnownModel(t *testing.T) {
	costFn := TableCost(nil)

	// gpt-3.5-turbo: 50 c/MTok prompt, 150 c/MTok completion.
	cents, err := costFn("gpt-3.5-turbo", 2_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("TableCost: %v", err)
	}
	if want := int64(100 + 150); cents != want {
		t.Errorf("cost = %d cents, want %d", cents, want)
	}
}

func TestTableCostUnknownModel(t *testing.T) {
	costFn := TableCost(nil)

	if _, err := costFn("nonexistent-model", 100, 100); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestTableCostOverrides(t *testing.T) {
	costFn := TableCost(map[string]Price{
		"gpt-4":        {PromptCentsPerMTok: 1, CompletionCentsPerMTok: 1},
		"custom-model": {PromptCentsPerMTok: 500, CompletionCentsPerMTok: 500},
	})

	cents, err := costFn("gpt-4", 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("TableCost: %v", err)
	}
	if cents != 2 {
		t.Errorf("overridden gpt-4 cost = %d, want 2", cents)
	}

	cents, err = costFn("custom-model", 1_000_000, 0)
	if err != nil {
		t.Fatalf("TableCost: %v", err)
	}
	if cents != 500 {
		t.Errorf("custom-model cost = %d, want 500", cents)
	}
}

func TestLoadPriceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	data := []byte(`gpt-4:
  prompt_cents_per_mtok: 1
  completion_cents_per_mtok: 2
custom-model:
  prompt_cents_per_mtok: 500
  completion_cents_per_mtok: 600
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write price file: %v", err)
	}

	prices, err := LoadPriceFile(path)
	if err != nil {
		t.Fatalf("LoadPriceFile: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("got %d entries, want 2", len(prices))
	}
	if p := prices["gpt-4"]; p.PromptCentsPerMTok != 1 || p.CompletionCentsPerMTok != 2 {
		t.Errorf("gpt-4 = %+v, want {1 2}", p)
	}
	if p := prices["custom-model"]; p.PromptCentsPerMTok != 500 || p.CompletionCentsPerMTok != 600 {
		t.Errorf("custom-model = %+v, want {500 600}", p)
	}
}

func TestLoadPriceFileMissing(t *testing.T) {
	if _, err := LoadPriceFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTableCostSmallCountsRoundDown(t *testing.T) {
	costFn := TableCost(nil)

	// 10 prompt + 20 completion tokens of gpt-3.5-turbo is well below a cent.
	cents, err := costFn("gpt-3.5-turbo", 10, 20)
	if err != nil {
		t.Fatalf("TableCost: %v", err)
	}
	if cents != 0 {
		t.Errorf("cost = %d cents, want 0 for tiny usage", cents)
	}
}
