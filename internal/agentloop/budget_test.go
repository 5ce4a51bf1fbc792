package agentloop

import "testing"

func TestBudget_ExceedsOnTokens(t *testing.T) {
	b := &Budget{MaxTokens: 100}
	b.Add(UsageMetadata{TotalTokens: 50})
	if exceeded, _ := b.Exceeded(); exceeded {
		t.Fatal("should not be exceeded yet")
	}
	b.Add(UsageMetadata{TotalTokens: 60})
	exceeded, kind := b.Exceeded()
	if !exceeded || kind != BudgetKindTokens {
		t.Fatalf("expected token budget exceeded, got exceeded=%v kind=%v", exceeded, kind)
	}
}

func TestBudget_ExceedsOnCost(t *testing.T) {
	b := &Budget{MaxBudgetUSD: 1.0, PricingIn: 1_000_000, PricingOut: 1_000_000}
	b.Add(UsageMetadata{InputTokens: 1, OutputTokens: 1})
	exceeded, kind := b.Exceeded()
	if !exceeded || kind != BudgetKindCost {
		t.Fatalf("expected cost budget exceeded, got exceeded=%v kind=%v", exceeded, kind)
	}
}

func TestBudget_FreshnessPct(t *testing.T) {
	b := &Budget{MaxTokens: 1000}
	b.Add(UsageMetadata{TotalTokens: 600})
	if pct := b.FreshnessPct(); pct < 0.6 {
		t.Fatalf("expected freshness >= 0.6, got %v", pct)
	}
}
