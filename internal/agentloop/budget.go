package agentloop

// Budget accumulates token usage and cost across a loop's iterations
// and enforces the limits of spec §4.5 step 5, grounded on the
// teacher's usage-accounting package.
type Budget struct {
	MaxTokens    int
	MaxBudgetUSD float64
	PricingIn    float64 // USD per million input tokens
	PricingOut   float64 // USD per million output tokens

	totalTokens int
	totalCostUSD float64
}

// Add accumulates one model call's usage and returns the running
// totals.
func (b *Budget) Add(usage UsageMetadata) (totalTokens int, totalCostUSD float64) {
	b.totalTokens += usage.TotalTokens
	b.totalCostUSD += float64(usage.InputTokens) / 1_000_000 * b.PricingIn
	b.totalCostUSD += float64(usage.OutputTokens) / 1_000_000 * b.PricingOut
	return b.totalTokens, b.totalCostUSD
}

// Exceeded reports whether accumulated usage has crossed either
// configured limit, and which.
func (b *Budget) Exceeded() (bool, BudgetExceededKind) {
	if b.MaxTokens > 0 && b.totalTokens >= b.MaxTokens {
		return true, BudgetKindTokens
	}
	if b.MaxBudgetUSD > 0 && b.totalCostUSD >= b.MaxBudgetUSD {
		return true, BudgetKindCost
	}
	return false, BudgetKindNone
}

// FreshnessPct returns accumulated tokens as a fraction of MaxTokens,
// used for the 60%-of-context-window warning (spec §4.5 step 5). If
// MaxTokens is unset, it returns 0.
func (b *Budget) FreshnessPct() float64 {
	if b.MaxTokens <= 0 {
		return 0
	}
	return float64(b.totalTokens) / float64(b.MaxTokens)
}

// TotalTokens returns the running token total.
func (b *Budget) TotalTokens() int { return b.totalTokens }

// TotalCostUSD returns the running cost total.
func (b *Budget) TotalCostUSD() float64 { return b.totalCostUSD }
