package pipeline

// Log field constants
const (
	LogFieldRunID  = "run_id"
	LogFieldSource = "source"
	LogFieldURL    = "url"
	LogFieldReason = "reason"
	LogFieldKind   = "kind"
	LogFieldCount  = "count"
	LogFieldItemID = "item_id"
)

const (
	// DefaultConcurrency bounds parallel fetch and processing work.
	DefaultConcurrency = 4

	// TitleFallbackChars is how much body text stands in for a missing title.
	TitleFallbackChars = 90

	titleEllipsis = "…"

	// scorePrecision rounds persisted scores to three decimals.
	scorePrecision = 1000
)
