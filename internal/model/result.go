package model

import "time"

// ResultStatus represents the state of a single provider's answer.
type ResultStatus string

const (
	ResultStatusProcessing ResultStatus = "processing"
	ResultStatusSuccess    ResultStatus = "success"
	ResultStatusError      ResultStatus = "error"
)

// ProviderResult is one provider's outcome for one prompt. The row is
// created with status processing before the provider call goes out, so a
// partial fan-out failure is individually visible; after the call settles
// it transitions to success or error and is never mutated again.
type ProviderResult struct {
	ID            string       `json:"id"`
	PromptID      string       `json:"prompt_id"`
	ProjectID     string       `json:"project_id"`
	Provider      string       `json:"provider"`
	Status        ResultStatus `json:"status"`
	Text          string       `json:"text,omitempty"`
	TokensUsed    int          `json:"tokens_used"`
	CostUSD       float64      `json:"cost_usd"`
	LatencyMs     int64        `json:"latency_ms"`
	SourceURLs    []string     `json:"source_urls,omitempty"`
	UsedWebSearch bool         `json:"used_web_search"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// EntityType distinguishes the tracked brand from its competitors.
type EntityType string

const (
	EntityBrand      EntityType = "brand"
	EntityCompetitor EntityType = "competitor"
)

// Citation records a sentence-level match of a tracked entity inside a
// provider result's text. Append-only, owned by the executor that wrote it.
type Citation struct {
	ID           string     `json:"id"`
	ResultID     string     `json:"result_id"`
	ProjectID    string     `json:"project_id"`
	EntityName   string     `json:"entity_name"`
	EntityType   EntityType `json:"entity_type"`
	MatchedText  string     `json:"matched_text"`
	Context      string     `json:"context,omitempty"`
	Position     int        `json:"position"`
	Confidence   float64    `json:"confidence"`
	SourceURL    string     `json:"source_url,omitempty"`
	SourceDomain string     `json:"source_domain,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SentimentLabel classifies the tone of an entity mention.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is one entity's sentiment for one provider result. Append-only;
// at most one row exists per (result, entity) pair, which is what makes
// sentiment scoring safe to re-run after a crash.
type Sentiment struct {
	ID            string         `json:"id"`
	ResultID      string         `json:"result_id"`
	ProjectID     string         `json:"project_id"`
	EntityName    string         `json:"entity_name"`
	Label         SentimentLabel `json:"label"`
	Score         float64        `json:"score"`
	PositiveAttrs []string       `json:"positive_attrs,omitempty"`
	NegativeAttrs []string       `json:"negative_attrs,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
