package datatypes

// Verdict labels shared across subclaim results, judge output, and the
// final fused verdict.
const (
	LabelTrue       = "TRUE"
	LabelFake       = "FAKE"
	LabelUnverified = "UNVERIFIED"
)

// Entailment vote labels emitted by per-source entailment calls.
const (
	VoteSupports = "SUPPORTS"
	VoteRefutes  = "REFUTES"
	VoteNeutral  = "NEUTRAL"
)

// EvidenceItem is one search result. The scoring fields are zero until the
// item has been through evidence.Score; once scored, items are treated as
// immutable and only replaced wholesale (max-score-wins on URL collisions).
type EvidenceItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Source    string `json:"source,omitempty"`
	Published string `json:"published,omitempty"`

	Score        float64 `json:"score,omitempty"`
	Credibility  float64 `json:"credibility,omitempty"`
	Freshness    float64 `json:"freshness,omitempty"`
	Overlap      float64 `json:"overlap,omitempty"`
	Host         string  `json:"host,omitempty"`
	QueryMatched string  `json:"query_matched,omitempty"`
}

// Subclaim is an atomic assertion extracted from the input claim by the
// planner. Time and Place are optional planner annotations.
type Subclaim struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Time  string `json:"time,omitempty"`
	Place string `json:"place,omitempty"`
}

// Plan is the planner output: subclaims plus search queries.
type Plan struct {
	Subclaims []Subclaim `json:"subclaims"`
	Queries   []string   `json:"queries"`
}

// Vote is a single entailment judgment, either per evidence source
// (SUPPORTS/REFUTES/NEUTRAL) or a single-call subclaim verdict
// (TRUE/FAKE/UNVERIFIED) in budget mode.
type Vote struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
	Mode       string  `json:"mode,omitempty"`
}

// Verdict is a label/confidence/rationale triple. Constructed by the fusion
// engine (or the debate judge) and never mutated afterwards.
type Verdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// SubclaimResult is the resolved verdict for one subclaim.
type SubclaimResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Why        string  `json:"why,omitempty"`
}

// TemporalCheck records a comparison between an explicit year in the claim
// and the consensus year found in the evidence. Read-only input to fusion.
type TemporalCheck struct {
	Field             string   `json:"field"`
	Status            string   `json:"status"`
	ClaimYear         int      `json:"claim"`
	EvidenceConsensus int      `json:"evidence_consensus"`
	SupportingSources []string `json:"supporting_sources,omitempty"`
	Confidence        float64  `json:"confidence"`
	SuggestedClaim    string   `json:"suggested_claim,omitempty"`
}

// SuggestedCorrection is surfaced on the report when a temporal mismatch
// proposes a rewrite of the claim text.
type SuggestedCorrection struct {
	Type          string   `json:"type"`
	From          int      `json:"from"`
	To            int      `json:"to"`
	ProposedClaim string   `json:"proposed_claim,omitempty"`
	Confidence    float64  `json:"confidence"`
	Sources       []string `json:"sources,omitempty"`
}

// RetrievalTrace is the audit trail for one retrieval pass: the literal
// queries, every scored item pre-dedup, the final ranked subset, and the
// scoring formula as prose. Downstream consumers display it; nothing
// re-parses the explanation string.
type RetrievalTrace struct {
	Queries      []string       `json:"queries"`
	Raw          []EvidenceItem `json:"raw"`
	Ranked       []EvidenceItem `json:"ranked"`
	Explanations string         `json:"explanations"`
	CacheNote    string         `json:"cache_note,omitempty"`
}

// ReasoningStep traces the evaluation of one subclaim.
type ReasoningStep struct {
	SubclaimID  string  `json:"subclaim_id,omitempty"`
	Votes       []Vote  `json:"votes,omitempty"`
	FusionNotes string  `json:"fusion_notes,omitempty"`
	Rule        string  `json:"rule,omitempty"`
	Final       Verdict `json:"final"`
	Note        string  `json:"note,omitempty"`
}

// DebateTrace holds the sequential analyst/skeptic/judge exchange.
type DebateTrace struct {
	Analyst string  `json:"analyst"`
	Skeptic string  `json:"skeptic"`
	Judge   Verdict `json:"judge"`
}

// ReportMeta is process metadata attached to every report.
type ReportMeta struct {
	Source          string         `json:"source"`
	Model           string         `json:"model"`
	ModelCalls      int            `json:"model_calls"`
	TimingsMs       map[string]int `json:"timings_ms"`
	EvidenceDomains map[string]int `json:"evidence_domains"`
	SubclaimsCount  int            `json:"subclaims_count"`
	EvidenceCount   int            `json:"evidence_count"`
	LowRPMMode      bool           `json:"low_rpm_mode"`
	RPMIntervalSec  int            `json:"rpm_interval_sec"`
	DebateOn        bool           `json:"debate_on"`
	ConsistencyNote string         `json:"consistency_note,omitempty"`
}

// Report is the terminal output of one verification run.
type Report struct {
	ID                   string                `json:"id"`
	Verdict              string                `json:"verdict"`
	Confidence           float64               `json:"confidence"`
	PartialEval          bool                  `json:"partial_eval"`
	SubclaimResults      []SubclaimResult      `json:"subclaim_results"`
	Evidence             []EvidenceItem        `json:"evidence"`
	TemporalChecks       []TemporalCheck       `json:"temporal_checks,omitempty"`
	SuggestedCorrections []SuggestedCorrection `json:"suggested_corrections,omitempty"`
	RetrievalTrace       RetrievalTrace        `json:"retrieval_trace"`
	ReasoningTrace       []ReasoningStep       `json:"reasoning_trace"`
	Debate               DebateTrace           `json:"adversarial_trace"`
	Keyframes            []string              `json:"keyframes,omitempty"`
	HeatmapPath          string                `json:"heatmap_path,omitempty"`
	ShareCard            string                `json:"share_card,omitempty"`
	PDFReport            string                `json:"pdf_report,omitempty"`
	QueriesUsed          []string              `json:"queries_used"`
	Meta                 ReportMeta            `json:"meta"`
}
