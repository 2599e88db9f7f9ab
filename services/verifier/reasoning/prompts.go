// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reasoning

import (
	"fmt"
	"strings"

	"github.com/agentra-ai/factcheck/services/verifier/datatypes"
)

// debateEvidenceCap limits how many ranked items the debate prompts carry.
const debateEvidenceCap = 12

const plannerPromptTemplate = `You are a multi-modal fact-checking planner.

INPUT CONTENT:
%s

TASK:
1) Extract core claim(s) as short, atomic subclaims.
2) Detect entities and time/place (when present).
3) Produce 3-5 diverse web search queries (for live search).
RESPONSE:
Return ONLY valid JSON (no extra text):
{
  "subclaims": [{"id":"C1","text":"...","time":"...","place":"..."}],
  "queries": ["...", "..."]
}
`

const judgePromptTemplate = `You are a rigorous fact-checking judge.

SUBCLAIM:
"%s"

EVIDENCE (independent sources, may agree or conflict):
%s

TASK:
- Decide TRUE, FAKE, or UNVERIFIED based ONLY on the above evidence snippets.
- Provide a short rationale (2-3 sentences).
- Provide a confidence 0..1 based on agreement, quality, and recency.

RESPONSE:
Return ONLY valid JSON:
{
  "label": "TRUE|FAKE|UNVERIFIED",
  "confidence": 0.0,
  "rationale": "..."
}
`

const entailPromptTemplate = `Decide whether the SOURCE snippet entails the SUBCLAIM.

SUBCLAIM:
"%s"

SOURCE:
Title: %s
Snippet: %s
URL: %s
Meta: credibility=%.3f freshness=%.3f

Return ONLY valid JSON:
{
  "label": "SUPPORTS|REFUTES|NEUTRAL",
  "confidence": 0.0,
  "rationale": "..."
}
`

const analystPromptTemplate = `ROLE: Analyst
Build the best confirming case for the subclaims using the evidence.

SUBCLAIMS:
%s

EVIDENCE:
%s

OUTPUT:
- Bullet points only.
`

const skepticPromptTemplate = `ROLE: Skeptic
Build the strongest refutation and highlight weaknesses.

SUBCLAIMS:
%s

EVIDENCE:
%s

OUTPUT:
- Bullet points only.
`

const debateJudgePromptTemplate = `ROLE: Judge
Read Analyst and Skeptic notes and issue a final verdict for the entire claim set.

RESPONSE:
Return ONLY valid JSON:
{
  "label": "TRUE|FAKE|UNVERIFIED",
  "confidence": 0.0,
  "rationale": "..."
}

Analyst:
%s

Skeptic:
%s
`

// judgeSourcesBlock formats the whole evidence pool for the single-call
// subclaim judge.
func judgeSourcesBlock(evidence []datatypes.EvidenceItem) string {
	lines := make([]string, 0, len(evidence))
	for _, e := range evidence {
		lines = append(lines, fmt.Sprintf("- %s: %s (URL: %s)", e.Title, e.Snippet, e.URL))
	}
	return strings.Join(lines, "\n\n")
}

// debateEvidenceBlock formats the top ranked items for debate prompts.
func debateEvidenceBlock(evidence []datatypes.EvidenceItem) string {
	if len(evidence) > debateEvidenceCap {
		evidence = evidence[:debateEvidenceCap]
	}
	lines := make([]string, 0, len(evidence))
	for _, e := range evidence {
		lines = append(lines, fmt.Sprintf("* %s: %s (%s)", e.Title, e.Snippet, e.URL))
	}
	return strings.Join(lines, "\n")
}

func claimsBlock(subclaims []datatypes.Subclaim) string {
	lines := make([]string, 0, len(subclaims))
	for _, c := range subclaims {
		id := c.ID
		if id == "" {
			id = "C?"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", id, c.Text))
	}
	return strings.Join(lines, "\n")
}
