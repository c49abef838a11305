/*
 * Copyright 2025 Threatdeck Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Placeholder text substituted for absent narrative fields. Rendering never
// sees an empty or null field.
const (
	PlaceholderTitle          = "Untitled Issue"
	PlaceholderSummary        = "No summary available"
	PlaceholderRecommendation = "No recommendations available"
)

// RawSnapshot mirrors the loose wire shape of GET /api/dashboard. Fields
// the backend may omit or mistype are raw here and coerced in Normalize.
type RawSnapshot struct {
	LastRun           string           `json:"last_run"`
	Status            string           `json:"status"`
	Summary           string           `json:"summary"`
	ActiveAPIKeyIndex int              `json:"active_api_key_index"`
	Settings          *Settings        `json:"settings"`
	Stats             Stats            `json:"stats"`
	Issues            []RawIssue       `json:"issues"`
	LogTrend          []TrendPoint     `json:"log_trend"`
	RuleDistribution  RuleDistribution `json:"rule_distribution"`
}

// RawIssue mirrors one wire issue. related_logs entries are either bare
// string ids or objects, so they stay raw until NormalizeLogRef.
type RawIssue struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary"`
	Recommendation string            `json:"recommendation"`
	Severity       string            `json:"severity"`
	Timestamp      string            `json:"timestamp"`
	RelatedLogs    []json.RawMessage `json:"related_logs"`
}

// RuleDistribution decodes a JSON object while preserving key order.
// encoding/json maps randomize iteration order; the dashboard needs the
// backend's first-seen order as the tiebreaker for the rule chart.
type RuleDistribution []RuleCount

func (r *RuleDistribution) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if tok == nil {
		*r = nil
		return nil
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("rule_distribution: expected object, got %v", tok)
	}

	out := make(RuleDistribution, 0)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("rule_distribution: non-string key %v", keyTok)
		}

		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("rule_distribution: count for %q: %w", key, err)
		}

		out = append(out, RuleCount{Rule: key, Count: count})
	}

	*r = out

	return nil
}

// timestampLayouts covers the backend's datetime spellings: RFC 3339 and
// Python's zone-less isoformat.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}

// Normalize coerces a raw payload into the canonical Snapshot. Data-shape
// problems are resolved by substitution, never returned as errors.
func (raw *RawSnapshot) Normalize() *Snapshot {
	snap := &Snapshot{
		Status:            normalizeStatus(raw.Status),
		Summary:           raw.Summary,
		ActiveAPIKeyIndex: raw.ActiveAPIKeyIndex,
		Stats:             raw.Stats,
		LogTrend:          raw.LogTrend,
		RuleDistribution:  []RuleCount(raw.RuleDistribution),
	}

	if snap.ActiveAPIKeyIndex < 0 {
		snap.ActiveAPIKeyIndex = 0
	}

	if raw.Settings != nil {
		snap.Settings = *raw.Settings
	}

	if raw.LastRun != "" {
		if ts, ok := parseTimestamp(raw.LastRun); ok {
			snap.LastRun = &ts
		}
	}

	snap.Issues = make([]Issue, 0, len(raw.Issues))
	for i := range raw.Issues {
		snap.Issues = append(snap.Issues, raw.Issues[i].Normalize())
	}

	return snap
}

func normalizeStatus(raw string) Status {
	if raw == "" {
		return StatusUnknown
	}

	// Unknown strings pass through as display text.
	return Status(raw)
}

// Normalize coerces one raw issue, substituting defaults for absent fields.
func (raw *RawIssue) Normalize() Issue {
	issue := Issue{
		ID:             raw.ID,
		Title:          raw.Title,
		Summary:        raw.Summary,
		Recommendation: raw.Recommendation,
		Severity:       ParseSeverity(raw.Severity),
	}

	if issue.Title == "" {
		issue.Title = PlaceholderTitle
	}

	if issue.Summary == "" {
		issue.Summary = PlaceholderSummary
	}

	if issue.Recommendation == "" {
		issue.Recommendation = PlaceholderRecommendation
	}

	if ts, ok := parseTimestamp(raw.Timestamp); ok {
		issue.Timestamp = ts
	}

	issue.RelatedLogs = make([]string, 0, len(raw.RelatedLogs))
	for _, entry := range raw.RelatedLogs {
		issue.RelatedLogs = append(issue.RelatedLogs, NormalizeLogRef(entry))
	}

	return issue
}

// logRefObject is the object form of a related-log entry.
type logRefObject struct {
	ID     string `json:"id"`
	SHA256 string `json:"sha256"`
}

// NormalizeLogRef extracts the canonical string id from a related-log
// entry: a bare string stays itself; an object yields id, then sha256,
// then its compacted JSON form. The result is never empty.
func NormalizeLogRef(entry json.RawMessage) string {
	var s string
	if err := json.Unmarshal(entry, &s); err == nil && s != "" {
		return s
	}

	var obj logRefObject
	if err := json.Unmarshal(entry, &obj); err == nil {
		if obj.ID != "" {
			return obj.ID
		}

		if obj.SHA256 != "" {
			return obj.SHA256
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, entry); err == nil && buf.Len() > 0 {
		return buf.String()
	}

	return string(entry)
}
