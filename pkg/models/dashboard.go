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

// Package models defines the canonical dashboard data model and the
// normalization boundary between raw backend payloads and that model.
package models

import "time"

// Severity is the ordinal risk level of an issue.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Rank orders severities for sorting: Critical > High > Medium > Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes a raw severity string. Anything that is not one
// of the four known levels (including the empty string) becomes Low.
func ParseSeverity(raw string) Severity {
	switch Severity(raw) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return Severity(raw)
	default:
		return SeverityLow
	}
}

// Status is the backend-reported engine state. Unknown strings pass through
// for display but are treated as not-idle for countdown purposes.
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusIdle         Status = "Idle"
	StatusReady        Status = "Ready"
	StatusRunning      Status = "Running"
	StatusError        Status = "Error"
	StatusUnknown      Status = "Unknown"
)

// CountdownEligible reports whether a next-scan countdown is meaningful for
// this status.
func (s Status) CountdownEligible() bool {
	return s == StatusReady || s == StatusIdle
}

// Stats carries the headline counters of a snapshot.
type Stats struct {
	TotalLogs int `json:"total_logs"`
	NewLogs   int `json:"new_logs"`
	Anomalies int `json:"anomalies"`
}

// TrendPoint is one labeled bucket of the log-volume trend.
type TrendPoint struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// RuleCount is one detection rule with its event count. The slice form
// preserves the backend's first-seen insertion order, which JSON maps
// would lose.
type RuleCount struct {
	Rule  string
	Count int
}

// Settings is the subset of backend settings the dashboard consumes.
type Settings struct {
	ProcessingInterval int `json:"processing_interval"`
}

// Issue is one detected security finding.
type Issue struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Recommendation string    `json:"recommendation"`
	Severity       Severity  `json:"severity"`
	Timestamp      time.Time `json:"timestamp"`
	// RelatedLogs holds canonical string log ids, already extracted from
	// the backend's string-or-object union.
	RelatedLogs []string `json:"related_logs"`
}

// Snapshot is one complete backend-reported state. It is replaced
// wholesale on every successful poll, never merged.
type Snapshot struct {
	LastRun           *time.Time   `json:"last_run"`
	Status            Status       `json:"status"`
	Summary           string       `json:"summary"`
	ActiveAPIKeyIndex int          `json:"active_api_key_index"`
	Settings          Settings     `json:"settings"`
	Stats             Stats        `json:"stats"`
	Issues            []Issue      `json:"issues"`
	LogTrend          []TrendPoint `json:"log_trend"`
	RuleDistribution  []RuleCount  `json:"rule_distribution"`
}

// ChatTurn is one completed user/AI exchange.
type ChatTurn struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}
