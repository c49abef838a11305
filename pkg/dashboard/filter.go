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

package dashboard

import (
	"sort"
	"strings"

	"github.com/threatdeck/threatdeck/pkg/models"
)

const (
	widgetMaxIssues = 10
	modalMaxIssues  = 100
)

// Project is the pure filter/sort projection over an issue list. It never
// mutates its input and is idempotent: projecting its own output with the
// same FilterState yields the same result.
//
// Pipeline order: rule filter, severity filter, text search, stable sort.
func Project(issues []models.Issue, f FilterState) []models.Issue {
	out := make([]models.Issue, 0, len(issues))

	rule := strings.ToLower(f.RuleFilter)
	search := strings.ToLower(f.Search)

	for i := range issues {
		issue := issues[i]

		if rule != "" && !matchesRule(&issue, rule) {
			continue
		}

		if f.Severity != nil && issue.Severity != *f.Severity {
			continue
		}

		if search != "" && !matchesSearch(&issue, search) {
			continue
		}

		out = append(out, issue)
	}

	sortIssues(out, f.Sort)

	return out
}

// ProjectFor applies a surface's projection including its truncation rule.
// The main widget ignores interactive sort entirely: it is pinned to
// timestamp-desc and the first ten entries. The all-issues modal caps at
// one hundred after sorting; the rule-analysis modal is uncapped.
func ProjectFor(surface Surface, issues []models.Issue, f FilterState) []models.Issue {
	switch surface {
	case SurfaceWidget:
		pinned := f
		pinned.Sort = SortTimestampDesc

		out := Project(issues, pinned)
		if len(out) > widgetMaxIssues {
			out = out[:widgetMaxIssues]
		}

		return out
	case SurfaceAllIssues:
		out := Project(issues, f)
		if len(out) > modalMaxIssues {
			out = out[:modalMaxIssues]
		}

		return out
	default:
		return Project(issues, f)
	}
}

// matchesRule keeps an issue when the rule name appears in any of title,
// summary or recommendation.
func matchesRule(issue *models.Issue, rule string) bool {
	return strings.Contains(strings.ToLower(issue.Title), rule) ||
		strings.Contains(strings.ToLower(issue.Summary), rule) ||
		strings.Contains(strings.ToLower(issue.Recommendation), rule)
}

// matchesSearch checks title and summary only, not recommendation.
func matchesSearch(issue *models.Issue, search string) bool {
	return strings.Contains(strings.ToLower(issue.Title), search) ||
		strings.Contains(strings.ToLower(issue.Summary), search)
}

// sortIssues sorts in place. All sorts are stable: equal keys keep their
// pre-sort relative order.
func sortIssues(issues []models.Issue, order SortOrder) {
	switch order {
	case SortTimestampDesc:
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].Timestamp.After(issues[j].Timestamp)
		})
	case SortTimestampAsc:
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].Timestamp.Before(issues[j].Timestamp)
		})
	case SortSeverityDesc:
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].Severity.Rank() > issues[j].Severity.Rank()
		})
	case SortSeverityAsc:
		sort.SliceStable(issues, func(i, j int) bool {
			return issues[i].Severity.Rank() < issues[j].Severity.Rank()
		})
	case SortTitleAsc:
		sort.SliceStable(issues, func(i, j int) bool {
			return compareTitles(issues[i].Title, issues[j].Title) < 0
		})
	}
}

// compareTitles orders titles case-insensitively, falling back to the raw
// byte order to keep the comparison total.
func compareTitles(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}

	return strings.Compare(a, b)
}
