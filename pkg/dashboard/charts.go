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

	"github.com/threatdeck/threatdeck/pkg/models"
)

const (
	// WidgetRuleTopK and ModalRuleTopK bound the rule chart per surface.
	WidgetRuleTopK = 10
	ModalRuleTopK  = 15

	ruleLabelMax       = 30
	ruleLabelTruncated = 27

	noDataLabel = "No data available"
)

// Series is one fully-derived chart projection. Every update replaces the
// whole series; nothing is patched incrementally. Keys carries the full
// underlying rule names even when Labels are truncated for display, so
// selection and filtering never operate on a truncated label.
type Series struct {
	Labels []string
	Keys   []string
	Values []int

	// Placeholder marks a synthetic empty-state series that must not be
	// mistaken for real data downstream.
	Placeholder bool
}

// placeholderTrendLabels is the cosmetic empty state of the trend chart.
var placeholderTrendLabels = []string{"Now-60min", "Now-45min", "Now-30min", "Now-15min", "Now"}

// TrendSeries maps log_trend entries one-to-one, preserving order. An
// empty trend yields a five-point all-zero placeholder.
func TrendSeries(trend []models.TrendPoint) Series {
	if len(trend) == 0 {
		labels := make([]string, len(placeholderTrendLabels))
		copy(labels, placeholderTrendLabels)

		return Series{
			Labels:      labels,
			Keys:        labels,
			Values:      make([]int, len(labels)),
			Placeholder: true,
		}
	}

	s := Series{
		Labels: make([]string, 0, len(trend)),
		Values: make([]int, 0, len(trend)),
	}

	for _, point := range trend {
		s.Labels = append(s.Labels, point.Time)
		s.Values = append(s.Values, point.Count)
	}

	s.Keys = s.Labels

	return s
}

// RuleSeries projects the rule distribution: stable sort by count
// descending (ties keep the backend's insertion order), top-K truncation,
// then display-label truncation for the compact widget only. An empty
// distribution yields a single synthetic bucket.
func RuleSeries(dist []models.RuleCount, topK int, truncateLabels bool) Series {
	if len(dist) == 0 {
		return Series{
			Labels:      []string{noDataLabel},
			Keys:        []string{noDataLabel},
			Values:      []int{1},
			Placeholder: true,
		}
	}

	sorted := make([]models.RuleCount, len(dist))
	copy(sorted, dist)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})

	if topK > 0 && len(sorted) > topK {
		sorted = sorted[:topK]
	}

	s := Series{
		Labels: make([]string, 0, len(sorted)),
		Keys:   make([]string, 0, len(sorted)),
		Values: make([]int, 0, len(sorted)),
	}

	for _, rc := range sorted {
		label := rc.Rule
		if truncateLabels {
			label = truncateRuleLabel(label)
		}

		s.Labels = append(s.Labels, label)
		s.Keys = append(s.Keys, rc.Rule)
		s.Values = append(s.Values, rc.Count)
	}

	return s
}

// truncateRuleLabel shortens long rule names for the compact widget. The
// full name stays in Series.Keys as the sort/filter key.
func truncateRuleLabel(rule string) string {
	if len(rule) <= ruleLabelMax {
		return rule
	}

	return rule[:ruleLabelTruncated] + "..."
}
