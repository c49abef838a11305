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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdeck/threatdeck/pkg/models"
)

var filterBase = time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

func issueAt(id string, sev models.Severity, minutesAgo int, title, summary, rec string) models.Issue {
	return models.Issue{
		ID:             id,
		Title:          title,
		Summary:        summary,
		Recommendation: rec,
		Severity:       sev,
		Timestamp:      filterBase.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func testIssues() []models.Issue {
	return []models.Issue{
		issueAt("1", models.SeverityHigh, 10, "SSH brute force", "Repeated failures from 10.0.0.9", "Block the source"),
		issueAt("2", models.SeverityCritical, 5, "Privilege escalation", "sudo misuse detected", "Rotate credentials"),
		issueAt("3", models.SeverityLow, 30, "Port scan", "Sequential SYNs observed", "Review firewall"),
		issueAt("4", models.SeverityHigh, 20, "Web shell upload", "Suspicious PHP file", "Quarantine host"),
		issueAt("5", models.SeverityMedium, 1, "Anomalous login hour", "Login at 03:12", "Confirm with user"),
	}
}

func TestProject_Idempotent(t *testing.T) {
	sev := models.SeverityHigh
	states := []FilterState{
		NewFilterState(),
		{Severity: &sev, Sort: SortSeverityDesc},
		{Search: "login", Sort: SortTitleAsc},
		{RuleFilter: "sudo", Sort: SortTimestampAsc},
	}

	for i, f := range states {
		t.Run(fmt.Sprintf("state_%d", i), func(t *testing.T) {
			once := Project(testIssues(), f)
			twice := Project(once, f)
			assert.Equal(t, once, twice)
		})
	}
}

func TestProject_DoesNotMutateInput(t *testing.T) {
	input := testIssues()
	snapshot := testIssues()

	_ = Project(input, FilterState{Sort: SortSeverityDesc})

	assert.Equal(t, snapshot, input)
}

func TestProject_RuleFilterMatchesAnyNarrativeField(t *testing.T) {
	issues := testIssues()

	// "sudo" appears only in issue 2's summary.
	out := Project(issues, FilterState{RuleFilter: "SUDO", Sort: SortTimestampDesc})
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ID)

	// "firewall" appears only in issue 3's recommendation.
	out = Project(issues, FilterState{RuleFilter: "firewall", Sort: SortTimestampDesc})
	require.Len(t, out, 1)
	assert.Equal(t, "3", out[0].ID)
}

func TestProject_SearchIgnoresRecommendation(t *testing.T) {
	issues := testIssues()

	// "Quarantine" appears only in issue 4's recommendation; search must
	// not find it.
	out := Project(issues, FilterState{Search: "quarantine"})
	assert.Empty(t, out)

	out = Project(issues, FilterState{Search: "LOGIN"})
	require.Len(t, out, 1)
	assert.Equal(t, "5", out[0].ID)
}

func TestProject_SeverityExactMatch(t *testing.T) {
	sev := models.SeverityHigh

	out := Project(testIssues(), FilterState{Severity: &sev, Sort: SortTimestampDesc})

	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "4", out[1].ID)
}

func TestProject_SortStability(t *testing.T) {
	// Two High issues with identical rank; stability must preserve the
	// delivered relative order in both directions independently.
	issues := []models.Issue{
		issueAt("a", models.SeverityHigh, 1, "A", "", ""),
		issueAt("b", models.SeverityHigh, 2, "B", "", ""),
		issueAt("c", models.SeverityLow, 3, "C", "", ""),
	}

	desc := Project(issues, FilterState{Sort: SortSeverityDesc})
	require.Equal(t, []string{"a", "b", "c"}, ids(desc))

	asc := Project(issues, FilterState{Sort: SortSeverityAsc})
	require.Equal(t, []string{"c", "a", "b"}, ids(asc))

	// With ties, asc is not the reverse of desc.
	assert.NotEqual(t, ids(asc), reversed(ids(desc)))
}

func TestProject_TitleSortCaseInsensitive(t *testing.T) {
	issues := []models.Issue{
		issueAt("1", models.SeverityLow, 0, "beta", "", ""),
		issueAt("2", models.SeverityLow, 0, "Alpha", "", ""),
		issueAt("3", models.SeverityLow, 0, "gamma", "", ""),
	}

	out := Project(issues, FilterState{Sort: SortTitleAsc})
	assert.Equal(t, []string{"2", "1", "3"}, ids(out))
}

func TestProjectFor_WidgetPinnedToTimestampDesc(t *testing.T) {
	issues := make([]models.Issue, 0, 25)
	for i := 0; i < 25; i++ {
		issues = append(issues, issueAt(fmt.Sprintf("i%02d", i), models.SeverityLow, i, "t", "s", "r"))
	}

	// A stored modal-style filter state asking for severity sort must be
	// ignored by the widget.
	f := FilterState{Sort: SortSeverityAsc}

	out := ProjectFor(SurfaceWidget, issues, f)

	require.Len(t, out, 10)
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].Timestamp.After(out[i-1].Timestamp),
			"widget order must be strictly newest-first")
	}
	assert.Equal(t, "i00", out[0].ID)
}

func TestProjectFor_WidgetShortList(t *testing.T) {
	out := ProjectFor(SurfaceWidget, testIssues(), NewFilterState())
	assert.Len(t, out, 5) // min(10, n)
}

func TestProjectFor_ModalCapsAtHundred(t *testing.T) {
	issues := make([]models.Issue, 0, 150)
	for i := 0; i < 150; i++ {
		issues = append(issues, issueAt(fmt.Sprintf("i%03d", i), models.SeverityLow, i, "t", "s", "r"))
	}

	out := ProjectFor(SurfaceAllIssues, issues, NewFilterState())
	assert.Len(t, out, 100)

	// Rule-analysis surface is uncapped.
	out = ProjectFor(SurfaceRuleAnalysis, issues, NewFilterState())
	assert.Len(t, out, 150)
}

func TestProject_PipelineOrderComposes(t *testing.T) {
	sev := models.SeverityHigh

	out := Project(testIssues(), FilterState{
		RuleFilter: "s", // substring hits most issues
		Severity:   &sev,
		Search:     "brute",
		Sort:       SortTimestampDesc,
	})

	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].ID)
}

func ids(issues []models.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.ID)
	}

	return out
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}

	return out
}
