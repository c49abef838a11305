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

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/threatdeck/threatdeck/pkg/dashboard"
	"github.com/threatdeck/threatdeck/pkg/models"
)

const (
	barMaxWidth    = 30
	ruleLabelWidth = 30
	titleWidth     = 50
)

func (m *Model) View() string {
	var content string

	switch m.mode {
	case modeAllIssues:
		content = m.renderIssueList(dashboard.SurfaceAllIssues, "All Issues")
	case modeRuleAnalysis:
		content = m.renderRuleAnalysis()
	case modeIssueDetail:
		content = m.renderIssueDetail()
	case modeIssueChat, modeGlobalChat:
		content = m.renderChat()
	case modeScript:
		content = m.renderScript()
	case modeLogDetail:
		content = m.renderLogDetail()
	case modeSettings:
		content = m.renderSettings()
	case modeConfirm:
		content = m.renderConfirm()
	default:
		content = m.renderDashboard()
	}

	if m.flash != "" {
		style := m.styles.success
		if m.flashError {
			style = m.styles.errText
		}

		content += "\n" + style.Render(m.flash)
	}

	return content
}

func (m *Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.state.InitialLoadFailed {
		b.WriteString(m.styles.errText.Render("Could not reach the Threat Hunter backend."))
		b.WriteString("\n")
		b.WriteString(m.styles.hint.Render("Press r to retry."))

		return b.String()
	}

	if m.state.Snapshot == nil {
		b.WriteString(m.spin.View())
		b.WriteString(m.styles.dim.Render(" Loading dashboard…"))

		return b.String()
	}

	snap := m.state.Snapshot

	if snap.Summary != "" {
		b.WriteString(m.styles.section.Render("AI Summary"))
		b.WriteString("\n")
		b.WriteString(m.renderMarkdown(snap.Summary))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderWidgetIssues())
	b.WriteString("\n")
	b.WriteString(m.renderTrendChart())
	b.WriteString("\n")
	b.WriteString(m.renderRuleChart())
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render(
		"enter details · a all issues · R rule analysis · g chat · t analyze · s settings · r refresh · D clear db · q quit"))

	return b.String()
}

func (m *Model) renderHeader() string {
	s := m.styles

	parts := []string{
		s.title.Render("Threatdeck"),
		connectivityIndicator(s, m.state.Connectivity.String()),
	}

	snap := m.state.Snapshot
	if snap != nil {
		parts = append(parts,
			s.dim.Render("status: ")+string(snap.Status),
			s.dim.Render("last run: ")+lastRunDisplay(snap.LastRun),
			s.badge.Render(apiKeyBadge(snap.ActiveAPIKeyIndex)),
		)

		countdown := dashboard.NewCountdown(snap)
		if countdown.Visible(m.now) {
			parts = append(parts,
				s.hint.Render("next scan in "+dashboard.FormatMMSS(countdown.Remaining(m.now))))
		}
	}

	header := strings.Join(parts, s.dim.Render("  │  "))

	if snap != nil {
		stats := fmt.Sprintf("Logs %s · New %s · Anomalies %s",
			formatThousands(snap.Stats.TotalLogs),
			formatThousands(snap.Stats.NewLogs),
			formatThousands(snap.Stats.Anomalies))
		header += "\n" + s.dim.Render(stats)
	}

	return header
}

func (m *Model) renderWidgetIssues() string {
	var b strings.Builder

	issues := dashboard.ProjectFor(dashboard.SurfaceWidget, m.state.Issues(), m.state.Widget)
	total := len(m.state.Issues())

	b.WriteString(m.styles.section.Render(fmt.Sprintf("Security Issues (%d)", total)))
	b.WriteString("\n")

	if len(issues) == 0 {
		b.WriteString(m.styles.dim.Render("  No active issues"))
		b.WriteString("\n")

		return b.String()
	}

	for i, issue := range issues {
		b.WriteString(m.renderIssueRow(issue, i == m.cursor && m.mode == modeDashboard))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) renderIssueRow(issue models.Issue, selected bool) string {
	cursor := "  "
	if selected {
		cursor = m.styles.selected.Render("> ")
	}

	title := issue.Title
	if len(title) > titleWidth {
		title = title[:titleWidth-1] + "…"
	}

	line := fmt.Sprintf("%s%s  %-*s  %s",
		cursor,
		m.styles.severityStyle(issue.Severity).Render(fmt.Sprintf("%-8s", issue.Severity)),
		titleWidth, title,
		m.styles.dim.Render(issue.Timestamp.Local().Format("01-02 15:04")))

	return line
}

func (m *Model) renderIssueList(surface dashboard.Surface, heading string) string {
	var b strings.Builder

	f := m.state.Filter(surface)
	issues := dashboard.ProjectFor(surface, m.state.Issues(), *f)

	b.WriteString(m.styles.title.Render(heading))
	b.WriteString(m.styles.dim.Render(fmt.Sprintf("  (%d shown)", len(issues))))
	b.WriteString("\n")
	b.WriteString(m.renderFilterLine(f))
	b.WriteString("\n\n")

	if len(issues) == 0 {
		b.WriteString(m.styles.dim.Render("  Nothing matches the current filters"))
	}

	for i, issue := range issues {
		b.WriteString(m.renderIssueRow(issue, i == m.cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render(
		"/ search · 1-4 severity · 0 any severity · o sort · v layout · c clear · enter details · esc back"))

	return b.String()
}

func (m *Model) renderFilterLine(f *dashboard.FilterState) string {
	var parts []string

	if m.searchInput.Focused() {
		parts = append(parts, "search: "+m.searchInput.View())
	} else if f.Search != "" {
		parts = append(parts, "search: "+f.Search)
	}

	if f.Severity != nil {
		parts = append(parts, "severity: "+string(*f.Severity))
	}

	if f.RuleFilter != "" {
		parts = append(parts, "rule: "+f.RuleFilter)
	}

	parts = append(parts, "sort: "+string(f.Sort))

	if f.ViewMode == dashboard.ViewList {
		parts = append(parts, "layout: list")
	} else {
		parts = append(parts, "layout: grid")
	}

	return m.styles.dim.Render(strings.Join(parts, "   "))
}

func (m *Model) renderRuleAnalysis() string {
	var b strings.Builder

	series := dashboard.RuleSeries(m.snapshotRules(), dashboard.ModalRuleTopK, false)

	b.WriteString(m.styles.title.Render("Rule Analysis"))
	b.WriteString("\n\n")
	b.WriteString(m.renderBarChart(series, m.styles.barAlt, m.ruleCursor))
	b.WriteString("\n")
	b.WriteString(m.renderIssueList(dashboard.SurfaceRuleAnalysis, "Matching Issues"))
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("[ / ] select rule bucket"))

	return b.String()
}

func (m *Model) renderTrendChart() string {
	if m.state.Snapshot == nil {
		return ""
	}

	series := dashboard.TrendSeries(m.state.Snapshot.LogTrend)

	var b strings.Builder

	b.WriteString(m.styles.section.Render("Log Volume Trend"))
	b.WriteString("\n")
	b.WriteString(m.renderBarChart(series, m.styles.bar, -1))

	return b.String()
}

func (m *Model) renderRuleChart() string {
	series := dashboard.RuleSeries(m.snapshotRules(), dashboard.WidgetRuleTopK, true)

	var b strings.Builder

	b.WriteString(m.styles.section.Render("Top Detection Rules"))
	b.WriteString("\n")
	b.WriteString(m.renderBarChart(series, m.styles.barAlt, -1))

	return b.String()
}

// renderBarChart draws a horizontal bar per bucket, scaled to the largest
// value. selectedIdx highlights the drill-in cursor, -1 for none.
func (m *Model) renderBarChart(series dashboard.Series, barStyle lipgloss.Style, selectedIdx int) string {
	var b strings.Builder

	maxVal := 0
	for _, v := range series.Values {
		if v > maxVal {
			maxVal = v
		}
	}

	valueStyle := m.styles.dim
	if series.Placeholder {
		barStyle = m.styles.dim
	}

	for i, label := range series.Labels {
		width := 0
		if maxVal > 0 {
			width = series.Values[i] * barMaxWidth / maxVal
		}

		if series.Values[i] > 0 && width == 0 {
			width = 1
		}

		labelText := fmt.Sprintf("  %-*s ", ruleLabelWidth, label)
		if i == selectedIdx {
			labelText = m.styles.selected.Render(labelText)
		}

		b.WriteString(labelText)
		b.WriteString(barStyle.Render(strings.Repeat("█", width)))

		if series.Placeholder {
			b.WriteString(valueStyle.Render(" –"))
		} else {
			b.WriteString(valueStyle.Render(fmt.Sprintf(" %s", formatThousands(series.Values[i]))))
		}

		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) renderIssueDetail() string {
	var b strings.Builder

	issue := issueByID(m.state.Issues(), m.selectedID)
	if issue == nil {
		b.WriteString(m.styles.dim.Render("This issue is no longer present."))
		b.WriteString("\n\n")
		b.WriteString(m.styles.help.Render("esc back"))

		return b.String()
	}

	b.WriteString(m.styles.severityStyle(issue.Severity).Render(string(issue.Severity)))
	b.WriteString("  ")
	b.WriteString(m.styles.title.Render(issue.Title))
	b.WriteString("\n")
	b.WriteString(m.styles.dim.Render(issue.Timestamp.Local().Format("2006-01-02 15:04:05")))
	b.WriteString("\n\n")
	b.WriteString(m.styles.section.Render("Summary"))
	b.WriteString("\n")
	b.WriteString(m.renderMarkdown(issue.Summary))
	b.WriteString("\n\n")
	b.WriteString(m.styles.section.Render("Recommendations"))
	b.WriteString("\n")
	b.WriteString(m.renderMarkdown(issue.Recommendation))
	b.WriteString("\n")

	if len(issue.RelatedLogs) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.section.Render("Related Logs"))
		b.WriteString("\n  ")

		shown := issue.RelatedLogs
		if len(shown) > maxLogButtons {
			shown = shown[:maxLogButtons]
		}

		for i, ref := range shown {
			b.WriteString(m.styles.badge.Render(fmt.Sprintf("[%d] %s", i+1, truncateLogRef(ref))))
			b.WriteString("  ")
		}

		if rest := len(issue.RelatedLogs) - len(shown); rest > 0 {
			b.WriteString(m.styles.dim.Render(fmt.Sprintf("+%d more", rest)))
		}

		b.WriteString("\n")
	}

	if m.dispatcher.Busy(dashboard.Action{Kind: dashboard.ActionScript, IssueID: issue.ID}) {
		b.WriteString("\n")
		b.WriteString(m.spin.View())
		b.WriteString(m.styles.dim.Render(" generating script…"))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("c chat · i ignore · x remediation script · 1-3 log detail · esc back"))

	return b.String()
}

func (m *Model) renderChat() string {
	var b strings.Builder

	var (
		sess  *dashboard.ChatSession
		title string
		busy  dashboard.Action
	)

	if m.mode == modeIssueChat {
		sess = m.state.IssueChat
		title = "Issue Chat"
		busy = dashboard.Action{Kind: dashboard.ActionIssueChat}

		if sess != nil {
			busy.IssueID = sess.IssueID
		}
	} else {
		sess = m.state.GlobalChat
		title = "AI Security Analyst"
		busy = dashboard.Action{Kind: dashboard.ActionGlobalChat}
	}

	b.WriteString(m.styles.title.Render(title))
	b.WriteString("\n\n")

	if sess == nil {
		return b.String()
	}

	for _, msg := range sess.Messages {
		switch msg.Role {
		case dashboard.RoleUser:
			b.WriteString(m.styles.user.Render("you: "))
			b.WriteString(msg.Text)
		case dashboard.RoleError:
			b.WriteString(m.styles.errText.Render(msg.Text))
		default:
			b.WriteString(m.renderMarkdown(msg.Text))
		}

		b.WriteString("\n")
	}

	if m.dispatcher.Busy(busy) {
		b.WriteString(m.spin.View())
		b.WriteString(m.styles.dim.Render(" thinking…"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.chatInput.View())
	b.WriteString("\n")

	help := "enter send · esc close"
	if m.mode == modeGlobalChat {
		help += " · ctrl+l clear chat"
	}

	b.WriteString(m.styles.help.Render(help))

	return b.String()
}

func (m *Model) renderScript() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("Remediation Script"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.panel.Render(m.modalVP.View()))
	b.WriteString("\n")

	help := "w write to file · esc back"
	if m.canCopy {
		help = "c copy · " + help
	}

	b.WriteString(m.styles.help.Render(help))

	return b.String()
}

func (m *Model) renderLogDetail() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("Log Record"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.panel.Render(m.modalVP.View()))
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("esc back"))

	return b.String()
}

func (m *Model) renderSettings() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("Settings"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.section.Render("Processing interval (seconds)"))
	b.WriteString("\n")
	b.WriteString(m.intervalInput.View())
	b.WriteString("\n\n")
	b.WriteString(m.styles.help.Render("enter save · esc cancel"))

	return b.String()
}

func (m *Model) renderConfirm() string {
	if m.confirm == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.styles.errText.Render(m.confirm.prompt))
	b.WriteString("\n\n")
	b.WriteString(m.styles.help.Render("y confirm · n cancel"))

	return m.styles.panel.Render(b.String())
}
