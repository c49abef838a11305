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

// Package tui renders the dashboard engine as a bubbletea program. All
// decisions live in pkg/dashboard; this layer translates keys into actions
// and state into text.
package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/threatdeck/threatdeck/pkg/dashboard"
	"github.com/threatdeck/threatdeck/pkg/logger"
	"github.com/threatdeck/threatdeck/pkg/models"
)

const (
	defaultWidth    = 100
	defaultHeight   = 32
	markdownWrap    = 78
	scriptFilePerms = 0o600
)

type surfaceMode int

const (
	modeDashboard surfaceMode = iota
	modeAllIssues
	modeRuleAnalysis
	modeIssueDetail
	modeIssueChat
	modeGlobalChat
	modeScript
	modeLogDetail
	modeSettings
	modeConfirm
)

type (
	fetchUpdateMsg   dashboard.Update
	countdownTickMsg time.Time
	actionResultMsg  dashboard.Result

	settingsLoadedMsg dashboard.Result

	scriptSavedMsg struct {
		path string
		err  error
	}

	clipboardResultMsg struct {
		err error
	}
)

type confirmPrompt struct {
	prompt string
	action dashboard.Action
	back   surfaceMode
}

// Options wires the engine into the TUI.
type Options struct {
	Fetcher    *dashboard.Fetcher
	Dispatcher *dashboard.Dispatcher
	Logger     logger.Logger
}

// Model is the bubbletea model over the dashboard view state. The Update
// loop is the single event-processing goroutine: every state mutation
// happens here, while network work runs in commands.
type Model struct {
	state      *dashboard.ViewState
	fetcher    *dashboard.Fetcher
	dispatcher *dashboard.Dispatcher
	logger     logger.Logger

	styles   styles
	markdown *glamour.TermRenderer

	mode       surfaceMode
	returnMode surfaceMode

	cursor     int
	ruleCursor int
	selectedID string

	searchInput   textinput.Model
	chatInput     textinput.Model
	intervalInput textinput.Model
	spin          spinner.Model
	modalVP       viewport.Model

	confirm   *confirmPrompt
	script    string
	logRecord string
	settings  map[string]interface{}

	flash      string
	flashError bool

	canCopy bool
	now     time.Time
	width   int
	height  int
}

// New builds the program model.
func New(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = logger.NewTestLogger()
	}

	search := textinput.New()
	search.Placeholder = "search title or summary"
	search.Width = 40

	chat := textinput.New()
	chat.Placeholder = "Ask about your logs, threats, or issues"
	chat.Width = 60

	interval := textinput.New()
	interval.Placeholder = "processing interval (seconds)"
	interval.Width = 20

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPink))

	canCopy := true
	if err := clipboard.WriteAll(""); err != nil {
		canCopy = false
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(markdownWrap),
	)
	if err != nil {
		opts.Logger.Warn().Err(err).Msg("Markdown renderer unavailable, falling back to plain text")

		renderer = nil
	}

	return &Model{
		state:         dashboard.NewViewState(),
		fetcher:       opts.Fetcher,
		dispatcher:    opts.Dispatcher,
		logger:        opts.Logger,
		styles:        newStyles(),
		markdown:      renderer,
		searchInput:   search,
		chatInput:     chat,
		intervalInput: interval,
		spin:          sp,
		modalVP:       viewport.New(defaultWidth-4, defaultHeight-8),
		canCopy:       canCopy,
		now:           time.Now(),
		width:         defaultWidth,
		height:        defaultHeight,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.awaitUpdate(), tickCountdown(), m.spin.Tick)
}

// awaitUpdate blocks on the fetcher stream; each delivery re-arms itself
// from Update so results land in arrival order.
func (m *Model) awaitUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.fetcher.Updates()
		if !ok {
			return nil
		}

		return fetchUpdateMsg(u)
	}
}

func tickCountdown() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return countdownTickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.modalVP.Width = msg.Width - 4
		m.modalVP.Height = msg.Height - 8

		return m, nil

	case fetchUpdateMsg:
		m.applyFetchUpdate(dashboard.Update(msg))

		return m, m.awaitUpdate()

	case countdownTickMsg:
		m.now = time.Time(msg)

		return m, tickCountdown()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)

		return m, cmd

	case actionResultMsg:
		return m, m.applyActionResult(dashboard.Result(msg))

	case settingsLoadedMsg:
		res := dashboard.Result(msg)
		if res.Err != nil {
			m.setFlash("Failed to load settings: "+res.Err.Error(), true)

			return m, nil
		}

		m.settings = res.Values
		m.intervalInput.SetValue(settingsIntervalString(res.Values))
		m.intervalInput.Focus()
		m.mode = modeSettings

		return m, textinput.Blink

	case scriptSavedMsg:
		if msg.err != nil {
			m.setFlash("Failed to write script: "+msg.err.Error(), true)
		} else {
			m.setFlash("Script saved to "+msg.path, false)
		}

		return m, nil

	case clipboardResultMsg:
		if msg.err != nil {
			m.setFlash("Failed to copy to clipboard", true)
		} else {
			m.setFlash("Copied to clipboard", false)
		}

		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) applyFetchUpdate(u dashboard.Update) {
	switch {
	case u.Snapshot != nil:
		m.state.ApplySnapshot(u.Snapshot)
	case u.Err != nil:
		m.state.ApplyFetchFailure()
	default:
		m.state.Connectivity = u.Connectivity
	}
}

// submit runs the per-control busy guard on the event goroutine, then the
// backend call on a worker.
func (m *Model) submit(a dashboard.Action) tea.Cmd {
	if err := m.dispatcher.Begin(a); err != nil {
		m.setFlash("Still working on the previous request", true)

		return nil
	}

	return func() tea.Msg {
		res := m.dispatcher.Do(context.Background(), a)

		return actionResultMsg(res)
	}
}

func (m *Model) applyActionResult(res dashboard.Result) tea.Cmd {
	m.dispatcher.Finish(res.Action)

	switch res.Action.Kind {
	case dashboard.ActionIssueChat:
		sess := m.state.IssueChat
		if sess != nil && sess.IssueID == res.Action.IssueID {
			if res.Err != nil {
				sess.FailTurn(res.Err.Error())
			} else {
				sess.CompleteTurn(res.Action.Query, res.Answer)
			}
		}

	case dashboard.ActionGlobalChat:
		if res.Err != nil {
			m.state.GlobalChat.FailTurn(res.Err.Error())
		} else {
			m.state.GlobalChat.CompleteTurn(res.Action.Query, res.Answer)
		}

	case dashboard.ActionScript:
		if res.Err != nil {
			m.setFlash("Script generation failed: "+res.Err.Error(), true)

			return nil
		}

		m.script = res.Script
		m.returnMode = m.mode
		m.mode = modeScript
		m.modalVP.SetContent(res.Script)
		m.modalVP.GotoTop()

	case dashboard.ActionLogDetail:
		if res.Err != nil {
			m.setFlash("Log lookup failed: "+res.Err.Error(), true)

			return nil
		}

		m.logRecord = prettyJSON(res.Record)
		m.returnMode = m.mode
		m.mode = modeLogDetail
		m.modalVP.SetContent(m.logRecord)
		m.modalVP.GotoTop()

	case dashboard.ActionIgnore:
		if res.Err != nil {
			m.setFlash("Ignore failed: "+res.Err.Error(), true)
		} else {
			m.setFlash("Issue ignored", false)

			if m.mode == modeIssueDetail {
				m.mode = m.returnMode
			}
		}

	case dashboard.ActionTriggerAnalysis:
		if res.Err != nil {
			m.setFlash("Analysis request failed: "+res.Err.Error(), true)
		} else {
			m.setFlash("Analysis started", false)
		}

	case dashboard.ActionClearDB:
		if res.Err != nil {
			m.setFlash("Clear database failed: "+res.Err.Error(), true)
		} else {
			m.setFlash("Database cleared", false)
		}

	case dashboard.ActionSaveSettings:
		if res.Err != nil {
			m.setFlash("Saving settings failed: "+res.Err.Error(), true)
		} else {
			m.setFlash("Settings saved", false)
			m.mode = modeDashboard
		}
	}

	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.mode {
	case modeDashboard:
		return m.handleDashboardKey(msg)
	case modeAllIssues:
		return m.handleListKey(msg, dashboard.SurfaceAllIssues)
	case modeRuleAnalysis:
		return m.handleListKey(msg, dashboard.SurfaceRuleAnalysis)
	case modeIssueDetail:
		return m.handleIssueDetailKey(msg)
	case modeIssueChat, modeGlobalChat:
		return m.handleChatKey(msg)
	case modeScript:
		return m.handleScriptKey(msg)
	case modeLogDetail:
		return m.handleViewerKey(msg)
	case modeSettings:
		return m.handleSettingsKey(msg)
	case modeConfirm:
		return m.handleConfirmKey(msg)
	}

	return m, nil
}

func (m *Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	issues := dashboard.ProjectFor(dashboard.SurfaceWidget, m.state.Issues(), m.state.Widget)

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "r":
		m.fetcher.Refresh()
		m.setFlash("Refreshing…", false)

		return m, nil
	case "a":
		m.mode = modeAllIssues
		m.cursor = 0

		return m, nil
	case "R":
		m.mode = modeRuleAnalysis
		m.cursor = 0
		m.ruleCursor = -1

		return m, nil
	case "g":
		m.mode = modeGlobalChat
		m.chatInput.Focus()

		return m, textinput.Blink
	case "t":
		return m, m.submit(dashboard.Action{Kind: dashboard.ActionTriggerAnalysis})
	case "s":
		return m, m.loadSettings()
	case "D":
		m.confirm = &confirmPrompt{
			prompt: "Clear the entire log database? This cannot be undone.",
			action: dashboard.Action{Kind: dashboard.ActionClearDB},
			back:   m.mode,
		}
		m.mode = modeConfirm

		return m, nil
	case "j", "down":
		if m.cursor < len(issues)-1 {
			m.cursor++
		}

		return m, nil
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

		return m, nil
	case "enter":
		if m.cursor < len(issues) {
			m.openIssueDetail(issues[m.cursor].ID, modeDashboard)
		}

		return m, nil
	}

	return m, nil
}

func (m *Model) handleListKey(msg tea.KeyMsg, surface dashboard.Surface) (tea.Model, tea.Cmd) {
	f := m.state.Filter(surface)

	if m.searchInput.Focused() {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.searchInput.Blur()

			return m, nil
		default:
			var cmd tea.Cmd
			m.searchInput, cmd = m.searchInput.Update(msg)
			f.Search = m.searchInput.Value()
			m.cursor = 0

			return m, cmd
		}
	}

	issues := dashboard.ProjectFor(surface, m.state.Issues(), *f)

	switch msg.String() {
	case "esc", "q":
		m.mode = modeDashboard
		m.cursor = 0

		return m, nil
	case "/":
		m.searchInput.SetValue(f.Search)
		m.searchInput.Focus()

		return m, textinput.Blink
	case "1", "2", "3", "4":
		sev := severityForKey(msg.String())
		f.Severity = &sev
		m.cursor = 0

		return m, nil
	case "0":
		f.Severity = nil
		m.cursor = 0

		return m, nil
	case "o":
		f.Sort = nextSortOrder(f.Sort)

		return m, nil
	case "v":
		if surface == dashboard.SurfaceAllIssues {
			if f.ViewMode == dashboard.ViewGrid {
				f.ViewMode = dashboard.ViewList
			} else {
				f.ViewMode = dashboard.ViewGrid
			}
		}

		return m, nil
	case "c":
		f.Clear()
		m.searchInput.SetValue("")
		m.cursor = 0

		return m, nil
	case "]", "[":
		if surface == dashboard.SurfaceRuleAnalysis {
			m.cycleRuleFilter(f, msg.String() == "]")
			m.cursor = 0
		}

		return m, nil
	case "j", "down":
		if m.cursor < len(issues)-1 {
			m.cursor++
		}

		return m, nil
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

		return m, nil
	case "enter":
		if m.cursor < len(issues) {
			m.openIssueDetail(issues[m.cursor].ID, m.mode)
		}

		return m, nil
	}

	return m, nil
}

// cycleRuleFilter walks the drill-in selection across the modal's rule
// buckets. The filter always carries the full untruncated rule name.
func (m *Model) cycleRuleFilter(f *dashboard.FilterState, forward bool) {
	series := dashboard.RuleSeries(m.snapshotRules(), dashboard.ModalRuleTopK, false)
	if series.Placeholder || len(series.Keys) == 0 {
		return
	}

	if forward {
		m.ruleCursor++
	} else {
		m.ruleCursor--
	}

	switch {
	case m.ruleCursor >= len(series.Keys):
		m.ruleCursor = -1
	case m.ruleCursor < -1:
		m.ruleCursor = len(series.Keys) - 1
	}

	if m.ruleCursor == -1 {
		f.RuleFilter = ""
	} else {
		f.RuleFilter = series.Keys[m.ruleCursor]
	}
}

func (m *Model) snapshotRules() []models.RuleCount {
	if m.state.Snapshot == nil {
		return nil
	}

	return m.state.Snapshot.RuleDistribution
}

func (m *Model) openIssueDetail(id string, back surfaceMode) {
	m.selectedID = id
	m.returnMode = back
	m.mode = modeIssueDetail
}

func (m *Model) handleIssueDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	issue := issueByID(m.state.Issues(), m.selectedID)

	switch msg.String() {
	case "esc", "q":
		m.mode = m.returnMode

		return m, nil
	case "c":
		if issue == nil {
			return m, nil
		}

		m.state.OpenIssueChat(issue.ID)
		m.chatInput.Focus()
		m.mode = modeIssueChat

		return m, textinput.Blink
	case "i":
		if issue == nil {
			return m, nil
		}

		m.confirm = &confirmPrompt{
			prompt: "Ignore this issue? It will be removed from the dashboard.",
			action: dashboard.Action{Kind: dashboard.ActionIgnore, IssueID: issue.ID},
			back:   m.mode,
		}
		m.mode = modeConfirm

		return m, nil
	case "x":
		if issue == nil {
			return m, nil
		}

		return m, m.submit(dashboard.Action{Kind: dashboard.ActionScript, IssueID: issue.ID})
	case "1", "2", "3":
		if issue == nil {
			return m, nil
		}

		idx := int(msg.String()[0] - '1')
		if idx < len(issue.RelatedLogs) && idx < maxLogButtons {
			return m, m.submit(dashboard.Action{
				Kind:  dashboard.ActionLogDetail,
				LogID: issue.RelatedLogs[idx],
			})
		}

		return m, nil
	}

	return m, nil
}

func (m *Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.mode == modeIssueChat {
			m.state.CloseIssueChat()
			m.mode = modeIssueDetail
		} else {
			m.mode = modeDashboard
		}

		m.chatInput.Blur()

		return m, nil
	case tea.KeyCtrlL:
		if m.mode == modeGlobalChat {
			m.state.ClearGlobalChat()
		}

		return m, nil
	case tea.KeyEnter:
		return m, m.submitChat()
	default:
		var cmd tea.Cmd
		m.chatInput, cmd = m.chatInput.Update(msg)

		return m, cmd
	}
}

// submitChat echoes the user line optimistically and dispatches with a
// history snapshot taken now; the session may move on before the answer
// lands.
func (m *Model) submitChat() tea.Cmd {
	query := strings.TrimSpace(m.chatInput.Value())
	if query == "" {
		return nil
	}

	var action dashboard.Action

	if m.mode == modeIssueChat {
		sess := m.state.IssueChat
		if sess == nil {
			return nil
		}

		action = dashboard.Action{
			Kind:    dashboard.ActionIssueChat,
			IssueID: sess.IssueID,
			Query:   query,
			History: append([]models.ChatTurn(nil), sess.Turns...),
		}

		if m.dispatcher.Busy(action) {
			m.setFlash("Still working on the previous question", true)

			return nil
		}

		sess.EchoUser(query)
	} else {
		action = dashboard.Action{
			Kind:    dashboard.ActionGlobalChat,
			Query:   query,
			History: m.state.GlobalChat.LastTurns(3),
		}

		if m.dispatcher.Busy(action) {
			m.setFlash("Still working on the previous question", true)

			return nil
		}

		m.state.GlobalChat.EchoUser(query)
	}

	m.chatInput.SetValue("")

	return m.submit(action)
}

func (m *Model) handleScriptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = m.returnMode

		return m, nil
	case "c":
		if !m.canCopy {
			m.setFlash("Clipboard unavailable", true)

			return m, nil
		}

		script := m.script

		return m, func() tea.Msg {
			return clipboardResultMsg{err: clipboard.WriteAll(script)}
		}
	case "w":
		script := m.script

		return m, func() tea.Msg {
			path := scriptFilename(time.Now())

			return scriptSavedMsg{path: path, err: os.WriteFile(path, []byte(script), scriptFilePerms)}
		}
	}

	var cmd tea.Cmd
	m.modalVP, cmd = m.modalVP.Update(msg)

	return m, cmd
}

func (m *Model) handleViewerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = m.returnMode

		return m, nil
	}

	var cmd tea.Cmd
	m.modalVP, cmd = m.modalVP.Update(msg)

	return m, cmd
}

func (m *Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeDashboard
		m.intervalInput.Blur()

		return m, nil
	case tea.KeyEnter:
		interval, err := strconv.Atoi(strings.TrimSpace(m.intervalInput.Value()))
		if err != nil || interval <= 0 {
			m.setFlash("Processing interval must be a positive number of seconds", true)

			return m, nil
		}

		settings := make(map[string]interface{}, len(m.settings)+1)
		for k, v := range m.settings {
			settings[k] = v
		}

		settings["processing_interval"] = interval

		return m, m.submit(dashboard.Action{Kind: dashboard.ActionSaveSettings, Settings: settings})
	default:
		var cmd tea.Cmd
		m.intervalInput, cmd = m.intervalInput.Update(msg)

		return m, cmd
	}
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm == nil {
		m.mode = modeDashboard

		return m, nil
	}

	switch msg.String() {
	case "y", "enter":
		action := m.confirm.action
		m.mode = m.confirm.back
		m.confirm = nil

		return m, m.submit(action)
	case "n", "esc", "q":
		m.mode = m.confirm.back
		m.confirm = nil

		return m, nil
	}

	return m, nil
}

func (m *Model) loadSettings() tea.Cmd {
	return func() tea.Msg {
		return settingsLoadedMsg(m.dispatcher.LoadSettings(context.Background()))
	}
}

func (m *Model) setFlash(text string, isError bool) {
	m.flash = text
	m.flashError = isError
}

// renderMarkdown renders through glamour when available, raw otherwise.
func (m *Model) renderMarkdown(md string) string {
	if m.markdown == nil {
		return md
	}

	out, err := m.markdown.Render(md)
	if err != nil {
		return md
	}

	return strings.TrimRight(out, "\n")
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer

	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}

	return buf.String()
}

func severityForKey(key string) models.Severity {
	switch key {
	case "1":
		return models.SeverityCritical
	case "2":
		return models.SeverityHigh
	case "3":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func nextSortOrder(current dashboard.SortOrder) dashboard.SortOrder {
	switch current {
	case dashboard.SortTimestampDesc:
		return dashboard.SortTimestampAsc
	case dashboard.SortTimestampAsc:
		return dashboard.SortSeverityDesc
	case dashboard.SortSeverityDesc:
		return dashboard.SortSeverityAsc
	case dashboard.SortSeverityAsc:
		return dashboard.SortTitleAsc
	default:
		return dashboard.SortTimestampDesc
	}
}
