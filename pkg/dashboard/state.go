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

// Package dashboard is the state and render engine behind the terminal
// dashboard: snapshot polling, countdown, derived issue views, chart
// projections and the action dispatcher.
package dashboard

import (
	"github.com/threatdeck/threatdeck/pkg/models"
)

// Connectivity is the tri-state backend link indicator.
type Connectivity int

const (
	Connecting Connectivity = iota
	Connected
	Disconnected
)

func (c Connectivity) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Surface identifies one of the three issue-list views, each with its own
// FilterState and truncation rules.
type Surface int

const (
	SurfaceWidget Surface = iota
	SurfaceAllIssues
	SurfaceRuleAnalysis
)

// SortOrder selects the issue sort applied by the filter engine.
type SortOrder string

const (
	SortTimestampDesc SortOrder = "timestamp-desc"
	SortTimestampAsc  SortOrder = "timestamp-asc"
	SortSeverityDesc  SortOrder = "severity-desc"
	SortSeverityAsc   SortOrder = "severity-asc"
	SortTitleAsc      SortOrder = "title-asc"
)

// ViewMode is the all-issues modal layout toggle.
type ViewMode int

const (
	ViewGrid ViewMode = iota
	ViewList
)

// FilterState holds the user-controlled projection parameters of one
// surface. It persists across snapshot refreshes; new data never resets
// filters.
type FilterState struct {
	Severity   *models.Severity
	Search     string
	Sort       SortOrder
	RuleFilter string
	ViewMode   ViewMode
}

// NewFilterState returns the default parameters for a surface.
func NewFilterState() FilterState {
	return FilterState{Sort: SortTimestampDesc, ViewMode: ViewGrid}
}

// Clear resets everything except the view mode, matching the surfaces'
// clear-filters control.
func (f *FilterState) Clear() {
	f.Severity = nil
	f.Search = ""
	f.Sort = SortTimestampDesc
	f.RuleFilter = ""
}

// ChatRole distinguishes display entries in a chat transcript.
type ChatRole int

const (
	RoleUser ChatRole = iota
	RoleAI
	RoleError
)

// ChatMessage is one display entry. Error entries appear in the transcript
// but never enter the turn history sent to the backend.
type ChatMessage struct {
	Role ChatRole
	Text string
}

// ChatSession is an ordered turn history with its display transcript,
// scoped either globally or to one issue.
type ChatSession struct {
	IssueID  string
	Messages []ChatMessage
	Turns    []models.ChatTurn
}

// NewChatSession starts a session with the greeting line. issueID is empty
// for the global session.
func NewChatSession(issueID, greeting string) *ChatSession {
	return &ChatSession{
		IssueID:  issueID,
		Messages: []ChatMessage{{Role: RoleAI, Text: greeting}},
	}
}

// EchoUser appends the user's own message to the display immediately. The
// turn history is untouched until the backend answers.
func (s *ChatSession) EchoUser(query string) {
	s.Messages = append(s.Messages, ChatMessage{Role: RoleUser, Text: query})
}

// CompleteTurn records a successful exchange in both display and history.
func (s *ChatSession) CompleteTurn(query, answer string) {
	s.Messages = append(s.Messages, ChatMessage{Role: RoleAI, Text: answer})
	s.Turns = append(s.Turns, models.ChatTurn{User: query, AI: answer})
}

// FailTurn shows an inline error in the display without mutating history.
func (s *ChatSession) FailTurn(errText string) {
	s.Messages = append(s.Messages, ChatMessage{Role: RoleError, Text: errText})
}

// LastTurns returns up to n most recent completed turns.
func (s *ChatSession) LastTurns(n int) []models.ChatTurn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}

	if len(s.Turns) <= n {
		return s.Turns
	}

	return s.Turns[len(s.Turns)-n:]
}

// ViewState aggregates everything rendering consumes: the authoritative
// snapshot, connectivity, per-surface filters and the chat sessions. It is
// owned by the single event-processing goroutine; components receive it
// explicitly instead of reading shared globals.
type ViewState struct {
	Snapshot     *models.Snapshot
	Connectivity Connectivity

	Widget       FilterState
	AllIssues    FilterState
	RuleAnalysis FilterState

	GlobalChat *ChatSession
	IssueChat  *ChatSession

	// InitialLoadFailed is set only when no snapshot has ever arrived;
	// it drives the full-surface retry affordance.
	InitialLoadFailed bool
}

const (
	globalChatGreeting = "Hello! I'm your AI security analyst. Ask me anything about your logs, threats, or security issues."
	issueChatGreeting  = "I'm here to help you understand and resolve this security issue. What would you like to know?"
)

// NewViewState builds the initial dashboard state.
func NewViewState() *ViewState {
	return &ViewState{
		Connectivity: Connecting,
		Widget:       NewFilterState(),
		AllIssues:    NewFilterState(),
		RuleAnalysis: NewFilterState(),
		GlobalChat:   NewChatSession("", globalChatGreeting),
	}
}

// ApplySnapshot replaces the authoritative snapshot wholesale. Filters and
// chat sessions persist across refreshes.
func (v *ViewState) ApplySnapshot(snap *models.Snapshot) {
	v.Snapshot = snap
	v.Connectivity = Connected
	v.InitialLoadFailed = false
}

// ApplyFetchFailure marks the link down. The previous snapshot stays
// visible; it is never blanked on failure.
func (v *ViewState) ApplyFetchFailure() {
	v.Connectivity = Disconnected

	if v.Snapshot == nil {
		v.InitialLoadFailed = true
	}
}

// OpenIssueChat starts (or restarts) the issue-scoped session. Opening a
// different issue discards the previous session.
func (v *ViewState) OpenIssueChat(issueID string) {
	if v.IssueChat != nil && v.IssueChat.IssueID == issueID {
		return
	}

	v.IssueChat = NewChatSession(issueID, issueChatGreeting)
}

// CloseIssueChat destroys the issue-scoped session.
func (v *ViewState) CloseIssueChat() {
	v.IssueChat = nil
}

// ClearGlobalChat resets the global session to its greeting.
func (v *ViewState) ClearGlobalChat() {
	v.GlobalChat = NewChatSession("", globalChatGreeting)
}

// Filter returns the FilterState for a surface.
func (v *ViewState) Filter(surface Surface) *FilterState {
	switch surface {
	case SurfaceAllIssues:
		return &v.AllIssues
	case SurfaceRuleAnalysis:
		return &v.RuleAnalysis
	default:
		return &v.Widget
	}
}

// Issues returns the current snapshot's issues, or nil before first load.
func (v *ViewState) Issues() []models.Issue {
	if v.Snapshot == nil {
		return nil
	}

	return v.Snapshot.Issues
}
