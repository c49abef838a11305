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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdeck/threatdeck/pkg/models"
)

func TestNewViewState_Defaults(t *testing.T) {
	v := NewViewState()

	assert.Equal(t, Connecting, v.Connectivity)
	assert.Nil(t, v.Snapshot)
	assert.Nil(t, v.IssueChat)
	assert.False(t, v.InitialLoadFailed)

	require.NotNil(t, v.GlobalChat)
	require.Len(t, v.GlobalChat.Messages, 1)
	assert.Equal(t, RoleAI, v.GlobalChat.Messages[0].Role)

	for _, f := range []FilterState{v.Widget, v.AllIssues, v.RuleAnalysis} {
		assert.Equal(t, SortTimestampDesc, f.Sort)
		assert.Equal(t, ViewGrid, f.ViewMode)
		assert.Nil(t, f.Severity)
	}
}

func TestViewState_ApplySnapshotKeepsFilters(t *testing.T) {
	v := NewViewState()

	sev := models.SeverityCritical
	v.AllIssues.Severity = &sev
	v.AllIssues.Search = "ssh"
	v.RuleAnalysis.RuleFilter = "brute"

	snap := &models.Snapshot{Status: models.StatusReady}
	v.ApplySnapshot(snap)

	assert.Same(t, snap, v.Snapshot)
	assert.Equal(t, Connected, v.Connectivity)

	// Fresh data never resets filters.
	assert.Equal(t, &sev, v.AllIssues.Severity)
	assert.Equal(t, "ssh", v.AllIssues.Search)
	assert.Equal(t, "brute", v.RuleAnalysis.RuleFilter)
}

func TestViewState_FetchFailureKeepsStaleSnapshot(t *testing.T) {
	v := NewViewState()

	snap := &models.Snapshot{Status: models.StatusReady}
	v.ApplySnapshot(snap)

	v.ApplyFetchFailure()

	assert.Equal(t, Disconnected, v.Connectivity)
	assert.Same(t, snap, v.Snapshot)
	assert.False(t, v.InitialLoadFailed)

	// Recovery on the next successful poll.
	v.ApplySnapshot(&models.Snapshot{Status: models.StatusIdle})
	assert.Equal(t, Connected, v.Connectivity)
}

func TestViewState_InitialLoadFailure(t *testing.T) {
	v := NewViewState()

	v.ApplyFetchFailure()

	assert.True(t, v.InitialLoadFailed)
	assert.Nil(t, v.Snapshot)

	v.ApplySnapshot(&models.Snapshot{})
	assert.False(t, v.InitialLoadFailed)
}

func TestViewState_OpenIssueChat(t *testing.T) {
	v := NewViewState()

	v.OpenIssueChat("issue-1")
	require.NotNil(t, v.IssueChat)
	assert.Equal(t, "issue-1", v.IssueChat.IssueID)

	v.IssueChat.CompleteTurn("what happened", "an intrusion")

	// Reopening the same issue keeps the session.
	v.OpenIssueChat("issue-1")
	assert.Len(t, v.IssueChat.Turns, 1)

	// A different issue discards it.
	v.OpenIssueChat("issue-2")
	assert.Equal(t, "issue-2", v.IssueChat.IssueID)
	assert.Empty(t, v.IssueChat.Turns)

	v.CloseIssueChat()
	assert.Nil(t, v.IssueChat)
}

func TestViewState_ClearGlobalChat(t *testing.T) {
	v := NewViewState()

	v.GlobalChat.EchoUser("hello")
	v.GlobalChat.CompleteTurn("hello", "hi")

	v.ClearGlobalChat()

	require.Len(t, v.GlobalChat.Messages, 1)
	assert.Equal(t, RoleAI, v.GlobalChat.Messages[0].Role)
	assert.Empty(t, v.GlobalChat.Turns)
}

func TestViewState_FilterSelection(t *testing.T) {
	v := NewViewState()

	v.Filter(SurfaceAllIssues).Search = "a"
	v.Filter(SurfaceRuleAnalysis).Search = "b"
	v.Filter(SurfaceWidget).Search = "c"

	assert.Equal(t, "a", v.AllIssues.Search)
	assert.Equal(t, "b", v.RuleAnalysis.Search)
	assert.Equal(t, "c", v.Widget.Search)
}

func TestViewState_Issues(t *testing.T) {
	v := NewViewState()
	assert.Nil(t, v.Issues())

	v.ApplySnapshot(&models.Snapshot{Issues: []models.Issue{{ID: "1"}}})
	assert.Len(t, v.Issues(), 1)
}

func TestFilterState_ClearKeepsViewMode(t *testing.T) {
	sev := models.SeverityHigh
	f := FilterState{
		Severity:   &sev,
		Search:     "ssh",
		Sort:       SortSeverityDesc,
		RuleFilter: "brute",
		ViewMode:   ViewList,
	}

	f.Clear()

	assert.Nil(t, f.Severity)
	assert.Empty(t, f.Search)
	assert.Equal(t, SortTimestampDesc, f.Sort)
	assert.Empty(t, f.RuleFilter)
	assert.Equal(t, ViewList, f.ViewMode)
}

func TestChatSession_TurnLifecycle(t *testing.T) {
	s := NewChatSession("issue-1", "greeting")

	s.EchoUser("first question")
	require.Len(t, s.Messages, 2)
	assert.Equal(t, RoleUser, s.Messages[1].Role)

	// Echo alone never touches history.
	assert.Empty(t, s.Turns)

	s.CompleteTurn("first question", "first answer")
	require.Len(t, s.Turns, 1)
	assert.Equal(t, models.ChatTurn{User: "first question", AI: "first answer"}, s.Turns[0])

	s.EchoUser("second question")
	s.FailTurn("execution failed: timeout")

	// The error shows inline but history is unchanged.
	assert.Equal(t, RoleError, s.Messages[len(s.Messages)-1].Role)
	assert.Len(t, s.Turns, 1)
}

func TestChatSession_LastTurns(t *testing.T) {
	s := NewChatSession("", "greeting")

	assert.Nil(t, s.LastTurns(3))

	for i := 0; i < 5; i++ {
		s.CompleteTurn("q", "a")
	}

	assert.Len(t, s.LastTurns(3), 3)
	assert.Len(t, s.LastTurns(10), 5)
	assert.Nil(t, s.LastTurns(0))
}

func TestConnectivity_String(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "unknown", Connectivity(42).String())
}
