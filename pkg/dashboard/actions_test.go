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
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdeck/threatdeck/pkg/logger"
	"github.com/threatdeck/threatdeck/pkg/models"
)

// stubBackend lets each test wire only the calls it exercises.
type stubBackend struct {
	triggerAnalysis func(ctx context.Context) error
	ignoreIssue     func(ctx context.Context, issueID string) error
	queryIssue      func(ctx context.Context, issueID, query string, history []models.ChatTurn) (string, error)
	analyzeChat     func(ctx context.Context, query string, history []models.ChatTurn) (json.RawMessage, error)
	executeChat     func(ctx context.Context, query string, plan json.RawMessage, history []models.ChatTurn) (string, error)
	generateScript  func(ctx context.Context, issueID string) (string, error)
	logDetail       func(ctx context.Context, logID string) (json.RawMessage, error)
	settings        func(ctx context.Context) (map[string]interface{}, error)
	saveSettings    func(ctx context.Context, settings map[string]interface{}) error
	clearDB         func(ctx context.Context) error
}

func (s *stubBackend) TriggerAnalysis(ctx context.Context) error {
	return s.triggerAnalysis(ctx)
}

func (s *stubBackend) IgnoreIssue(ctx context.Context, issueID string) error {
	return s.ignoreIssue(ctx, issueID)
}

func (s *stubBackend) QueryIssue(ctx context.Context, issueID, query string, history []models.ChatTurn) (string, error) {
	return s.queryIssue(ctx, issueID, query, history)
}

func (s *stubBackend) AnalyzeChat(ctx context.Context, query string, history []models.ChatTurn) (json.RawMessage, error) {
	return s.analyzeChat(ctx, query, history)
}

func (s *stubBackend) ExecuteChat(ctx context.Context, query string, plan json.RawMessage, history []models.ChatTurn) (string, error) {
	return s.executeChat(ctx, query, plan, history)
}

func (s *stubBackend) GenerateScript(ctx context.Context, issueID string) (string, error) {
	return s.generateScript(ctx, issueID)
}

func (s *stubBackend) LogDetail(ctx context.Context, logID string) (json.RawMessage, error) {
	return s.logDetail(ctx, logID)
}

func (s *stubBackend) Settings(ctx context.Context) (map[string]interface{}, error) {
	return s.settings(ctx)
}

func (s *stubBackend) SaveSettings(ctx context.Context, settings map[string]interface{}) error {
	return s.saveSettings(ctx, settings)
}

func (s *stubBackend) ClearDB(ctx context.Context) error {
	return s.clearDB(ctx)
}

type countingRefresher struct {
	calls int
}

func (c *countingRefresher) Refresh() { c.calls++ }

func newTestDispatcher(backend Backend, refresher Refresher) *Dispatcher {
	return NewDispatcher(backend, refresher, logger.NewTestLogger())
}

func TestDispatcher_BusyGuardPerControl(t *testing.T) {
	d := newTestDispatcher(&stubBackend{}, nil)

	chatA := Action{Kind: ActionIssueChat, IssueID: "a"}
	chatB := Action{Kind: ActionIssueChat, IssueID: "b"}
	ignoreA := Action{Kind: ActionIgnore, IssueID: "a"}

	require.NoError(t, d.Begin(chatA))
	assert.True(t, d.Busy(chatA))

	// Same control again is rejected.
	assert.ErrorIs(t, d.Begin(chatA), ErrControlBusy)

	// A different issue's chat and a different action on the same issue
	// are independent controls.
	require.NoError(t, d.Begin(chatB))
	require.NoError(t, d.Begin(ignoreA))

	d.Finish(chatA)
	assert.False(t, d.Busy(chatA))
	require.NoError(t, d.Begin(chatA))
}

func TestDispatcher_GlobalControlsProcessWide(t *testing.T) {
	d := newTestDispatcher(&stubBackend{}, nil)

	require.NoError(t, d.Begin(Action{Kind: ActionGlobalChat, Query: "first"}))
	assert.ErrorIs(t, d.Begin(Action{Kind: ActionGlobalChat, Query: "second"}), ErrControlBusy)

	// Other global controls are still free.
	require.NoError(t, d.Begin(Action{Kind: ActionTriggerAnalysis}))
	require.NoError(t, d.Begin(Action{Kind: ActionClearDB}))
}

func TestDispatcher_MutatingSuccessTriggersRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	backend := &stubBackend{
		ignoreIssue: func(_ context.Context, issueID string) error {
			assert.Equal(t, "abc", issueID)
			return nil
		},
	}

	d := newTestDispatcher(backend, refresher)

	res := d.Do(context.Background(), Action{Kind: ActionIgnore, IssueID: "abc"})

	require.NoError(t, res.Err)
	assert.Equal(t, 1, refresher.calls)
	assert.NotEmpty(t, res.Attempt)
}

func TestDispatcher_FailureSkipsRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	backend := &stubBackend{
		ignoreIssue: func(_ context.Context, _ string) error {
			return errors.New("500 from backend")
		},
	}

	d := newTestDispatcher(backend, refresher)

	res := d.Do(context.Background(), Action{Kind: ActionIgnore, IssueID: "abc"})

	require.Error(t, res.Err)
	assert.Zero(t, refresher.calls)
}

func TestDispatcher_ReadActionsNeverRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	backend := &stubBackend{
		queryIssue: func(_ context.Context, _, _ string, _ []models.ChatTurn) (string, error) {
			return "an answer", nil
		},
		generateScript: func(_ context.Context, _ string) (string, error) {
			return "#!/bin/bash\n", nil
		},
	}

	d := newTestDispatcher(backend, refresher)

	res := d.Do(context.Background(), Action{Kind: ActionIssueChat, IssueID: "x", Query: "why"})
	require.NoError(t, res.Err)
	assert.Equal(t, "an answer", res.Answer)

	res = d.Do(context.Background(), Action{Kind: ActionScript, IssueID: "x"})
	require.NoError(t, res.Err)
	assert.Equal(t, "#!/bin/bash\n", res.Script)

	assert.Zero(t, refresher.calls)
}

func TestDispatcher_GlobalChatTwoPhase(t *testing.T) {
	plan := json.RawMessage(`{"queries":["SELECT 1"]}`)

	var executedPlan json.RawMessage

	backend := &stubBackend{
		analyzeChat: func(_ context.Context, query string, _ []models.ChatTurn) (json.RawMessage, error) {
			assert.Equal(t, "how many alerts", query)
			return plan, nil
		},
		executeChat: func(_ context.Context, _ string, p json.RawMessage, _ []models.ChatTurn) (string, error) {
			executedPlan = p
			return "42 alerts", nil
		},
	}

	d := newTestDispatcher(backend, nil)

	res := d.Do(context.Background(), Action{Kind: ActionGlobalChat, Query: "how many alerts"})

	require.NoError(t, res.Err)
	assert.Equal(t, "42 alerts", res.Answer)
	assert.JSONEq(t, string(plan), string(executedPlan))
}

func TestDispatcher_GlobalChatAnalysisFailureShortCircuits(t *testing.T) {
	executed := false

	backend := &stubBackend{
		analyzeChat: func(_ context.Context, _ string, _ []models.ChatTurn) (json.RawMessage, error) {
			return nil, errors.New("model unavailable")
		},
		executeChat: func(_ context.Context, _ string, _ json.RawMessage, _ []models.ChatTurn) (string, error) {
			executed = true
			return "", nil
		},
	}

	d := newTestDispatcher(backend, nil)

	res := d.Do(context.Background(), Action{Kind: ActionGlobalChat, Query: "q"})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "analysis failed")
	assert.False(t, executed)
}

func TestDispatcher_GlobalChatExecutionFailure(t *testing.T) {
	backend := &stubBackend{
		analyzeChat: func(_ context.Context, _ string, _ []models.ChatTurn) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
		executeChat: func(_ context.Context, _ string, _ json.RawMessage, _ []models.ChatTurn) (string, error) {
			return "", errors.New("timeout")
		},
	}

	d := newTestDispatcher(backend, nil)

	res := d.Do(context.Background(), Action{Kind: ActionGlobalChat, Query: "q"})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "execution failed")
	assert.Empty(t, res.Answer)
}

func TestDispatcher_GlobalChatHistoryWindow(t *testing.T) {
	var gotHistory []models.ChatTurn

	backend := &stubBackend{
		analyzeChat: func(_ context.Context, _ string, history []models.ChatTurn) (json.RawMessage, error) {
			gotHistory = history
			return json.RawMessage(`{}`), nil
		},
		executeChat: func(_ context.Context, _ string, _ json.RawMessage, history []models.ChatTurn) (string, error) {
			assert.Equal(t, gotHistory, history)
			return "ok", nil
		},
	}

	d := newTestDispatcher(backend, nil)

	history := []models.ChatTurn{
		{User: "q1", AI: "a1"},
		{User: "q2", AI: "a2"},
		{User: "q3", AI: "a3"},
		{User: "q4", AI: "a4"},
		{User: "q5", AI: "a5"},
	}

	res := d.Do(context.Background(), Action{Kind: ActionGlobalChat, Query: "q6", History: history})

	require.NoError(t, res.Err)
	require.Len(t, gotHistory, globalChatContextTurns)
	assert.Equal(t, "q3", gotHistory[0].User)
	assert.Equal(t, "q5", gotHistory[2].User)
}

func TestDispatcher_LogDetail(t *testing.T) {
	record := json.RawMessage(`{"sha256":"deadbeef","message":"denied"}`)

	backend := &stubBackend{
		logDetail: func(_ context.Context, logID string) (json.RawMessage, error) {
			assert.Equal(t, "deadbeef", logID)
			return record, nil
		},
	}

	d := newTestDispatcher(backend, nil)

	res := d.Do(context.Background(), Action{Kind: ActionLogDetail, LogID: "deadbeef"})

	require.NoError(t, res.Err)
	assert.JSONEq(t, string(record), string(res.Record))
}

func TestDispatcher_SaveSettingsAndClearDB(t *testing.T) {
	refresher := &countingRefresher{}

	var saved map[string]interface{}

	cleared := false
	backend := &stubBackend{
		saveSettings: func(_ context.Context, settings map[string]interface{}) error {
			saved = settings
			return nil
		},
		clearDB: func(_ context.Context) error {
			cleared = true
			return nil
		},
	}

	d := newTestDispatcher(backend, refresher)

	res := d.Do(context.Background(), Action{
		Kind:     ActionSaveSettings,
		Settings: map[string]interface{}{"processing_interval": 600},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, 600, saved["processing_interval"])

	res = d.Do(context.Background(), Action{Kind: ActionClearDB})
	require.NoError(t, res.Err)
	assert.True(t, cleared)

	assert.Equal(t, 2, refresher.calls)
}

func TestDispatcher_LoadSettingsBypassesGuard(t *testing.T) {
	backend := &stubBackend{
		settings: func(_ context.Context) (map[string]interface{}, error) {
			return map[string]interface{}{"api_keys": []interface{}{"k1"}}, nil
		},
	}

	d := newTestDispatcher(backend, nil)

	// A busy settings control does not block the read.
	require.NoError(t, d.Begin(Action{Kind: ActionSaveSettings}))

	res := d.LoadSettings(context.Background())

	require.NoError(t, res.Err)
	assert.Contains(t, res.Values, "api_keys")
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d := newTestDispatcher(&stubBackend{}, nil)

	res := d.Do(context.Background(), Action{Kind: ActionKind(99)})

	assert.ErrorIs(t, res.Err, errUnknownAction)
}
