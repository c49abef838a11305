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
	"fmt"

	"github.com/google/uuid"

	"github.com/threatdeck/threatdeck/pkg/logger"
	"github.com/threatdeck/threatdeck/pkg/models"
)

// globalChatContextTurns bounds the history sent with a global chat turn.
const globalChatContextTurns = 3

var (
	// ErrControlBusy means the originating control already has a request
	// in flight. Unrelated controls are unaffected.
	ErrControlBusy = errors.New("control is busy")

	errUnknownAction = errors.New("unknown action kind")
)

// ActionKind identifies one dispatcher operation.
type ActionKind int

const (
	ActionIgnore ActionKind = iota
	ActionIssueChat
	ActionGlobalChat
	ActionScript
	ActionLogDetail
	ActionTriggerAnalysis
	ActionClearDB
	ActionSaveSettings
)

func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionIssueChat:
		return "issue-chat"
	case ActionGlobalChat:
		return "global-chat"
	case ActionScript:
		return "script"
	case ActionLogDetail:
		return "log-detail"
	case ActionTriggerAnalysis:
		return "trigger-analysis"
	case ActionClearDB:
		return "clear-db"
	case ActionSaveSettings:
		return "save-settings"
	default:
		return "unknown"
	}
}

// mutating reports whether a successful action invalidates the snapshot
// and should trigger a refresh.
func (k ActionKind) mutating() bool {
	switch k {
	case ActionIgnore, ActionTriggerAnalysis, ActionClearDB, ActionSaveSettings:
		return true
	default:
		return false
	}
}

// Action is a typed action descriptor: the command table looks handlers up
// from the kind rather than inspecting any render-layer attribute.
type Action struct {
	Kind    ActionKind
	IssueID string
	LogID   string
	Query   string
	// History is the caller's session history snapshot taken at submit
	// time. The dispatcher never reads live session state.
	History  []models.ChatTurn
	Settings map[string]interface{}
}

// ControlKey identifies the originating control for the busy guard:
// per-issue for issue actions, process-wide for the global ones.
func (a Action) ControlKey() string {
	switch a.Kind {
	case ActionIgnore, ActionIssueChat, ActionScript:
		return fmt.Sprintf("%s:%s", a.Kind, a.IssueID)
	case ActionLogDetail:
		return fmt.Sprintf("%s:%s", a.Kind, a.LogID)
	default:
		return a.Kind.String()
	}
}

// Result is the outcome of one dispatched action, reconciled into view
// state by the caller. Err is scoped to the originating control.
type Result struct {
	Action  Action
	Attempt string
	Err     error

	Answer string
	Script string
	Record json.RawMessage
	Values map[string]interface{}
}

// Backend is the API surface the dispatcher drives.
type Backend interface {
	TriggerAnalysis(ctx context.Context) error
	IgnoreIssue(ctx context.Context, issueID string) error
	QueryIssue(ctx context.Context, issueID, query string, history []models.ChatTurn) (string, error)
	AnalyzeChat(ctx context.Context, query string, history []models.ChatTurn) (json.RawMessage, error)
	ExecuteChat(ctx context.Context, query string, plan json.RawMessage, history []models.ChatTurn) (string, error)
	GenerateScript(ctx context.Context, issueID string) (string, error)
	LogDetail(ctx context.Context, logID string) (json.RawMessage, error)
	Settings(ctx context.Context) (map[string]interface{}, error)
	SaveSettings(ctx context.Context, settings map[string]interface{}) error
	ClearDB(ctx context.Context) error
}

// Refresher triggers a snapshot refresh after a mutating success.
type Refresher interface {
	Refresh()
}

type actionHandler func(ctx context.Context, a Action) Result

// Dispatcher executes dashboard actions against the backend. Busy-state is
// tracked per control: it blocks a second submission from the same control
// while one is outstanding but never serializes unrelated controls.
//
// Begin/Finish run on the event-processing goroutine; Do runs on a worker
// goroutine between them.
type Dispatcher struct {
	backend   Backend
	refresher Refresher
	logger    logger.Logger

	handlers map[ActionKind]actionHandler
	busy     map[string]bool
}

// NewDispatcher builds the dispatcher and its command table.
func NewDispatcher(backend Backend, refresher Refresher, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewTestLogger()
	}

	d := &Dispatcher{
		backend:   backend,
		refresher: refresher,
		logger:    log,
		busy:      make(map[string]bool),
	}

	d.handlers = map[ActionKind]actionHandler{
		ActionIgnore:          d.doIgnore,
		ActionIssueChat:       d.doIssueChat,
		ActionGlobalChat:      d.doGlobalChat,
		ActionScript:          d.doScript,
		ActionLogDetail:       d.doLogDetail,
		ActionTriggerAnalysis: d.doTriggerAnalysis,
		ActionClearDB:         d.doClearDB,
		ActionSaveSettings:    d.doSaveSettings,
	}

	return d
}

// Begin marks the action's control busy. It returns ErrControlBusy when a
// request from the same control is already outstanding.
func (d *Dispatcher) Begin(a Action) error {
	key := a.ControlKey()
	if d.busy[key] {
		return ErrControlBusy
	}

	d.busy[key] = true

	return nil
}

// Busy reports whether the action's control has a request in flight.
func (d *Dispatcher) Busy(a Action) bool {
	return d.busy[a.ControlKey()]
}

// Finish releases the action's control.
func (d *Dispatcher) Finish(a Action) {
	delete(d.busy, a.ControlKey())
}

// Do executes the action. On a mutating success it requests a snapshot
// refresh, so state changes only land via the backend-confirmed refetch;
// there is no optimistic local mutation.
func (d *Dispatcher) Do(ctx context.Context, a Action) Result {
	handler, ok := d.handlers[a.Kind]
	if !ok {
		return Result{Action: a, Err: fmt.Errorf("%w: %d", errUnknownAction, a.Kind)}
	}

	res := handler(ctx, a)
	res.Action = a
	res.Attempt = uuid.NewString()

	if res.Err != nil {
		d.logger.Warn().
			Err(res.Err).
			Str("action", a.Kind.String()).
			Str("control", a.ControlKey()).
			Msg("Action failed")

		return res
	}

	if a.Kind.mutating() && d.refresher != nil {
		d.refresher.Refresh()
	}

	return res
}

func (d *Dispatcher) doIgnore(ctx context.Context, a Action) Result {
	return Result{Err: d.backend.IgnoreIssue(ctx, a.IssueID)}
}

func (d *Dispatcher) doIssueChat(ctx context.Context, a Action) Result {
	answer, err := d.backend.QueryIssue(ctx, a.IssueID, a.Query, a.History)

	return Result{Answer: answer, Err: err}
}

// doGlobalChat runs the two dependent phases of a global turn. Either
// phase failing fails the whole turn; nothing reaches history.
func (d *Dispatcher) doGlobalChat(ctx context.Context, a Action) Result {
	history := a.History
	if len(history) > globalChatContextTurns {
		history = history[len(history)-globalChatContextTurns:]
	}

	plan, err := d.backend.AnalyzeChat(ctx, a.Query, history)
	if err != nil {
		return Result{Err: fmt.Errorf("analysis failed: %w", err)}
	}

	answer, err := d.backend.ExecuteChat(ctx, a.Query, plan, history)
	if err != nil {
		return Result{Err: fmt.Errorf("execution failed: %w", err)}
	}

	return Result{Answer: answer}
}

func (d *Dispatcher) doScript(ctx context.Context, a Action) Result {
	script, err := d.backend.GenerateScript(ctx, a.IssueID)

	return Result{Script: script, Err: err}
}

func (d *Dispatcher) doLogDetail(ctx context.Context, a Action) Result {
	record, err := d.backend.LogDetail(ctx, a.LogID)

	return Result{Record: record, Err: err}
}

func (d *Dispatcher) doTriggerAnalysis(ctx context.Context, _ Action) Result {
	return Result{Err: d.backend.TriggerAnalysis(ctx)}
}

func (d *Dispatcher) doClearDB(ctx context.Context, _ Action) Result {
	return Result{Err: d.backend.ClearDB(ctx)}
}

func (d *Dispatcher) doSaveSettings(ctx context.Context, a Action) Result {
	return Result{Err: d.backend.SaveSettings(ctx, a.Settings)}
}

// LoadSettings fetches the settings document for the settings surface.
// Reads do not pass through the busy guard or the refresh path.
func (d *Dispatcher) LoadSettings(ctx context.Context) Result {
	values, err := d.backend.Settings(ctx)

	return Result{Values: values, Err: err}
}
