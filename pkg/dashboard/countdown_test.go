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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdeck/threatdeck/pkg/models"
)

func snapshotWithCountdown(status models.Status, lastRun time.Time, intervalSeconds int) *models.Snapshot {
	return &models.Snapshot{
		LastRun:  &lastRun,
		Status:   status,
		Settings: models.Settings{ProcessingInterval: intervalSeconds},
	}
}

func TestCountdown_RemainingAndFormat(t *testing.T) {
	lastRun := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	c := NewCountdown(snapshotWithCountdown(models.StatusReady, lastRun, 300))
	require.NotNil(t, c)

	// At T+120s of a 300s interval, 180s remain.
	now := lastRun.Add(120 * time.Second)
	assert.Equal(t, 180*time.Second, c.Remaining(now))
	assert.Equal(t, "03:00", FormatMMSS(c.Remaining(now)))
	assert.True(t, c.Visible(now))
}

func TestCountdown_HiddenAtZero(t *testing.T) {
	lastRun := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	c := NewCountdown(snapshotWithCountdown(models.StatusIdle, lastRun, 300))
	require.NotNil(t, c)

	atExpiry := lastRun.Add(300 * time.Second)
	assert.Equal(t, time.Duration(0), c.Remaining(atExpiry))
	assert.False(t, c.Visible(atExpiry))

	wellPast := lastRun.Add(45 * time.Minute)
	assert.Equal(t, time.Duration(0), c.Remaining(wellPast))
	assert.False(t, c.Visible(wellPast))
}

func TestNewCountdown_EligibilityGates(t *testing.T) {
	lastRun := time.Now()

	tests := []struct {
		name string
		snap *models.Snapshot
	}{
		{name: "nil snapshot", snap: nil},
		{name: "no last_run", snap: &models.Snapshot{Status: models.StatusReady, Settings: models.Settings{ProcessingInterval: 300}}},
		{name: "running status", snap: snapshotWithCountdown(models.StatusRunning, lastRun, 300)},
		{name: "error status", snap: snapshotWithCountdown(models.StatusError, lastRun, 300)},
		{name: "unknown status string", snap: snapshotWithCountdown(models.Status("Fetching logs"), lastRun, 300)},
		{name: "zero interval", snap: snapshotWithCountdown(models.StatusReady, lastRun, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, NewCountdown(tt.snap))
		})
	}
}

func TestNewCountdown_EligibleStatuses(t *testing.T) {
	lastRun := time.Now()

	assert.NotNil(t, NewCountdown(snapshotWithCountdown(models.StatusReady, lastRun, 60)))
	assert.NotNil(t, NewCountdown(snapshotWithCountdown(models.StatusIdle, lastRun, 60)))
}

func TestFormatMMSS(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{0, "00:00"},
		{-5 * time.Second, "00:00"},
		{59 * time.Second, "00:59"},
		{60 * time.Second, "01:00"},
		{180 * time.Second, "03:00"},
		{3599 * time.Second, "59:59"},
		{90*time.Second + 400*time.Millisecond, "01:30"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatMMSS(tt.d))
	}
}
