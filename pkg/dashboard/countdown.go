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
	"time"

	"github.com/threatdeck/threatdeck/pkg/models"
)

// Countdown computes time-until-next-scan from the snapshot's last_run and
// the backend's processing interval. Only one countdown exists at a time:
// a new snapshot replaces the value wholesale via NewCountdown. Reaching
// zero hides the display but never triggers a refetch; the fixed poll
// cadence is independent of the server-declared interval and the two may
// disagree.
type Countdown struct {
	lastRun  time.Time
	interval time.Duration
}

// NewCountdown derives the countdown for a snapshot, or nil when it is not
// meaningful (no last_run, non-idle status, or no positive interval).
func NewCountdown(snap *models.Snapshot) *Countdown {
	if snap == nil || snap.LastRun == nil {
		return nil
	}

	if !snap.Status.CountdownEligible() {
		return nil
	}

	if snap.Settings.ProcessingInterval <= 0 {
		return nil
	}

	return &Countdown{
		lastRun:  *snap.LastRun,
		interval: time.Duration(snap.Settings.ProcessingInterval) * time.Second,
	}
}

// Remaining is max(0, last_run + interval - now).
func (c *Countdown) Remaining(now time.Time) time.Duration {
	left := c.lastRun.Add(c.interval).Sub(now)
	if left < 0 {
		return 0
	}

	return left
}

// Visible reports whether the countdown should be displayed at now.
// At zero the display is hidden.
func (c *Countdown) Visible(now time.Time) bool {
	return c != nil && c.Remaining(now) > 0
}

// FormatMMSS renders a remaining duration as zero-padded MM:SS.
func FormatMMSS(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	totalSeconds := int(d / time.Second)

	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
