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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threatdeck/threatdeck/pkg/logger"
	"github.com/threatdeck/threatdeck/pkg/models"
)

const (
	// DefaultPollInterval is the fixed poll cadence. It is deliberately
	// independent of the backend's processing_interval.
	DefaultPollInterval = 30 * time.Second

	updateBuffer = 8
)

// SnapshotSource is the single backend call the fetcher depends on.
type SnapshotSource interface {
	Dashboard(ctx context.Context) (*models.Snapshot, error)
}

// Update is one fetch outcome delivered to the consumer. Connecting
// updates precede each request; terminal updates carry either a fresh
// snapshot or the error with the previous snapshot left in place.
type Update struct {
	Connectivity Connectivity
	Snapshot     *models.Snapshot
	Err          error
	Attempt      string
}

// Fetcher polls the backend on a fixed cadence, once immediately at
// startup, and on demand after mutating actions. Requests are not
// deduplicated, sequenced or canceled: results are applied in arrival
// order, so an older in-flight poll resolving after a newer one can
// overwrite more-current state. That race is inherited behavior, kept
// on purpose.
type Fetcher struct {
	source   SnapshotSource
	interval time.Duration
	clock    Clock
	logger   logger.Logger

	updates   chan Update
	refreshCh chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu        sync.RWMutex
	ticker    Ticker
	current   *models.Snapshot
	connState Connectivity
}

// NewFetcher creates a snapshot fetcher. A nil clock defaults to the real
// clock; a non-positive interval defaults to DefaultPollInterval.
func NewFetcher(source SnapshotSource, interval time.Duration, clock Clock, log logger.Logger) *Fetcher {
	if clock == nil {
		clock = realClock{}
	}

	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Fetcher{
		source:    source,
		interval:  interval,
		clock:     clock,
		logger:    log,
		updates:   make(chan Update, updateBuffer),
		refreshCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
		connState: Connecting,
	}
}

// Updates is the ordered stream of fetch outcomes.
func (f *Fetcher) Updates() <-chan Update {
	return f.updates
}

// Start polls immediately, then on every tick and on every Refresh signal,
// until ctx is done or Stop is called. Each poll runs in its own goroutine;
// a slow response never blocks the next tick.
func (f *Fetcher) Start(ctx context.Context) error {
	ticker := f.clock.Ticker(f.interval)

	f.mu.Lock()
	f.ticker = ticker
	f.mu.Unlock()

	defer ticker.Stop()

	f.logger.Info().Dur("interval", f.interval).Msg("Starting snapshot fetcher")

	f.spawnPoll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-ticker.Chan():
			f.spawnPoll(ctx)
		case <-f.refreshCh:
			f.spawnPoll(ctx)
		}
	}
}

// Stop shuts the loop down and waits for in-flight polls.
func (f *Fetcher) Stop(_ context.Context) error {
	f.closeOnce.Do(func() { close(f.done) })
	f.wg.Wait()

	return nil
}

// Refresh requests an immediate out-of-band poll, used after a mutating
// action succeeds and by the manual retry affordance. Coalesces when a
// refresh is already pending.
func (f *Fetcher) Refresh() {
	select {
	case f.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the last successfully fetched snapshot, which stays
// valid (stale-but-valid) across failures.
func (f *Fetcher) Snapshot() *models.Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.current
}

// Connectivity returns the current link state.
func (f *Fetcher) Connectivity() Connectivity {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.connState
}

func (f *Fetcher) spawnPoll(ctx context.Context) {
	f.wg.Add(1)

	go func() {
		defer f.wg.Done()
		f.poll(ctx)
	}()
}

// poll runs one fetch attempt. No dedup: overlapping attempts race and the
// later arrival wins, whatever its request order was.
func (f *Fetcher) poll(ctx context.Context) {
	attempt := uuid.NewString()

	f.setConnectivity(Connecting)
	f.emit(Update{Connectivity: Connecting, Attempt: attempt})

	snap, err := f.source.Dashboard(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Str("attempt", attempt).Msg("Snapshot fetch failed")

		// Previous snapshot stays untouched; the next scheduled tick is
		// the only automatic retry path.
		f.setConnectivity(Disconnected)
		f.emit(Update{Connectivity: Disconnected, Err: err, Attempt: attempt})

		return
	}

	f.mu.Lock()
	f.current = snap
	f.connState = Connected
	f.mu.Unlock()

	f.logger.Debug().
		Str("attempt", attempt).
		Int("issues", len(snap.Issues)).
		Str("status", string(snap.Status)).
		Msg("Snapshot replaced")

	f.emit(Update{Connectivity: Connected, Snapshot: snap, Attempt: attempt})
}

func (f *Fetcher) setConnectivity(state Connectivity) {
	f.mu.Lock()
	f.connState = state
	f.mu.Unlock()
}

func (f *Fetcher) emit(u Update) {
	select {
	case f.updates <- u:
	case <-f.done:
	}
}
