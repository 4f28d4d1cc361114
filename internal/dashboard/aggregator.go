// Package dashboard assembles the dashboard snapshot from the configured
// tiles and live Home Assistant state.
package dashboard

import (
	"context"
	"sort"
	"time"

	"familydash/internal/clock"
	"familydash/internal/config"
	"familydash/internal/entity"
	"familydash/internal/ha"
	"familydash/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Snapshot is the point-in-time dashboard view. A nil entry in States
// means the entity was looked up and is unavailable.
type Snapshot struct {
	Config    config.Dashboard     `json:"config"`
	States    map[string]*ha.State `json:"states"`
	Title     string               `json:"title"`
	Timestamp time.Time            `json:"ts"`
}

// Aggregator builds snapshots. It holds no per-request state and is safe
// for concurrent use.
type Aggregator struct {
	client      ha.HAClient
	clock       clock.Clock
	title       string
	locale      language.Tag
	concurrency int
	fillTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewAggregator creates a new dashboard aggregator
func NewAggregator(client ha.HAClient, settings *config.Settings, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		client:      client,
		clock:       clk,
		title:       settings.Title,
		locale:      language.Make(settings.DashboardLocale),
		concurrency: settings.FetchConcurrency,
		fillTimeout: settings.HomeAssistant.Timeout,
		logger:      logger,
		metrics:     m,
	}
}

// Build assembles a snapshot for dashboard. It never fails: upstream errors
// degrade the result instead.
//
// All states are fetched in one call first. When that works, every light
// among them becomes a room, replacing the configured rooms. Entities still
// without a state afterwards are fetched one by one, concurrently, under a
// single upstream timeout so a limited fan-out cannot stretch the build.
func (a *Aggregator) Build(ctx context.Context, dashboard *config.Dashboard) *Snapshot {
	states := make(map[string]*ha.State)
	rooms := dashboard.Rooms

	all, err := a.client.GetAllStates(ctx)
	if err != nil {
		a.logger.Warn("Bulk state fetch failed, keeping configured rooms", zap.Error(err))
		a.metrics.Degraded("bulk")
	} else {
		for _, state := range all {
			if state != nil {
				states[state.EntityID] = state
			}
		}
		if lights := a.lightRooms(all); len(lights) > 0 {
			rooms = lights
		}
	}

	a.fill(ctx, missingIDs(rooms, dashboard.Info, states), states)

	return &Snapshot{
		Config: config.Dashboard{
			Rooms:        rooms,
			Info:         dashboard.Info,
			QuickActions: dashboard.QuickActions,
		},
		States:    states,
		Title:     a.title,
		Timestamp: a.clock.Now().UTC(),
	}
}

// lightRooms derives one room per light, sorted by label
func (a *Aggregator) lightRooms(states []*ha.State) []config.Room {
	rooms := make([]config.Room, 0)
	for _, state := range states {
		if entity.IsLight(state) {
			rooms = append(rooms, config.Room{
				Label:    entity.Label(state),
				EntityID: state.EntityID,
			})
		}
	}

	// Collators keep internal buffers, so each build uses its own
	col := collate.New(a.locale)
	sort.SliceStable(rooms, func(i, j int) bool {
		if c := col.CompareString(rooms[i].Label, rooms[j].Label); c != 0 {
			return c < 0
		}
		return rooms[i].EntityID < rooms[j].EntityID
	})

	return rooms
}

// fill looks up ids concurrently and records each result, nil on failure.
// A failure never cancels the others. Lookups not started before the fill
// deadline are recorded as nil without calling upstream.
func (a *Aggregator) fill(ctx context.Context, ids []string, states map[string]*ha.State) {
	if len(ids) == 0 {
		return
	}

	if a.fillTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.fillTimeout)
		defer cancel()
	}

	results := make([]*ha.State, len(ids))

	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				a.logger.Warn("Entity lookup skipped, fill deadline passed",
					zap.String("entity_id", id))
				a.metrics.Degraded("entity")
				return nil
			}

			state, err := a.client.GetState(ctx, id)
			if err != nil {
				a.logger.Warn("Entity state unavailable",
					zap.String("entity_id", id),
					zap.Error(err))
				a.metrics.Degraded("entity")
				return nil
			}
			results[i] = state
			return nil
		})
	}

	g.Wait()

	for i, id := range ids {
		states[id] = results[i]
	}
}

// missingIDs returns the distinct room and info ids with no recorded state,
// in first-seen order
func missingIDs(rooms []config.Room, info []config.InfoItem, states map[string]*ha.State) []string {
	seen := make(map[string]bool)
	var ids []string

	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if _, ok := states[id]; !ok {
			ids = append(ids, id)
		}
	}

	for _, room := range rooms {
		add(room.EntityID)
	}
	for _, item := range info {
		add(item.EntityID)
	}

	return ids
}
