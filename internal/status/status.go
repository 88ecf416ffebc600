// Package status owns the persisted server status singleton, the
// admission gate applied at login, and the periodic task that syncs
// status to the database and flips scheduled maintenance.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

const (
	tickInterval = 100 * time.Millisecond
	syncInterval = 5 * time.Second
)

// Store persists the status singleton.
type Store interface {
	Load(ctx context.Context) (*models.ServerStatus, error)
	Save(ctx context.Context, status *models.ServerStatus) error
}

// Kicker is the slice of the connection registry the controller needs.
type Kicker interface {
	KickAll() int
	Count() int
}

// Controller guards the status fields with one mutex held only across
// in-memory reads and writes; persistence happens on a copy.
type Controller struct {
	store  Store
	kicker Kicker
	logger zerolog.Logger

	mu     sync.Mutex
	status models.ServerStatus

	now func() time.Time
}

// NewController loads the persisted status (a missing document means a
// fresh deployment) and marks the server online.
func NewController(ctx context.Context, store Store, kicker Kicker, logger zerolog.Logger) (*Controller, error) {
	c := &Controller{
		store:  store,
		kicker: kicker,
		logger: logger.With().Str("component", "status").Logger(),
		now:    time.Now,
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		c.status = *loaded
	}
	c.status.IsOnline = true

	if err := c.sync(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Admit applies the maintenance window and whitelist gate at
// authentication time.
func (c *Controller) Admit(pid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.IsMaintenance {
		return nex.Err("Authentication::UnderMaintenance")
	}
	if c.status.IsWhitelist {
		for _, allowed := range c.status.Whitelist {
			if allowed == pid {
				return nil
			}
		}
		return nex.Err("RendezVous::PermissionDenied")
	}
	return nil
}

// Snapshot returns a copy of the status with the live client count.
func (c *Controller) Snapshot() models.ServerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.status
	s.Whitelist = append([]uint32(nil), c.status.Whitelist...)
	s.NumClients = c.kicker.Count()
	return s
}

// StartMaintenance schedules a maintenance window. The periodic task
// performs the switch once the start time passes.
func (c *Controller) StartMaintenance(start, end time.Time) {
	c.mu.Lock()
	c.status.StartMaintenanceTime = start.UTC()
	c.status.EndMaintenanceTime = end.UTC()
	c.status.ShouldSwitchToMaintenance = true
	c.mu.Unlock()
}

// EndMaintenance lifts maintenance immediately.
func (c *Controller) EndMaintenance() {
	c.mu.Lock()
	c.status.IsMaintenance = false
	c.status.ShouldSwitchToMaintenance = false
	c.mu.Unlock()
}

// ToggleWhitelist flips whitelist-only admission and returns the new
// state.
func (c *Controller) ToggleWhitelist() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.IsWhitelist = !c.status.IsWhitelist
	return c.status.IsWhitelist
}

func (c *Controller) Whitelist() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.status.Whitelist...)
}

func (c *Controller) AddWhitelistUser(pid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.status.Whitelist {
		if existing == pid {
			return
		}
	}
	c.status.Whitelist = append(c.status.Whitelist, pid)
}

func (c *Controller) DelWhitelistUser(pid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.status.Whitelist[:0]
	for _, existing := range c.status.Whitelist {
		if existing != pid {
			out = append(out, existing)
		}
	}
	c.status.Whitelist = out
}

func (c *Controller) sync(ctx context.Context) error {
	c.mu.Lock()
	s := c.status
	s.Whitelist = append([]uint32(nil), c.status.Whitelist...)
	s.NumClients = c.kicker.Count()
	c.mu.Unlock()

	return c.store.Save(ctx, &s)
}

// maintenanceDue reports whether the scheduled switch should happen now,
// and consumes the flag if so.
func (c *Controller) maintenanceDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status.IsMaintenance || !c.status.ShouldSwitchToMaintenance {
		return false
	}
	if c.now().UTC().Before(c.status.StartMaintenanceTime) {
		return false
	}
	c.status.IsMaintenance = true
	c.status.ShouldSwitchToMaintenance = false
	return true
}

// Run drives the periodic task: a 100ms tick with a 5-second accumulator
// for persistence. Persistence errors are logged and retried next round.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	lastSync := c.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.now().Sub(lastSync) < syncInterval {
			continue
		}
		lastSync = c.now()

		if err := c.sync(ctx); err != nil {
			c.logger.Error().Err(err).Msg("status sync failed")
			continue
		}

		if c.maintenanceDue() {
			kicked := c.kicker.KickAll()
			c.logger.Info().Int("kicked", kicked).Msg("switched to maintenance")
			if err := c.sync(ctx); err != nil {
				c.logger.Error().Err(err).Msg("status sync failed")
			}
		}
	}
}

// Shutdown drains connected clients and persists a zeroed client count.
func (c *Controller) Shutdown(ctx context.Context) {
	kicked := c.kicker.KickAll()
	c.logger.Info().Int("kicked", kicked).Msg("drained clients for shutdown")

	c.mu.Lock()
	c.status.IsOnline = false
	s := c.status
	s.Whitelist = append([]uint32(nil), c.status.Whitelist...)
	s.NumClients = 0
	c.mu.Unlock()

	if err := c.store.Save(ctx, &s); err != nil {
		c.logger.Error().Err(err).Msg("final status sync failed")
	}
}

// MongoStore persists the singleton in the status collection.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Load(ctx context.Context) (*models.ServerStatus, error) {
	var status models.ServerStatus
	err := s.col.FindOne(ctx, bson.M{}).Decode(&status)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *MongoStore) Save(ctx context.Context, status *models.ServerStatus) error {
	_, err := s.col.UpdateOne(ctx, bson.M{}, bson.M{"$set": status},
		options.Update().SetUpsert(true))
	return err
}
