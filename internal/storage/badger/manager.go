package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/interfaces"
)

// Manager aggregates the per-aggregate Badger stores behind one connection.
type Manager struct {
	db        *BadgerDB
	logger    arbor.ILogger
	sessions  interfaces.SessionStorage
	feeds     interfaces.FeedStorage
	items     interfaces.ItemStorage
	jobs      interfaces.JobStorage
	schedules interfaces.ScheduleStorage
}

// NewManager opens the database and wires up all storage implementations.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:        db,
		logger:    logger,
		sessions:  NewSessionStorage(db, logger),
		feeds:     NewFeedStorage(db, logger),
		items:     NewItemStorage(db, logger),
		jobs:      NewJobStorage(db, logger),
		schedules: NewScheduleStorage(db, logger),
	}, nil
}

func (m *Manager) Sessions() interfaces.SessionStorage   { return m.sessions }
func (m *Manager) Feeds() interfaces.FeedStorage         { return m.feeds }
func (m *Manager) Items() interfaces.ItemStorage         { return m.items }
func (m *Manager) Jobs() interfaces.JobStorage           { return m.jobs }
func (m *Manager) Schedules() interfaces.ScheduleStorage { return m.schedules }

// Maintain runs value log garbage collection. Safe to call while stores are
// in use; intended after bulk deletes such as retention runs.
func (m *Manager) Maintain() {
	m.db.RunGC()
}

func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
