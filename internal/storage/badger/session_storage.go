package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
)

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) Get(ctx context.Context, credentialID, siteID string) (*models.SessionRecord, error) {
	key := models.SessionKey(credentialID, siteID)

	var record models.SessionRecord
	if err := s.db.Store().Get(key, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", key, err)
	}
	return &record, nil
}

func (s *SessionStorage) Put(ctx context.Context, record *models.SessionRecord) error {
	if record.CredentialID == "" || record.SiteID == "" {
		return fmt.Errorf("session record requires credential and site identifiers")
	}
	record.Key = models.SessionKey(record.CredentialID, record.SiteID)

	// Last-writer-wins: the whole cookie set is replaced in one write so
	// concurrent refreshes never interleave partial sets.
	if err := s.db.Store().Upsert(record.Key, record); err != nil {
		return fmt.Errorf("failed to store session %s: %w", record.Key, err)
	}

	s.logger.Debug().
		Str("session", record.Key).
		Int("cookies", len(record.Cookies)).
		Msg("Session record stored")
	return nil
}

func (s *SessionStorage) Delete(ctx context.Context, credentialID, siteID string) error {
	key := models.SessionKey(credentialID, siteID)

	if err := s.db.Store().Delete(key, &models.SessionRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session %s: %w", key, err)
	}

	s.logger.Info().Str("session", key).Msg("Session record cleared")
	return nil
}
