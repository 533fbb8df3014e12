package app

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"

	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

type SessionStore interface {
	Upsert(ctx context.Context, session *model.ChatSession) error
	UpdateIfVersion(ctx context.Context, session *model.ChatSession, expected int64) (bool, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.ChatSession, error)
	GetByID(ctx context.Context, id string) (*model.ChatSession, error)
	GetShared(ctx context.Context, id string) (*model.ChatSession, error)
	SetShared(ctx context.Context, id string, userID uint, shared bool) (bool, error)
	DeleteByIDAndUserID(ctx context.Context, id string, userID uint) (bool, error)
}

type SharedSessionCache interface {
	Get(ctx context.Context, id string) (*model.SharedSession, bool, error)
	Set(ctx context.Context, shared model.SharedSession) error
	Delete(ctx context.Context, id string) error
}

type SessionService struct {
	store SessionStore
	cache SharedSessionCache
	log   *logger.Logger
}

func NewSessionService(store SessionStore, cache SharedSessionCache, log *logger.Logger) *SessionService {
	return &SessionService{store: store, cache: cache, log: log}
}

type SaveSessionInput struct {
	UserID   uint
	ID       string
	Title    string
	Messages []model.ChatTurn
	Model    string
	// ExpectedVersion turns the save into a conditional update when set.
	ExpectedVersion *int64
}

func (s *SessionService) List(ctx context.Context, userID uint) ([]model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.store.ListByUserID(ctx, userID)
}

func (s *SessionService) Get(ctx context.Context, userID uint, id string) (*model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) Save(ctx context.Context, input SaveSessionInput) (*model.ChatSession, error) {
	if input.UserID == 0 {
		return nil, ErrUnauthorized
	}
	id := strings.TrimSpace(input.ID)
	if id == "" || len(id) > 64 {
		return nil, ErrInvalidInput
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = model.DeriveTitle(input.Messages)
	}
	session := &model.ChatSession{
		ID:        id,
		UserID:    input.UserID,
		Title:     title,
		Messages:  datatypes.NewJSONType(input.Messages),
		Model:     input.Model,
		CreatedAt: time.Now().UnixMilli(),
	}

	if input.ExpectedVersion != nil {
		ok, err := s.store.UpdateIfVersion(ctx, session, *input.ExpectedVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			existing, err := s.store.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if existing == nil || existing.UserID != input.UserID {
				return nil, ErrSessionNotFound
			}
			return nil, ErrSessionConflict
		}
		s.invalidateShared(ctx, id)
		return s.store.GetByID(ctx, id)
	}

	if err := s.SaveSnapshot(ctx, session); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// SaveSnapshot upserts a session unless the id belongs to another user. The
// owner check runs after the write so a concurrent claim of the same id by
// another user cannot slip in between.
func (s *SessionService) SaveSnapshot(ctx context.Context, session *model.ChatSession) error {
	if session.UserID == 0 || strings.TrimSpace(session.ID) == "" {
		return ErrInvalidInput
	}
	if err := s.store.Upsert(ctx, session); err != nil {
		return err
	}
	stored, err := s.store.GetByID(ctx, session.ID)
	if err != nil {
		return err
	}
	if stored == nil || stored.UserID != session.UserID {
		return ErrSessionNotFound
	}
	if stored.IsShared {
		s.invalidateShared(ctx, session.ID)
	}
	return nil
}

func (s *SessionService) Delete(ctx context.Context, userID uint, id string) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	ok, err := s.store.DeleteByIDAndUserID(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.invalidateShared(ctx, id)
	return nil
}

func (s *SessionService) Share(ctx context.Context, userID uint, id string, shared bool) error {
	if userID == 0 {
		return ErrUnauthorized
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.store.SetShared(ctx, id, userID, shared); err != nil {
		return err
	}
	s.invalidateShared(ctx, id)
	return nil
}

// GetShared returns the public projection of a shared session. Image parts
// are replaced by a text marker.
func (s *SessionService) GetShared(ctx context.Context, id string) (*model.SharedSession, error) {
	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("shared session cache read failed", "session_id", id, "error", err)
		} else if hit {
			return cached, nil
		}
	}

	session, err := s.store.GetShared(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	shared := session.Shared()
	if s.cache != nil {
		if err := s.cache.Set(ctx, shared); err != nil {
			s.log.Warn("shared session cache write failed", "session_id", id, "error", err)
		}
	}
	return &shared, nil
}

func (s *SessionService) invalidateShared(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warn("shared session cache delete failed", "session_id", id, "error", err)
	}
}
