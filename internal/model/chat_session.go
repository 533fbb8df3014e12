package model

import (
	"time"

	"gorm.io/datatypes"
)

// ChatSession is one conversation owned by a single user. The id is generated
// by the client and sorts by creation time.
type ChatSession struct {
	ID        string                         `gorm:"primaryKey;size:64" json:"id"`
	UserID    uint                           `gorm:"not null;index" json:"user_id"`
	Title     string                         `gorm:"size:256;not null" json:"title"`
	Messages  datatypes.JSONType[[]ChatTurn] `json:"messages"`
	Model     string                         `gorm:"size:128" json:"model"`
	IsShared  bool                           `gorm:"not null;default:false;index" json:"is_shared"`
	Version   int64                          `gorm:"not null;default:0" json:"version"`
	CreatedAt int64                          `gorm:"autoCreateTime:milli;not null" json:"created_at"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

func (s *ChatSession) Turns() []ChatTurn {
	return s.Messages.Data()
}

// SharedSession is the public projection of a shared session.
type SharedSession struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Messages []ChatTurn `json:"messages"`
}

func (s *ChatSession) Shared() SharedSession {
	return SharedSession{
		ID:       s.ID,
		Title:    s.Title,
		Messages: RedactImages(s.Turns()),
	}
}
