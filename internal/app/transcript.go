package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"tawarln-chat/internal/model"
)

// Transcript is the session being streamed: the submitted turns plus one
// assistant placeholder that grows with each delta.
type Transcript struct {
	mu          sync.Mutex
	turns       []model.ChatTurn
	placeholder int
	reply       strings.Builder
}

func BeginTranscript(snapshot []model.ChatTurn) *Transcript {
	turns := make([]model.ChatTurn, len(snapshot), len(snapshot)+1)
	copy(turns, snapshot)
	turns = append(turns, model.ChatTurn{Role: model.RoleAssistant, Content: model.TextContent("")})
	return &Transcript{turns: turns, placeholder: len(turns) - 1}
}

func (t *Transcript) AppendDelta(text string) {
	t.mu.Lock()
	t.reply.WriteString(text)
	t.mu.Unlock()
}

func (t *Transcript) Turns() []model.ChatTurn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.ChatTurn, len(t.turns))
	copy(out, t.turns)
	out[t.placeholder] = model.ChatTurn{Role: model.RoleAssistant, Content: model.TextContent(t.reply.String())}
	return out
}

// SessionPersister hands a session snapshot to storage. Implementations may be
// asynchronous; failures are reported but never retried.
type SessionPersister interface {
	Persist(ctx context.Context, session model.ChatSession) error
}

// DirectPersister writes through the session service in the calling goroutine.
type DirectPersister struct {
	sessions *SessionService
}

func NewDirectPersister(sessions *SessionService) *DirectPersister {
	return &DirectPersister{sessions: sessions}
}

func (p *DirectPersister) Persist(ctx context.Context, session model.ChatSession) error {
	return p.sessions.SaveSnapshot(ctx, &session)
}

type sessionMeta struct {
	id     string
	userID uint
	title  string
	model  string
}

func (m sessionMeta) record(turns []model.ChatTurn) model.ChatSession {
	title := strings.TrimSpace(m.title)
	if title == "" {
		title = model.DeriveTitle(turns)
	}
	return model.ChatSession{
		ID:        m.id,
		UserID:    m.userID,
		Title:     title,
		Messages:  datatypes.NewJSONType(turns),
		Model:     m.model,
		CreatedAt: time.Now().UnixMilli(),
	}
}
