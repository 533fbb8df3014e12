package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tawarln-chat/internal/ai"
	"tawarln-chat/internal/enrich"
	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
	"tawarln-chat/internal/ratelimit"
	"tawarln-chat/internal/stream"
)

type ChatCompleter interface {
	StreamComplete(ctx context.Context, req ai.CompletionRequest) (*ai.ChatStream, error)
}

type ProfileStore interface {
	GetByID(id uint) (*model.User, error)
}

type ChatOptions struct {
	SystemPrompt       string
	DefaultTemperature float64
	MaxTokens          int
	MaxQueryChars      int
	StopSequences      []string
}

type Caller struct {
	UserID uint
	Role   string
}

type ChatInput struct {
	Caller       Caller
	Turns        []model.ChatTurn
	Model        string
	SystemPrompt string
	// Temperature is nil when the client did not send one.
	Temperature *float64
	WebSearch   bool
	SessionID   string
	Title       string
}

// PreparedChat is a request that passed every gate and holds an open
// completion stream. It must be passed to Stream exactly once.
type PreparedChat struct {
	Request    ai.CompletionRequest
	Query      string
	Enrichment enrich.Result

	meta     sessionMeta
	snapshot []model.ChatTurn
	upstream *ai.ChatStream
	mu       sync.Mutex
	used     bool
}

// Close releases the upstream stream when the chat is abandoned before Stream.
func (p *PreparedChat) Close() error {
	if p == nil || p.upstream == nil {
		return nil
	}
	return p.upstream.Close()
}

type ChatService struct {
	llm       ChatCompleter
	limiter   ratelimit.Limiter
	profiles  ProfileStore
	chain     *enrich.Chain
	persister SessionPersister
	catalog   *ModelCatalog
	opts      ChatOptions
	log       *logger.Logger
	tracer    trace.Tracer

	pending sync.WaitGroup
}

func NewChatService(
	llm ChatCompleter,
	limiter ratelimit.Limiter,
	profiles ProfileStore,
	chain *enrich.Chain,
	persister SessionPersister,
	catalog *ModelCatalog,
	opts ChatOptions,
	log *logger.Logger,
) *ChatService {
	if limiter == nil {
		limiter = ratelimit.NopLimiter{}
	}
	if chain == nil {
		chain = enrich.NewChain(log)
	}
	if catalog == nil {
		catalog = NewModelCatalog(nil, "")
	}
	if opts.DefaultTemperature < 0 || opts.DefaultTemperature > 1 {
		opts.DefaultTemperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.MaxQueryChars <= 0 {
		opts.MaxQueryChars = 2000
	}
	if opts.StopSequences == nil {
		opts.StopSequences = []string{"User:", "\nUser:", "Human:"}
	}
	return &ChatService{
		llm:       llm,
		limiter:   limiter,
		profiles:  profiles,
		chain:     chain,
		persister: persister,
		catalog:   catalog,
		opts:      opts,
		log:       log,
		tracer:    otel.Tracer("tawarln-chat/app"),
	}
}

// Prepare runs the gates in order, enriches the prompt and opens the
// completion stream. Nothing is written to the client here.
func (s *ChatService) Prepare(ctx context.Context, input ChatInput) (*PreparedChat, error) {
	if input.Caller.UserID == 0 {
		return nil, ErrUnauthorized
	}

	key := strconv.FormatUint(uint64(input.Caller.UserID), 10)
	decision, err := s.limiter.Allow(ctx, key)
	switch {
	case err != nil:
		s.log.Warn("rate limiter unavailable, allowing request", "user_id", input.Caller.UserID, "error", err)
	case !decision.Allowed:
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	if len(input.Turns) == 0 {
		return nil, fmt.Errorf("%w: messages are empty", ErrInvalidInput)
	}
	last := input.Turns[len(input.Turns)-1]
	if last.Role != model.RoleUser {
		return nil, fmt.Errorf("%w: last message must come from the user", ErrInvalidInput)
	}
	query := last.QueryText()

	if len([]rune(query)) > s.opts.MaxQueryChars {
		return nil, ErrPayloadTooLarge
	}

	system := s.systemPrompt(input)

	enrichCtx, span := s.tracer.Start(ctx, "chat.enrich")
	result := s.chain.Select(enrichCtx, enrich.Query{
		Text:      query,
		Turns:     input.Turns,
		WebSearch: input.WebSearch,
	})
	span.SetAttributes(attribute.String("enrich.kind", string(result.Kind)))
	span.End()

	messages := make([]model.ChatTurn, 0, len(input.Turns)+1)
	messages = append(messages, model.ChatTurn{Role: model.RoleSystem, Content: model.TextContent(system)})
	messages = append(messages, input.Turns[:len(input.Turns)-1]...)
	if result.Kind != enrich.KindNone {
		messages = append(messages, last.WithContent(result.Render(query)))
	} else {
		messages = append(messages, last)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ai.CompletionRequest{
		Model:       s.catalog.Resolve(input.Model),
		Messages:    messages,
		Temperature: s.temperature(input.Temperature),
		MaxTokens:   s.opts.MaxTokens,
		Stop:        s.opts.StopSequences,
	}

	openCtx, openSpan := s.tracer.Start(ctx, "chat.completion.open", trace.WithAttributes(attribute.String("llm.model", req.Model)))
	upstream, err := s.llm.StreamComplete(openCtx, req)
	openSpan.End()
	if err != nil {
		return nil, fmt.Errorf("open completion stream failed: %w", err)
	}

	return &PreparedChat{
		Request:    req,
		Query:      query,
		Enrichment: result,
		meta: sessionMeta{
			id:     strings.TrimSpace(input.SessionID),
			userID: input.Caller.UserID,
			title:  input.Title,
			model:  req.Model,
		},
		snapshot: input.Turns,
		upstream: upstream,
	}, nil
}

// Stream relays the prepared completion to em. When the chat belongs to a
// session, a snapshot is persisted before the first delta and the full
// transcript after a clean finish. Persistence never blocks the relay.
func (s *ChatService) Stream(ctx context.Context, p *PreparedChat, em stream.Emitter) (stream.Outcome, error) {
	if p == nil || p.upstream == nil {
		return stream.Outcome{}, fmt.Errorf("%w: nothing to stream", ErrInvalidInput)
	}
	p.mu.Lock()
	if p.used {
		p.mu.Unlock()
		return stream.Outcome{}, ErrAlreadyStreamed
	}
	p.used = true
	p.mu.Unlock()

	relay := stream.NewRelay()
	var transcript *Transcript
	var begun chan struct{}
	if p.meta.id != "" && s.persister != nil {
		transcript = BeginTranscript(p.snapshot)
		relay.OnDelta = transcript.AppendDelta
		begun = s.persistAsync(p.meta.record(p.snapshot), nil)
	}

	out := relay.Run(ctx, p.upstream, em)

	switch out.State {
	case stream.StateClosed:
		if transcript != nil {
			s.persistAsync(p.meta.record(transcript.Turns()), begun)
		}
	case stream.StateAborted:
		s.log.Info("chat stream aborted", "user_id", p.meta.userID, "chars", len(out.Text), "error", out.Err)
	case stream.StateErrored:
		s.log.Warn("chat stream failed", "user_id", p.meta.userID, "error", out.Err)
	}
	return out, nil
}

// persistAsync writes the session in the background after `after` is closed.
// The returned channel closes when this write is done.
func (s *ChatService) persistAsync(session model.ChatSession, after <-chan struct{}) chan struct{} {
	done := make(chan struct{})
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer close(done)
		if after != nil {
			<-after
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.persister.Persist(ctx, session); err != nil {
			level := s.log.Warn
			if errors.Is(err, ErrSessionNotFound) {
				level = s.log.Info
			}
			level("session persistence failed", "session_id", session.ID, "error", err)
		}
	}()
	return done
}

// Drain waits for background persistence to finish.
func (s *ChatService) Drain() {
	s.pending.Wait()
}

func (s *ChatService) systemPrompt(input ChatInput) string {
	prompt := strings.TrimSpace(input.SystemPrompt)
	if prompt == "" {
		prompt = s.opts.SystemPrompt
	}

	role := input.Caller.Role
	if s.profiles != nil {
		user, err := s.profiles.GetByID(input.Caller.UserID)
		switch {
		case err != nil:
			s.log.Warn("load caller profile failed", "user_id", input.Caller.UserID, "error", err)
		case user != nil:
			if memory := strings.TrimSpace(user.Memory); memory != "" {
				prompt += "\n\n[USER MEMORY]\n" + memory
			}
			if user.Role != "" {
				role = user.Role
			}
		}
	}
	if model.IsPrivilegedRole(role) {
		prompt += "\n\nYou are talking to an " + role + " of this workspace. They may manage the internal knowledge base."
	}
	return prompt
}

func (s *ChatService) temperature(requested *float64) float64 {
	if requested == nil {
		return s.opts.DefaultTemperature
	}
	t := *requested
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
