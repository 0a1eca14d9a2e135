package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/events"
	"github.com/spec-kit/collab-engine/internal/repository"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// SessionService tracks advisory editing sessions. Sessions inform UIs who
// else is editing and feed conflict-risk hints; they never gate writes.
type SessionService struct {
	sessions   repository.SessionRepository
	entities   repository.EntityRepository
	audit      repository.AuditRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	ttl        time.Duration
}

// SessionDependencies bundles collaborators for the session service.
type SessionDependencies struct {
	SessionRepo repository.SessionRepository
	EntityRepo  repository.EntityRepository
	AuditRepo   repository.AuditRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	TTL         time.Duration
}

// NewSessionService constructs the service.
func NewSessionService(deps SessionDependencies) *SessionService {
	return &SessionService{
		sessions:   deps.SessionRepo,
		entities:   deps.EntityRepo,
		audit:      deps.AuditRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		ttl:        deps.TTL,
	}
}

// StartSession opens an advisory session for an actor on an entity.
func (s *SessionService) StartSession(ctx context.Context, entityID, actor string) (*domain.EditingSession, error) {
	if actor == "" {
		return nil, apperrors.NewValidationError("actor required", nil)
	}
	if _, err := fetchEntity(ctx, s.entities, entityID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.EditingSession{
		ID:              uuid.NewString(),
		EntityID:        entityID,
		Actor:           actor,
		StartedAt:       now,
		LastHeartbeatAt: now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.sessions.Start(ctx, session, s.ttl); err != nil {
		return nil, err
	}
	s.publishSession(ctx, events.EventSessionStarted, session)
	return session, nil
}

// Heartbeat extends a live session. An expired or unknown session returns
// SessionExpired; the caller may silently start a new one.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID string) (*domain.EditingSession, error) {
	session, err := s.sessions.Heartbeat(ctx, sessionID, s.ttl)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperrors.NewSessionExpired(sessionID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession closes a session. Ending an already-expired session is a
// no-op.
func (s *SessionService) EndSession(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.sessions.End(ctx, sessionID); err != nil {
		return err
	}
	s.publishSession(ctx, events.EventSessionEnded, session)
	return nil
}

// ActiveSessions lists live sessions on an entity, each annotated with the
// fields its actor changed within the heartbeat window so UIs can warn
// about likely collisions.
func (s *SessionService) ActiveSessions(ctx context.Context, entityID string) ([]domain.SessionPresence, error) {
	if _, err := fetchEntity(ctx, s.entities, entityID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	recent, err := s.audit.ListRecent(ctx, entityID, time.Now().UTC().Add(-s.ttl))
	if err != nil {
		return nil, err
	}
	touchedByActor := make(map[string]map[string]struct{})
	for _, entry := range recent {
		if touchedByActor[entry.Actor] == nil {
			touchedByActor[entry.Actor] = make(map[string]struct{})
		}
		touchedByActor[entry.Actor][entry.FieldName] = struct{}{}
	}

	presences := make([]domain.SessionPresence, 0, len(sessions))
	for _, session := range sessions {
		var fields []string
		for name := range touchedByActor[session.Actor] {
			fields = append(fields, name)
		}
		presences = append(presences, domain.SessionPresence{
			Session:              session,
			RecentlyTouchedField: fields,
		})
	}
	return presences, nil
}

// SweepExpired prunes stale session references. Optional housekeeping:
// lazy expiry on read keeps listings correct without it.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	return s.sessions.Sweep(ctx)
}

func (s *SessionService) publishSession(ctx context.Context, eventType events.EventType, session *domain.EditingSession) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityID:  session.EntityID,
		Actor:     session.Actor,
		Timestamp: time.Now().UTC(),
		Payload:   events.SessionPayload{SessionID: session.ID},
	})
}
