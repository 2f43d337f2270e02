package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"partyquiz/internal/cache"
	"partyquiz/internal/engine"
	"partyquiz/internal/event"
	"partyquiz/internal/metrics"
	"partyquiz/internal/model"
	"partyquiz/internal/repository"
)

const (
	defaultQuestionsPerCategory = 5
	maxNameLength               = 20
)

// CreateSessionRequest describes the question set of a new session. Inline
// questions win; otherwise QuestionsPerCategory questions are drawn from the
// bank for each category (all bank categories when none are named).
type CreateSessionRequest struct {
	Categories           []string         `json:"categories,omitempty"`
	QuestionsPerCategory int              `json:"questionsPerCategory,omitempty"`
	Questions            []model.Question `json:"questions,omitempty"`
	TimeLimit            int              `json:"timeLimit,omitempty"`
}

// GameService is the write side of a session: every command is one guarded
// read-modify-write of the session document.
type GameService struct {
	sessions         repository.SessionRepo
	questions        repository.QuestionRepo
	engine           *engine.Engine
	links            *Linker
	leaderboard      cache.LeaderboardCache
	publisher        event.Publisher
	broadcaster      Broadcaster
	logger           *slog.Logger
	now              func() time.Time
	defaultTimeLimit int
}

// NewGameService creates a new game service
func NewGameService(
	sessions repository.SessionRepo,
	questions repository.QuestionRepo,
	eng *engine.Engine,
	links *Linker,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		sessions:         sessions,
		questions:        questions,
		engine:           eng,
		links:            links,
		publisher:        event.NewMockPublisher(),
		broadcaster:      nopBroadcaster{},
		logger:           logger,
		now:              time.Now,
		defaultTimeLimit: model.DefaultTimeLimit,
	}
}

// SetLeaderboard mirrors scores into a Redis leaderboard
func (s *GameService) SetLeaderboard(lb cache.LeaderboardCache) {
	s.leaderboard = lb
}

// SetPublisher sets the lifecycle event publisher
func (s *GameService) SetPublisher(p event.Publisher) {
	s.publisher = p
}

// SetBroadcaster sets the broadcaster for WebSocket notices
func (s *GameService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetDefaultTimeLimit sets the time limit of questions that carry none
func (s *GameService) SetDefaultTimeLimit(seconds int) {
	if seconds > 0 {
		s.defaultTimeLimit = seconds
	}
}

func (s *GameService) Engine() *engine.Engine { return s.engine }
func (s *GameService) Linker() *Linker        { return s.links }

// Sessions exposes the repository for read paths and subscriptions
func (s *GameService) Sessions() repository.SessionRepo { return s.sessions }

// CreateSession creates a waiting session owned by hostID
func (s *GameService) CreateSession(ctx context.Context, hostID string, req CreateSessionRequest) (*model.GameSession, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: host id is required", model.ErrInvalidInput)
	}

	questions, categories, err := s.buildQuestionSet(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &model.GameSession{
		HostID:     hostID,
		Status:     model.StatusWaiting,
		Questions:  questions,
		Categories: categories,
		Players:    map[string]*model.Player{},
		CreatedAt:  now,
	}
	if qs := session.CategoryQuestions(0); len(qs) > 0 {
		session.TimeRemaining = qs[0].TimeLimit
	}

	if err := s.createWithCode(ctx, session); err != nil {
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	s.logger.Info("session created", "session", session.ID, "host", hostID,
		"categories", len(categories), "questions", session.QuestionCount())
	s.publish(ctx, event.Event{
		Type:       event.SessionCreated,
		SessionID:  session.ID,
		OccurredAt: now,
	})
	return session, nil
}

// buildQuestionSet returns one question list per category, parallel to the
// category names.
func (s *GameService) buildQuestionSet(ctx context.Context, req CreateSessionRequest) ([][]model.Question, []string, error) {
	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = s.defaultTimeLimit
	}
	if err := uniqueCategories(req.Categories); err != nil {
		return nil, nil, err
	}

	if len(req.Questions) > 0 {
		categories := req.Categories
		index := make(map[string]int, len(categories))
		for i, c := range categories {
			index[c] = i
		}
		questions := make([][]model.Question, len(categories))
		for i, q := range req.Questions {
			q.Options = append([]string(nil), q.Options...)
			if q.ID == "" {
				q.ID = fmt.Sprintf("q%d", i+1)
			}
			q.ApplyDefaults(timeLimit)

			c, ok := index[q.Category]
			if !ok {
				if len(req.Categories) > 0 {
					return nil, nil, fmt.Errorf("%w: question %s is in unlisted category %q", model.ErrInvalidInput, q.ID, q.Category)
				}
				c = len(categories)
				index[q.Category] = c
				categories = append(categories, q.Category)
				questions = append(questions, nil)
			}
			questions[c] = append(questions[c], q)
		}
		for i, qs := range questions {
			if len(qs) == 0 {
				return nil, nil, fmt.Errorf("%w: category %q has no questions", model.ErrInvalidInput, categories[i])
			}
		}
		return questions, categories, nil
	}

	if s.questions == nil {
		return nil, nil, fmt.Errorf("%w: no questions given and no question bank configured", model.ErrInvalidInput)
	}

	categories := req.Categories
	if len(categories) == 0 {
		var err error
		categories, err = s.questions.Categories(ctx)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(categories) == 0 {
		return nil, nil, fmt.Errorf("%w: question bank is empty", model.ErrInvalidInput)
	}

	perCategory := req.QuestionsPerCategory
	if perCategory <= 0 {
		perCategory = defaultQuestionsPerCategory
	}

	questions := make([][]model.Question, len(categories))
	for i, c := range categories {
		drawn, err := s.questions.Sample(ctx, c, perCategory)
		if err != nil {
			return nil, nil, err
		}
		if len(drawn) == 0 {
			return nil, nil, fmt.Errorf("%w: category %q has no questions", model.ErrInvalidInput, c)
		}
		for j := range drawn {
			drawn[j].ApplyDefaults(timeLimit)
		}
		questions[i] = drawn
	}
	return questions, categories, nil
}

func uniqueCategories(categories []string) error {
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		if seen[c] {
			return fmt.Errorf("%w: category %q is listed twice", model.ErrInvalidInput, c)
		}
		seen[c] = true
	}
	return nil
}

// createWithCode stores session under a fresh 6-char code
func (s *GameService) createWithCode(ctx context.Context, session *model.GameSession) error {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return err
		}

		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		session.ID = string(code)

		err := s.sessions.Create(ctx, session)
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	return fmt.Errorf("failed to generate unique session code")
}

// GetSession returns the current snapshot
func (s *GameService) GetSession(ctx context.Context, sessionID string) (*model.GameSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Join adds a player to a waiting session. Names are trimmed, 1-20
// characters, and unique within the session ignoring case.
func (s *GameService) Join(ctx context.Context, sessionID, name string) (*model.JoinResponse, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		metrics.Joins.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: name must be 1-%d characters", model.ErrInvalidInput, maxNameLength)
	}

	player := model.Player{
		ID:       "p_" + uuid.New().String()[:8],
		Name:     name,
		JoinedAt: s.now(),
	}

	session, _, err := s.sessions.Update(ctx, sessionID, func(gs *model.GameSession) error {
		if gs.Status != model.StatusWaiting {
			return fmt.Errorf("%w: game already started", model.ErrInvalidTransition)
		}
		for _, p := range gs.Players {
			if strings.EqualFold(p.Name, name) {
				return fmt.Errorf("%w: %q", model.ErrNameTaken, name)
			}
		}
		for gs.Player(player.ID) != nil {
			player.ID = "p_" + uuid.New().String()[:8]
		}
		gs.AddPlayer(player)
		return nil
	})
	if err != nil {
		metrics.Joins.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	metrics.Joins.WithLabelValues("joined").Inc()

	s.mirrorScore(ctx, sessionID, player.ID, 0)
	s.broadcaster.BroadcastToRole(sessionID, RoleAdmin, "player_joined", player)
	s.broadcaster.BroadcastToRole(sessionID, RoleDisplay, "player_joined", player)
	s.publish(ctx, event.Event{
		Type:       event.PlayerJoined,
		SessionID:  sessionID,
		PlayerID:   player.ID,
		Players:    len(session.Players),
		OccurredAt: player.JoinedAt,
	})
	s.logger.Info("player joined", "session", sessionID, "player", player.ID, "name", name)

	return &model.JoinResponse{
		PlayerID: player.ID,
		Name:     player.Name,
		Links:    s.links.Player(sessionID, player.ID),
	}, nil
}

// SetReady toggles a player's lobby ready flag
func (s *GameService) SetReady(ctx context.Context, sessionID, playerID string, ready bool) (*model.Player, error) {
	session, _, err := s.sessions.Update(ctx, sessionID, func(gs *model.GameSession) error {
		p := gs.Player(playerID)
		if p == nil {
			return fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
		}
		if gs.Status != model.StatusWaiting {
			return fmt.Errorf("%w: ready state is only kept in the lobby", model.ErrInvalidTransition)
		}
		if p.IsReady == ready {
			return model.ErrNoChange
		}
		p.IsReady = ready
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session.Player(playerID), nil
}

// SubmitAnswer records a player's answer to the active question. A repeat
// submission for the same question is accepted silently and changes nothing.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, playerID string, optionIndex int) (*model.Player, error) {
	timer := prometheus.NewTimer(metrics.WriteDuration.WithLabelValues("answer"))
	defer timer.ObserveDuration()

	session, changed, err := s.sessions.Update(ctx, sessionID, func(gs *model.GameSession) error {
		_, err := s.engine.Answer(gs, playerID, optionIndex, s.now())
		if errors.Is(err, model.ErrAlreadyAnswered) {
			return model.ErrNoChange
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	p := session.Player(playerID)
	if !changed {
		return p, nil
	}

	metrics.Answers.WithLabelValues(fmt.Sprint(p.LastAnswer.IsCorrect)).Inc()
	s.mirrorScore(ctx, sessionID, playerID, p.Score)
	s.broadcaster.BroadcastToPlayer(sessionID, playerID, "answer_recorded", p.LastAnswer)
	s.logger.Debug("answer recorded", "session", sessionID, "player", playerID,
		"question", p.LastAnswer.QuestionID, "correct", p.LastAnswer.IsCorrect)
	return p, nil
}

// Fire applies a progression trigger on behalf of a coordinator. changed is
// false when another client already made the same move.
func (s *GameService) Fire(ctx context.Context, sessionID string, t engine.Trigger) (*model.GameSession, bool, error) {
	return s.apply(ctx, sessionID, "", func(*model.GameSession) engine.Trigger { return t })
}

// Start begins the first question
func (s *GameService) Start(ctx context.Context, sessionID, hostID string) (*model.GameSession, error) {
	return s.admin(ctx, sessionID, hostID, engine.Trigger{Kind: engine.TriggerStart})
}

// Pause freezes every countdown of the session
func (s *GameService) Pause(ctx context.Context, sessionID, hostID string) (*model.GameSession, error) {
	return s.admin(ctx, sessionID, hostID, engine.Trigger{Kind: engine.TriggerPause})
}

// Resume unfreezes the session's countdowns
func (s *GameService) Resume(ctx context.Context, sessionID, hostID string) (*model.GameSession, error) {
	return s.admin(ctx, sessionID, hostID, engine.Trigger{Kind: engine.TriggerResume})
}

// TogglePause pauses a running session and resumes a paused one, decided
// against the snapshot being written
func (s *GameService) TogglePause(ctx context.Context, sessionID, hostID string) (*model.GameSession, error) {
	session, _, err := s.apply(ctx, sessionID, hostID, func(gs *model.GameSession) engine.Trigger {
		if gs.IsPaused {
			return engine.Trigger{Kind: engine.TriggerResume}
		}
		return engine.Trigger{Kind: engine.TriggerPause}
	})
	return session, err
}

// ForceNext skips to the next question, leaderboard, or category
func (s *GameService) ForceNext(ctx context.Context, sessionID, hostID string) (*model.GameSession, error) {
	return s.admin(ctx, sessionID, hostID, engine.Trigger{Kind: engine.TriggerForceNext})
}

// SetTimer overrides the active question's remaining seconds
func (s *GameService) SetTimer(ctx context.Context, sessionID, hostID string, seconds int) (*model.GameSession, error) {
	return s.admin(ctx, sessionID, hostID, engine.Trigger{Kind: engine.TriggerSetTimer, Seconds: seconds})
}

// EndGame finishes the session immediately
func (s *GameService) EndGame(ctx context.Context, sessionID, hostID string) (*model.GameSession, error) {
	return s.admin(ctx, sessionID, hostID, engine.Trigger{Kind: engine.TriggerEndGame})
}

func (s *GameService) admin(ctx context.Context, sessionID, hostID string, t engine.Trigger) (*model.GameSession, error) {
	session, _, err := s.apply(ctx, sessionID, hostID, func(*model.GameSession) engine.Trigger { return t })
	return session, err
}

// apply is the single guarded write path for progression. pick chooses the
// trigger from the snapshot being written; a non-empty hostID must own the
// session.
func (s *GameService) apply(ctx context.Context, sessionID, hostID string, pick func(*model.GameSession) engine.Trigger) (*model.GameSession, bool, error) {
	var (
		before model.Phase
		trig   engine.Trigger
	)
	start := time.Now()

	session, changed, err := s.sessions.Update(ctx, sessionID, func(gs *model.GameSession) error {
		if hostID != "" && gs.HostID != hostID {
			return model.ErrForbidden
		}
		before = gs.Phase()
		trig = pick(gs)
		return s.engine.Apply(gs, trig, s.now())
	})

	result := "applied"
	switch {
	case err != nil:
		result = outcome(err)
	case !changed:
		result = "noop"
	}
	if trig.Kind != "" {
		metrics.Transitions.WithLabelValues(string(trig.Kind), result).Inc()
		metrics.WriteDuration.WithLabelValues(string(trig.Kind)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.afterTransition(ctx, before, session, trig)
	}
	return session, changed, nil
}

func (s *GameService) afterTransition(ctx context.Context, before model.Phase, gs *model.GameSession, t engine.Trigger) {
	after := gs.Phase()
	s.logger.Info("session updated", "session", gs.ID, "trigger", t.String(),
		"from", before, "to", after, "version", gs.Version)
	if before == after && t.Kind != engine.TriggerForceNext {
		return
	}

	ev := event.Event{
		SessionID:  gs.ID,
		Round:      gs.CurrentRound,
		Players:    len(gs.Players),
		OccurredAt: s.now(),
	}
	if gs.CurrentCategory < len(gs.Categories) {
		ev.Category = gs.Categories[gs.CurrentCategory]
	}
	switch after {
	case model.PhaseQuestionActive:
		if before != model.PhaseLobby {
			return
		}
		ev.Type = event.GameStarted
	case model.PhaseRevealAnswer:
		ev.Type = event.QuestionRevealed
		if q := gs.ActiveQuestion(); q != nil {
			ev.QuestionID = q.ID
		}
	case model.PhaseRoundLeaderboard:
		ev.Type = event.RoundCompleted
	case model.PhaseFinished:
		ev.Type = event.GameFinished
	default:
		return
	}
	s.publish(ctx, ev)
}

// Leaderboard returns the top standings of a session
func (s *GameService) Leaderboard(ctx context.Context, sessionID string, top int) ([]cache.LeaderboardEntry, error) {
	gs, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries := Standings(gs)
	if s.leaderboard != nil && len(gs.Players) > 0 {
		mirrored, err := s.leaderboard.GetTop(ctx, sessionID, len(gs.Players))
		switch {
		case err != nil:
			s.logger.Warn("leaderboard cache unavailable, using session document", "session", sessionID, "error", err)
		case len(mirrored) == len(gs.Players):
			for i := range mirrored {
				if p := gs.Player(mirrored[i].PlayerID); p != nil {
					mirrored[i].Name = p.Name
				}
			}
			rank(mirrored)
			entries = mirrored
		}
	}

	if top > 0 && top < len(entries) {
		entries = entries[:top]
	}
	return entries, nil
}

// PlayerStanding returns a player's current rank (1-based) and score
func (s *GameService) PlayerStanding(ctx context.Context, sessionID, playerID string) (*cache.LeaderboardEntry, error) {
	gs, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p := gs.Player(playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
	}

	if s.leaderboard != nil {
		r, err := s.leaderboard.GetRank(ctx, sessionID, playerID)
		if err == nil && r > 0 {
			return &cache.LeaderboardEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score, Rank: int(r)}, nil
		}
	}
	for _, e := range Standings(gs) {
		if e.PlayerID == playerID {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: player %s", model.ErrNotFound, playerID)
}

// Links returns the navigation links of a session, with the player links
// when playerID is set
func (s *GameService) Links(sessionID, playerID string) model.Links {
	if playerID == "" {
		return s.links.Session(sessionID)
	}
	return s.links.Player(sessionID, playerID)
}

func (s *GameService) mirrorScore(ctx context.Context, sessionID, playerID string, score int) {
	if s.leaderboard == nil {
		return
	}
	if err := s.leaderboard.UpdateScore(ctx, sessionID, playerID, score); err != nil {
		s.logger.Warn("failed to mirror score", "session", sessionID, "player", playerID, "error", err)
	}
}

func (s *GameService) publish(ctx context.Context, ev event.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", "type", ev.Type, "session", ev.SessionID, "error", err)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrForbidden),
		errors.Is(err, model.ErrNameTaken),
		errors.Is(err, model.ErrNotFound):
		return "rejected"
	}
	return "error"
}
