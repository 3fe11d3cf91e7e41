package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"driveguardian/go-backend/internal/history"
	"driveguardian/go-backend/internal/models"
)

// Keys of the persisted dashboard layout.
const (
	KeyHistory       = "driveGuardianHistory"
	KeyLastSession   = "driveGuardianLastJourney"
	KeyPublished     = "driveGuardianPublishedJourneys"
	KeyLoggedIn      = "driveGuardianLoggedIn"
	KeyCurrentDriver = "driveGuardianCurrentDriver"
)

var (
	ErrNotLoggedIn   = errors.New("driver is not logged in")
	ErrNoLastSession = errors.New("no completed session to publish")
	ErrInvalidLogin  = errors.New("email and password are required")
)

// Repository is the typed view over a KV backend. It serialises the
// read-modify-write cycles on the history and community lists.
type Repository struct {
	kv             KV
	historyLimit   int
	publishedLimit int
	logger         *zap.Logger

	mu sync.Mutex
}

func NewRepository(kv KV, historyLimit, publishedLimit int, logger *zap.Logger) *Repository {
	if historyLimit <= 0 {
		historyLimit = history.DefaultLimit
	}
	if publishedLimit <= 0 {
		publishedLimit = history.DefaultLimit
	}
	return &Repository{
		kv:             kv,
		historyLimit:   historyLimit,
		publishedLimit: publishedLimit,
		logger:         logger,
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.kv.Ping(ctx)
}

func (r *Repository) getJSON(ctx context.Context, key string, v any) error {
	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (r *Repository) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.kv.Set(ctx, key, string(raw))
}

// History returns the stored sessions, newest first.
func (r *Repository) History(ctx context.Context) ([]models.SessionRecord, error) {
	var list []models.SessionRecord
	if err := r.getJSON(ctx, KeyHistory, &list); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return list, nil
}

// SaveSession overwrites the last-session snapshot and puts rec at the head
// of the history. When the history write fails the previous snapshot is put
// back, so the two never disagree about the newest session.
func (r *Repository) SaveSession(ctx context.Context, rec models.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.History(ctx)
	if err != nil {
		return err
	}
	prev, err := r.kv.Get(ctx, KeyLastSession)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	hadPrev := err == nil

	if err := r.setJSON(ctx, KeyLastSession, rec); err != nil {
		return err
	}
	list = history.Prepend(list, rec, r.historyLimit)
	if err := r.setJSON(ctx, KeyHistory, list); err != nil {
		r.restoreLastSession(ctx, prev, hadPrev)
		return err
	}
	r.logger.Info("session saved",
		zap.String("session_id", rec.ID),
		zap.Float64("score", rec.Score),
		zap.Int("alerts", rec.Alerts),
		zap.Int("history_len", len(list)))
	return nil
}

func (r *Repository) restoreLastSession(ctx context.Context, prev string, hadPrev bool) {
	var err error
	if hadPrev {
		err = r.kv.Set(ctx, KeyLastSession, prev)
	} else {
		err = r.kv.Delete(ctx, KeyLastSession)
	}
	if err != nil {
		r.logger.Error("failed to restore last session", zap.Error(err))
	}
}

func (r *Repository) LastSession(ctx context.Context) (models.SessionRecord, error) {
	var rec models.SessionRecord
	err := r.getJSON(ctx, KeyLastSession, &rec)
	return rec, err
}

// Published returns the community list, oldest first.
func (r *Repository) Published(ctx context.Context) ([]models.PublishedJourney, error) {
	var list []models.PublishedJourney
	if err := r.getJSON(ctx, KeyPublished, &list); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return list, nil
}

// Publish shares the last session of the logged-in driver.
func (r *Repository) Publish(ctx context.Context, req models.PublishRequest, now time.Time) (models.PublishedJourney, error) {
	login, err := r.LoginState(ctx)
	if err != nil {
		return models.PublishedJourney{}, err
	}
	if !login.LoggedIn {
		return models.PublishedJourney{}, ErrNotLoggedIn
	}
	last, err := r.LastSession(ctx)
	if errors.Is(err, ErrNotFound) {
		return models.PublishedJourney{}, ErrNoLastSession
	}
	if err != nil {
		return models.PublishedJourney{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.Published(ctx)
	if err != nil {
		return models.PublishedJourney{}, err
	}
	j := history.NewPublishedJourney(last, login.Driver, req, now)
	list = history.AppendPublished(list, j, r.publishedLimit)
	if err := r.setJSON(ctx, KeyPublished, list); err != nil {
		return models.PublishedJourney{}, err
	}
	r.logger.Info("journey published",
		zap.String("session_id", j.ID),
		zap.String("driver", j.DriverName),
		zap.Int("community_len", len(list)))
	return j, nil
}

func (r *Repository) Login(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidLogin
	}
	if err := r.kv.Set(ctx, KeyLoggedIn, "true"); err != nil {
		return err
	}
	return r.kv.Set(ctx, KeyCurrentDriver, email)
}

func (r *Repository) Logout(ctx context.Context) error {
	if err := r.kv.Set(ctx, KeyLoggedIn, "false"); err != nil {
		return err
	}
	return r.kv.Delete(ctx, KeyCurrentDriver)
}

func (r *Repository) LoginState(ctx context.Context) (models.LoginState, error) {
	flag, err := r.kv.Get(ctx, KeyLoggedIn)
	if errors.Is(err, ErrNotFound) {
		return models.LoginState{}, nil
	}
	if err != nil {
		return models.LoginState{}, err
	}
	state := models.LoginState{LoggedIn: flag == "true"}
	if !state.LoggedIn {
		return state, nil
	}
	driver, err := r.kv.Get(ctx, KeyCurrentDriver)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return models.LoginState{}, err
	}
	state.Driver = driver
	return state, nil
}
