package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"go.uber.org/zap"
)

var nopLog = zap.NewNop()

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*models.User
	refresh  map[string]string
	resets   map[string]string
	password map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:    map[string]*models.User{},
		refresh:  map[string]string{},
		resets:   map[string]string{},
		password: map[string]string{},
	}
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	for k, owner := range f.refresh {
		if owner == userID {
			delete(f.refresh, k)
		}
	}
	return nil
}

func (f *fakeUsers) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return ErrNotFound
	}
	delete(f.users, userID)
	return nil
}

func (f *fakeUsers) SaveRefreshToken(_ context.Context, userID, hash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[hash] = userID
	return nil
}

func (f *fakeUsers) ConsumeRefreshToken(_ context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[hash]
	if !ok {
		return "", ErrNotFound
	}
	delete(f.refresh, hash)
	return userID, nil
}

func (f *fakeUsers) DeleteRefreshToken(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, hash)
	return nil
}

func (f *fakeUsers) SavePasswordReset(_ context.Context, userID, hash string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[hash] = userID
	return nil
}

func (f *fakeUsers) ConsumePasswordReset(_ context.Context, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[hash]
	if !ok {
		return "", ErrNotFound
	}
	delete(f.resets, hash)
	return userID, nil
}

type sentNotification struct {
	UserID, Kind, Message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userID, kind, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID, kind, message})
	return nil
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Kind)
	}
	return out
}

type fakeMailer struct {
	email, token string
	err          error
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.email, m.token = email, token
	return m.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Table)
	}
	return out
}

// memStore is an in-memory form.Store keyed by user and key.
type memStore[T any] struct {
	mu      sync.Mutex
	rows    map[string]T
	key     func(T) string
	upserts int
	getErr  error
}

func newMemStore[T any](key func(T) string) *memStore[T] {
	return &memStore[T]{rows: map[string]T{}, key: key}
}

func (s *memStore[T]) Get(_ context.Context, userID, key string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.getErr != nil {
		return zero, s.getErr
	}
	rec, ok := s.rows[userID+"/"+key]
	if !ok {
		return zero, ErrNotFound
	}
	return rec, nil
}

func (s *memStore[T]) Upsert(_ context.Context, userID string, rec T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	k := ""
	if s.key != nil {
		k = s.key(rec)
	}
	s.rows[userID+"/"+k] = rec
	return rec, nil
}

type memGoals struct {
	*memStore[models.SavingsGoal]
}

func (g memGoals) List(_ context.Context, userID string) ([]models.SavingsGoal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.SavingsGoal
	for k, v := range g.rows {
		if len(k) > len(userID) && k[:len(userID)+1] == userID+"/" {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g memGoals) Delete(_ context.Context, userID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := userID + "/" + name
	if _, ok := g.rows[k]; !ok {
		return ErrNotFound
	}
	delete(g.rows, k)
	return nil
}
