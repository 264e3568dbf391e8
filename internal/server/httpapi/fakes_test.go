package httpapi

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/auth"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/services"
)

const (
	aliceToken   = "alice-token"
	expiredToken = "expired-token"
)

type fakeUsers struct {
	registered []services.RegisterInput
	avatarSeen []byte
	registerFn func(services.RegisterInput) (*models.User, error)
	loginFn    func(email, password string) (*services.Session, error)
	avatarErr  error
}

func (f *fakeUsers) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	if in.Avatar != nil {
		f.avatarSeen, _ = io.ReadAll(in.Avatar.Content)
	}
	f.registered = append(f.registered, in)
	if f.registerFn != nil {
		return f.registerFn(in)
	}
	return &models.User{ID: 1, Username: in.Username, Email: in.Email}, nil
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.Session, error) {
	if f.loginFn != nil {
		return f.loginFn(email, password)
	}
	return nil, common.ErrorUserNotFound
}

func (f *fakeUsers) Authenticate(token string) (*auth.Claims, error) {
	switch token {
	case aliceToken:
		return &auth.Claims{UserID: 42, Email: "alice@example.com", Username: "alice"}, nil
	case expiredToken:
		return nil, common.ErrTokenExpired
	default:
		return nil, common.ErrInvalidToken
	}
}

func (f *fakeUsers) Me(_ context.Context, userID int64) (*models.User, error) {
	if userID != 42 {
		return nil, common.ErrorUserNotFound
	}
	avatar := "/uploads/images/users/a.png"
	return &models.User{ID: 42, Username: "alice", Email: "alice@example.com", PasswordHash: "secret-hash", Avatar: &avatar}, nil
}

func (f *fakeUsers) UpdateAvatar(_ context.Context, _ int64, upload *services.Upload) (string, error) {
	if f.avatarErr != nil {
		return "", f.avatarErr
	}
	if upload == nil {
		return "", common.ErrorNoAvatarProvided
	}
	return "/uploads/images/users/new-" + upload.Filename, nil
}

type fakeResets struct {
	mu        sync.Mutex
	requested []string
	requestFn func(email string) error
	verifyFn  func(email, code string) (string, error)
	resetFn   func(token, pw string) error
}

func (f *fakeResets) RequestReset(_ context.Context, email string) error {
	f.mu.Lock()
	f.requested = append(f.requested, email)
	f.mu.Unlock()
	if f.requestFn != nil {
		return f.requestFn(email)
	}
	return nil
}

func (f *fakeResets) VerifyOTP(_ context.Context, email, code string) (string, error) {
	if f.verifyFn != nil {
		return f.verifyFn(email, code)
	}
	return "", common.ErrInvalidOTP
}

func (f *fakeResets) ResetPassword(_ context.Context, token, pw string) error {
	if f.resetFn != nil {
		return f.resetFn(token, pw)
	}
	return common.ErrInvalidToken
}

// fakeTasks keeps tasks in memory with the same ownership rule as the real store.
type fakeTasks struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Task
	err    error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{rows: map[int64]*models.Task{}}
}

func (f *fakeTasks) List(_ context.Context, userID int64) ([]*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Task, 0)
	for id := int64(1); id <= f.nextID; id++ {
		if t, ok := f.rows[id]; ok && t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Create(_ context.Context, userID int64, title, status string) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	if title == "" {
		return nil, common.ErrorValidation
	}
	if status == "" {
		status = common.TaskStatusTodo
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := &models.Task{ID: f.nextID, Title: title, Status: status, UserID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.rows[t.ID] = t
	return t, nil
}

func (f *fakeTasks) Get(_ context.Context, userID, id int64) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok || t.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeTasks) Update(ctx context.Context, userID, id int64, title, status string) (*models.Task, error) {
	t, err := f.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if title != "" {
		t.Title = title
	}
	if status != "" {
		t.Status = status
	}
	return t, nil
}

func (f *fakeTasks) Delete(ctx context.Context, userID, id int64) error {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type testServer struct {
	users  *fakeUsers
	resets *fakeResets
	tasks  *fakeTasks
	srv    *HTTPServer
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	ts := &testServer{users: &fakeUsers{}, resets: &fakeResets{}, tasks: newFakeTasks()}
	opts := Options{
		Users:          ts.users,
		PasswordResets: ts.resets,
		Tasks:          ts.tasks,
		DB:             fakePinger{},
	}
	for _, m := range mutate {
		m(&opts)
	}
	ts.srv = NewHTTPServer(opts, logging.Nop{})
	return ts
}
