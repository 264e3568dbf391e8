package services

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/dbx"
	"github.com/dmitrijs2005/taskmanager/internal/server/mailer"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/passwordresets"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// --- users ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.User

	createErr    error
	getErr       error
	updateAvErr  error
	updatePwErr  error
	passwordSets int
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[int64]*models.User{}}
}

func (f *fakeUsersRepo) add(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = u
	return u
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			f.mu.Unlock()
			return nil, common.ErrorAlreadyExists
		}
	}
	f.mu.Unlock()
	return f.add(u), nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) UpdateAvatar(_ context.Context, id int64, avatar string) error {
	if f.updateAvErr != nil {
		return f.updateAvErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Avatar = &avatar
	return nil
}

func (f *fakeUsersRepo) UpdatePasswordByEmail(_ context.Context, email string, hash string) error {
	if f.updatePwErr != nil {
		return f.updatePwErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			u.PasswordHash = hash
			f.passwordSets++
			return nil
		}
	}
	return common.ErrorNotFound
}

// --- tasks ---

type fakeTasksRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Task
	err    error
}

func newFakeTasksRepo() *fakeTasksRepo {
	return &fakeTasksRepo{rows: map[int64]*models.Task{}}
}

func (f *fakeTasksRepo) ListByUser(_ context.Context, userID int64) ([]*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Task, 0)
	for _, t := range f.rows {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTasksRepo) Create(_ context.Context, t *models.Task) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.rows[t.ID] = &cp
	return t, nil
}

func (f *fakeTasksRepo) owned(id, userID int64) (*models.Task, bool) {
	t, ok := f.rows[id]
	if !ok || t.UserID != userID {
		return nil, false
	}
	return t, true
}

func (f *fakeTasksRepo) GetForUser(_ context.Context, id, userID int64) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.owned(id, userID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasksRepo) UpdateForUser(_ context.Context, id, userID int64, title, status string) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.owned(id, userID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	if title != "" {
		t.Title = title
	}
	if status != "" {
		t.Status = status
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasksRepo) DeleteForUser(_ context.Context, id, userID int64) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.owned(id, userID); !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

// --- password resets ---

type fakeResetsRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.PasswordReset

	createErr error
	findErr   error
	markErr   error
	deleted   []int64

	// conflicts makes the next Create calls fail as if a concurrent
	// request had inserted first.
	conflicts int
}

func (f *fakeResetsRepo) Create(_ context.Context, r *models.PasswordReset) (*models.PasswordReset, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return nil, common.ErrorAlreadyExists
	}
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = time.Now()
	cp := *r
	f.rows = append(f.rows, &cp)
	return r, nil
}

func (f *fakeResetsRepo) FindLatestUnused(_ context.Context, email string) (*models.PasswordReset, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if r := f.rows[i]; r.Email == email && !r.Used {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeResetsRepo) MarkUsed(_ context.Context, id int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id && !r.Used {
			r.Used = true
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeResetsRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	f.rows = filterResets(f.rows, func(r *models.PasswordReset) bool { return r.ID != id })
	return nil
}

func (f *fakeResetsRepo) DeleteByEmail(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = filterResets(f.rows, func(r *models.PasswordReset) bool { return r.Email != email })
	return nil
}

func (f *fakeResetsRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.rows)
	f.rows = filterResets(f.rows, func(r *models.PasswordReset) bool { return !r.ExpiresAt.Before(now) })
	return int64(before - len(f.rows)), nil
}

func (f *fakeResetsRepo) byEmail(email string) []*models.PasswordReset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filterResets(f.rows, func(r *models.PasswordReset) bool { return r.Email == email })
}

func filterResets(in []*models.PasswordReset, keep func(*models.PasswordReset) bool) []*models.PasswordReset {
	out := make([]*models.PasswordReset, 0, len(in))
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// --- repo manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	t *fakeTasksRepo
	r *fakeResetsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                   { return m.u }
func (m *fakeRepoManager) Tasks(dbx.DBTX) tasks.Repository                   { return m.t }
func (m *fakeRepoManager) PasswordResets(dbx.DBTX) passwordresets.Repository { return m.r }

// --- collaborators ---

type event struct {
	kind   string
	userID int64
	task   *models.Task
	taskID int64
	title  string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *fakeNotifier) record(e event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) TaskCreated(userID int64, task *models.Task) {
	n.record(event{kind: "created", userID: userID, task: task})
}

func (n *fakeNotifier) TaskUpdated(userID int64, task *models.Task) {
	n.record(event{kind: "updated", userID: userID, task: task})
}

func (n *fakeNotifier) TaskDeleted(userID int64, taskID int64) {
	n.record(event{kind: "deleted", userID: userID, taskID: taskID})
}

func (n *fakeNotifier) SendNotification(userID int64, title, _, _ string) {
	n.record(event{kind: "notification", userID: userID, title: title})
}

type fakeMailer struct {
	mu         sync.Mutex
	codes      []mailer.ResetCodeNotification
	changed    []string
	resetErr   error
	changedErr error
	onReset    func()
}

func (m *fakeMailer) SendResetCode(_ context.Context, n mailer.ResetCodeNotification) error {
	if m.onReset != nil {
		m.onReset()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.codes = append(m.codes, n)
	return nil
}

func (m *fakeMailer) SendPasswordChanged(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.changedErr != nil {
		return m.changedErr
	}
	m.changed = append(m.changed, email)
	return nil
}

func (m *fakeMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1].Code
}

type fakeAvatars struct {
	saved   []string
	deleted []string
	saveErr error
	n       int
}

func (a *fakeAvatars) Save(_ context.Context, filename, _ string, r io.Reader) (string, error) {
	if a.saveErr != nil {
		return "", a.saveErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	a.n++
	url := "/uploads/images/users/" + string(rune('a'+a.n-1)) + "-" + filename
	a.saved = append(a.saved, url)
	return url, nil
}

func (a *fakeAvatars) Delete(_ context.Context, url string) error {
	a.deleted = append(a.deleted, url)
	return nil
}

type sequenceCodes struct {
	codes []string
	i     int
}

func (s *sequenceCodes) Generate() string {
	c := s.codes[s.i%len(s.codes)]
	s.i++
	return c
}
