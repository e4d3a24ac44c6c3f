package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// ----- Fake repo -----

type fakeTaskRepo struct {
	stored map[string]domain.Task
}

func newFakeTaskRepo(seed ...domain.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{stored: make(map[string]domain.Task)}
	for _, t := range seed {
		r.stored[t.ID] = t
	}
	return r
}

func (r *fakeTaskRepo) CreateTask(ctx context.Context, db *gorm.DB, t *domain.Task) (*domain.Task, error) {
	t.ID = "t-generated"
	t.Status = domain.TaskStatusTodo
	r.stored[t.ID] = *t
	return t, nil
}

func (r *fakeTaskRepo) ListTasks(ctx context.Context, db *gorm.DB, caregiverID string) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range r.stored {
		if t.CaregiverID == caregiverID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) GetTask(ctx context.Context, db *gorm.DB, id, caregiverID string) (*domain.Task, error) {
	t, ok := r.stored[id]
	if !ok || t.CaregiverID != caregiverID {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r *fakeTaskRepo) UpdateTask(ctx context.Context, db *gorm.DB, t *domain.Task) error {
	if _, ok := r.stored[t.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.stored[t.ID] = *t
	return nil
}

func (r *fakeTaskRepo) DeleteTask(ctx context.Context, db *gorm.DB, id, caregiverID string) error {
	if _, ok := r.stored[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.stored, id)
	return nil
}

// ----- Tests -----

func TestTaskCreate_TrimsTitleAndStartsTodo(t *testing.T) {
	s := NewTaskService(nil, newFakeTaskRepo())
	created, err := s.Create(context.Background(), "c1", domain.Task{
		Title:   "  Pedir cita médica  ",
		DueDate: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.Title != "Pedir cita médica" {
		t.Fatalf("title = %q", created.Title)
	}
	if created.Status != domain.TaskStatusTodo {
		t.Fatalf("status = %q; want todo", created.Status)
	}
	if created.CaregiverID != "c1" {
		t.Fatalf("caregiver = %q", created.CaregiverID)
	}
}

func TestTaskCreate_RejectsBlankTitle(t *testing.T) {
	s := NewTaskService(nil, newFakeTaskRepo())
	if _, err := s.Create(context.Background(), "c1", domain.Task{Title: "   "}); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
}

func TestTaskUpdate_ValidatesStatus(t *testing.T) {
	existing := domain.Task{ID: "t1", CaregiverID: "c1", Title: "Comprar tiras", Status: domain.TaskStatusTodo}
	s := NewTaskService(nil, newFakeTaskRepo(existing))

	upd := existing
	upd.Status = domain.TaskStatus("SOMEDAY")
	if _, err := s.Update(context.Background(), "c1", upd); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	upd.Status = domain.TaskStatusDone
	got, err := s.Update(context.Background(), "c1", upd)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Status != domain.TaskStatusDone {
		t.Fatalf("status = %q; want done", got.Status)
	}
}

func TestTaskGetDelete_NotFound(t *testing.T) {
	s := NewTaskService(nil, newFakeTaskRepo())
	if _, err := s.Get(context.Background(), "nope", "c1"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Get: expected ErrTaskNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "nope", "c1"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Delete: expected ErrTaskNotFound, got %v", err)
	}
}
