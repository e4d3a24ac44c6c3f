package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/pildhora/go-adherence-backend/internal/domain"
)

// TaskRepo defines the repository contract required by TaskService.
type TaskRepo interface {
	CreateTask(ctx context.Context, db *gorm.DB, t *domain.Task) (*domain.Task, error)
	ListTasks(ctx context.Context, db *gorm.DB, caregiverID string) ([]domain.Task, error)
	GetTask(ctx context.Context, db *gorm.DB, id, caregiverID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, db *gorm.DB, t *domain.Task) error
	DeleteTask(ctx context.Context, db *gorm.DB, id, caregiverID string) error
}

// TaskService manages the caregiver task list. It carries no scheduling
// logic of its own; tasks are free-form reminders beside the medication plan.
type TaskService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the task repository.
	Repo TaskRepo
}

// NewTaskService constructs a TaskService.
func NewTaskService(db *gorm.DB, repo TaskRepo) *TaskService {
	return &TaskService{DB: db, Repo: repo}
}

// Create persists a new task for caregiverID. The title must be non-blank;
// new tasks always start in the todo state.
func (s *TaskService) Create(ctx context.Context, caregiverID string, t domain.Task) (*domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return nil, ErrEmptyTitle
	}
	t.CaregiverID = caregiverID
	return s.Repo.CreateTask(ctx, s.DB, &t)
}

// List returns the caregiver's tasks ordered by due date.
func (s *TaskService) List(ctx context.Context, caregiverID string) ([]domain.Task, error) {
	return s.Repo.ListTasks(ctx, s.DB, caregiverID)
}

// Get fetches one task by id, scoped to its owner. Returns ErrTaskNotFound
// when absent.
func (s *TaskService) Get(ctx context.Context, id, caregiverID string) (*domain.Task, error) {
	t, err := s.Repo.GetTask(ctx, s.DB, id, caregiverID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Update persists changes to an existing task. The title must stay
// non-blank and the status must be a known task status.
func (s *TaskService) Update(ctx context.Context, caregiverID string, t domain.Task) (*domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return nil, ErrEmptyTitle
	}
	if t.Status != domain.TaskStatusTodo && t.Status != domain.TaskStatusDone {
		return nil, ErrInvalidStatus
	}
	t.CaregiverID = caregiverID
	if err := s.Repo.UpdateTask(ctx, s.DB, &t); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return s.Get(ctx, t.ID, caregiverID)
}

// Delete removes a task. Returns ErrTaskNotFound when absent.
func (s *TaskService) Delete(ctx context.Context, id, caregiverID string) error {
	err := s.Repo.DeleteTask(ctx, s.DB, id, caregiverID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTaskNotFound
	}
	return err
}
