// Caregiver task HTTP handlers.
//
// This file exposes REST endpoints for the caregiver's task list:
//   - POST   /tasks       (create)
//   - GET    /tasks       (list by due date)
//   - PUT    /tasks/{id}  (update)
//   - DELETE /tasks/{id}  (delete)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pildhora/go-adherence-backend/internal/domain"
	"github.com/pildhora/go-adherence-backend/internal/services"
)

// TaskRequest is the JSON payload for creating or updating a task.
type TaskRequest struct {
	// Title of the task (required).
	Title string `json:"title" binding:"required" example:"Pedir cita médica"`
	// Description adds free-form detail.
	Description string `json:"description"`
	// DueDate is when the task should be done.
	DueDate time.Time `json:"due_date"`
	// Status is "TODO" or "DONE"; ignored on create.
	Status string `json:"status" example:"TODO"`
}

func taskFail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyTitle):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task title is required")
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "status must be TODO or DONE")
	case errors.Is(err, services.ErrTaskNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "task not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// CreateTask godoc
// @ID          createTask
// @Summary     Create a task
// @Tags        Tasks
// @Accept      json
// @Produce     json
//
// @Param       X-Caregiver-ID  header  string  false "Caregiver ID (demo header)"  example(caregiver123)
// @Param       body            body    handlers.TaskRequest  true  "Task payload"
//
// @Success     201  {object} domain.Task
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tasks [post]
func (h *Handlers) CreateTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	created, err := h.taskSvc.Create(c.Request.Context(), caregiverID(c), domain.Task{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	})
	if err != nil {
		taskFail(c, err)
		return
	}
	ok(c, http.StatusCreated, created)
}

// ListTasks godoc
// @ID          listTasks
// @Summary     List tasks
// @Description Returns the caregiver's tasks ordered by due date.
// @Tags        Tasks
// @Produce     json
//
// @Param       X-Caregiver-ID  header  string  false "Caregiver ID (demo header)"  example(caregiver123)
//
// @Success     200  {array}  domain.Task
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tasks [get]
func (h *Handlers) ListTasks(c *gin.Context) {
	items, err := h.taskSvc.List(c.Request.Context(), caregiverID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if items == nil {
		items = []domain.Task{}
	}
	ok(c, http.StatusOK, items)
}

// UpdateTask godoc
// @ID          updateTask
// @Summary     Update a task
// @Tags        Tasks
// @Accept      json
// @Produce     json
//
// @Param       X-Caregiver-ID  header  string  false "Caregiver ID (demo header)"  example(caregiver123)
// @Param       id              path    string  true  "Task ID (UUID)"  format(uuid)
// @Param       body            body    handlers.TaskRequest  true  "Task payload"
//
// @Success     200  {object} domain.Task
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Task not found"
// @Router      /tasks/{id} [put]
func (h *Handlers) UpdateTask(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task id must be a UUID")
		return
	}
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	status := domain.TaskStatus(req.Status)
	if req.Status == "" {
		status = domain.TaskStatusTodo
	}
	updated, err := h.taskSvc.Update(c.Request.Context(), caregiverID(c), domain.Task{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Status:      status,
	})
	if err != nil {
		taskFail(c, err)
		return
	}
	ok(c, http.StatusOK, updated)
}

// DeleteTask godoc
// @ID          deleteTask
// @Summary     Delete a task
// @Tags        Tasks
// @Produce     json
//
// @Param       X-Caregiver-ID  header  string  false "Caregiver ID (demo header)"  example(caregiver123)
// @Param       id              path    string  true  "Task ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Task not found"
// @Router      /tasks/{id} [delete]
func (h *Handlers) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task id must be a UUID")
		return
	}
	if err := h.taskSvc.Delete(c.Request.Context(), id, caregiverID(c)); err != nil {
		taskFail(c, err)
		return
	}
	noContent(c)
}
