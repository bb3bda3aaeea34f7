package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskapi/internal/domain"
)

type createTaskRequest struct {
	Title       string          `json:"title" binding:"required,notblank"`
	Description string          `json:"description"`
	Completed   json.RawMessage `json:"completed" binding:"required"`
	DueDate     string          `json:"dueDate"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	DueDate     *string `json:"dueDate,omitempty"`
	UserID      string  `json:"userId"`
	CreatedAt   string  `json:"createdAt"`
}

var errUnauthenticated = errors.New("user id missing from request context")

func (h *Handler) requester(c *gin.Context) (string, error) {
	userID, ok := UserIDFromContext(c)
	if !ok {
		respondMessage(c, http.StatusUnauthorized, "User ID not found in request (authentication error).")
		return "", errUnauthenticated
	}
	return userID, nil
}

func (h *Handler) createTask(c *gin.Context) {
	userID, err := h.requester(c)
	if err != nil {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Title and completion status are required.")
		return
	}

	completed, err := truthy(req.Completed)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid completion status.")
		return
	}
	task := &domain.Task{
		Title:       req.Title,
		Description: req.Description,
		Completed:   completed,
		UserID:      userID,
	}
	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, "Invalid due date.")
			return
		}
		task.DueDate = &due
	}

	id, err := h.tasks.CreateTask(c.Request.Context(), task)
	if err != nil {
		h.respondTaskError(c, err, "Failed to create task.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "Task created successfully."})
}

func (h *Handler) listTasks(c *gin.Context) {
	userID, err := h.requester(c)
	if err != nil {
		return
	}

	var completed *bool
	if raw, ok := c.GetQuery("completed"); ok {
		v := strings.EqualFold(raw, "true")
		completed = &v
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), userID, completed)
	if err != nil {
		h.respondServerError(c, err, "Failed to retrieve tasks.")
		return
	}

	resp := make([]TaskResponse, len(tasks))
	for i := range tasks {
		resp[i] = taskToResponse(tasks[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getTask(c *gin.Context) {
	userID, err := h.requester(c)
	if err != nil {
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondTaskError(c, err, "Failed to retrieve task.")
		return
	}

	c.JSON(http.StatusOK, taskToResponse(*task))
}

func (h *Handler) updateTask(c *gin.Context) {
	userID, err := h.requester(c)
	if err != nil {
		return
	}

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil || len(body) == 0 {
		respondMessage(c, http.StatusBadRequest, "No update data provided.")
		return
	}

	update, err := parseTaskUpdate(body)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tasks.UpdateTask(c.Request.Context(), c.Param("id"), userID, update); err != nil {
		h.respondTaskError(c, err, "Failed to update task.")
		return
	}

	respondMessage(c, http.StatusOK, "Task updated successfully.")
}

func (h *Handler) deleteTask(c *gin.Context) {
	userID, err := h.requester(c)
	if err != nil {
		return
	}

	if err := h.tasks.DeleteTask(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.respondTaskError(c, err, "Failed to delete task.")
		return
	}

	respondMessage(c, http.StatusOK, "Task deleted successfully.")
}

// parseTaskUpdate reads the mutable fields of a partial task body. Owner and
// creation time are dropped; unknown keys are ignored.
func parseTaskUpdate(body map[string]json.RawMessage) (domain.TaskUpdate, error) {
	var update domain.TaskUpdate

	if raw, ok := body["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil || strings.TrimSpace(title) == "" {
			return update, errors.New("title must be a non-empty string")
		}
		update.Title = &title
	}
	if raw, ok := body["description"]; ok {
		var description *string
		if err := json.Unmarshal(raw, &description); err != nil {
			return update, errors.New("description must be a string")
		}
		if description == nil {
			description = new(string)
		}
		update.Description = description
	}
	if raw, ok := body["completed"]; ok {
		completed, err := truthy(raw)
		if err != nil {
			return update, errors.New("invalid completion status")
		}
		update.Completed = &completed
	}
	if raw, ok := body["dueDate"]; ok {
		var value *string
		if err := json.Unmarshal(raw, &value); err != nil {
			return update, errors.New("invalid due date")
		}
		if value == nil || *value == "" {
			update.ClearDueDate = true
		} else {
			due, err := parseDate(*value)
			if err != nil {
				return update, errors.New("invalid due date")
			}
			update.DueDate = &due
		}
	}
	return update, nil
}

// truthy coerces any JSON value to a boolean the way a loosely typed client expects.
func truthy(raw json.RawMessage) (bool, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, err
	}
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case float64:
		return val != 0, nil
	case string:
		return val != "", nil
	default:
		return true, nil
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

func taskToResponse(task domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
		UserID:      task.UserID,
		CreatedAt:   task.CreatedAt.Format(time.RFC3339),
	}
	if task.DueDate != nil {
		v := task.DueDate.Format(time.RFC3339)
		resp.DueDate = &v
	}
	return resp
}
