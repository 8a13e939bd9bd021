package todoist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/extdeck/extdeck/pkg/fetch"
)

const defaultAPIURL = "https://api.todoist.com/rest/v2"

type rawDue struct {
	Date        string  `json:"date"`
	String      string  `json:"string"`
	Datetime    *string `json:"datetime"`
	IsRecurring bool    `json:"is_recurring"`
}

type rawTask struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Content     string   `json:"content"`
	Description *string  `json:"description"`
	Labels      []string `json:"labels"`
	Priority    int      `json:"priority"`
	Due         *rawDue  `json:"due"`
	URL         string   `json:"url"`
	IsCompleted bool     `json:"is_completed"`
}

type rawTasks []rawTask

func (ts rawTasks) Validate() error {
	for i, t := range ts {
		if t.ID == "" {
			return fmt.Errorf("task %d has no id", i)
		}
	}
	return nil
}

func (t rawTask) Validate() error {
	if t.ID == "" {
		return errors.New("task has no id")
	}
	return nil
}

type rawProject struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	IsFavorite     bool   `json:"is_favorite"`
	IsInboxProject bool   `json:"is_inbox_project"`
	URL            string `json:"url"`
}

type createTaskRequest struct {
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	DueString   string `json:"due_string,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// noDate is the due string that removes a due date.
const noDate = "no date"

// updateTaskRequest changes only the non-nil fields.
type updateTaskRequest struct {
	Content     *string `json:"content,omitempty"`
	Description *string `json:"description,omitempty"`
	DueString   *string `json:"due_string,omitempty"`
}

type api struct {
	c *fetch.Client
}

func (a *api) tasks(ctx context.Context, filter string) (rawTasks, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	return fetch.Get[rawTasks](ctx, a.c, "/tasks", q)
}

func (a *api) projects(ctx context.Context) ([]rawProject, error) {
	return fetch.Get[[]rawProject](ctx, a.c, "/projects", nil)
}

func (a *api) closeTask(ctx context.Context, id string) error {
	return a.c.Exec(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/close", nil)
}

func (a *api) reopenTask(ctx context.Context, id string) error {
	return a.c.Exec(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/reopen", nil)
}

func (a *api) setPriority(ctx context.Context, id string, priority int) (rawTask, error) {
	return fetch.Send[rawTask](ctx, a.c, http.MethodPost, "/tasks/"+url.PathEscape(id), map[string]int{"priority": priority})
}

func (a *api) updateTask(ctx context.Context, id string, req updateTaskRequest) (rawTask, error) {
	return fetch.Send[rawTask](ctx, a.c, http.MethodPost, "/tasks/"+url.PathEscape(id), req)
}

func (a *api) moveTask(ctx context.Context, id, projectID string) (rawTask, error) {
	return fetch.Send[rawTask](ctx, a.c, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/move", map[string]string{"project_id": projectID})
}

func (a *api) deleteTask(ctx context.Context, id string) error {
	return a.c.Exec(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil)
}

func (a *api) createTask(ctx context.Context, req createTaskRequest) (rawTask, error) {
	return fetch.Send[rawTask](ctx, a.c, http.MethodPost, "/tasks", req)
}
