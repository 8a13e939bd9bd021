package todoist

import (
	"sort"
	"time"

	"github.com/extdeck/extdeck/pkg/transform"
)

// Task is the list view-model of a Todoist task.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Labels      []string  `json:"labels"`
	Priority    int       `json:"priority"`
	Due         time.Time `json:"due"`
	DueLabel    string    `json:"due_label"`
	Recurring   bool      `json:"recurring"`
	URL         string    `json:"url"`
	Done        bool      `json:"done"`
}

// Project is a Todoist project.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Favorite bool   `json:"favorite"`
	Inbox    bool   `json:"inbox"`
	URL      string `json:"url"`
}

func toTask(r rawTask) Task {
	t := Task{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Content:     r.Content,
		Description: transform.Str(r.Description),
		Labels:      transform.NonNil(r.Labels),
		Priority:    min(max(r.Priority, 1), 4),
		URL:         transform.Or(r.URL, "https://todoist.com/showTask?id="+r.ID),
		Done:        r.IsCompleted,
	}
	if r.Due != nil {
		t.Due = transform.Time(transform.Str(r.Due.Datetime), time.RFC3339, "2006-01-02T15:04:05")
		if t.Due.IsZero() {
			t.Due = transform.Time(r.Due.Date, time.DateOnly)
		}
		t.DueLabel = transform.Or(r.Due.String, r.Due.Date)
		t.Recurring = r.Due.IsRecurring
	}
	return t
}

// toTasks maps and orders tasks by due date (undated last), then by
// priority, highest first.
func toTasks(raw rawTasks) []Task {
	tasks := transform.Map(raw, toTask)
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Due.IsZero() != b.Due.IsZero() {
			return !a.Due.IsZero()
		}
		if !a.Due.Equal(b.Due) {
			return a.Due.Before(b.Due)
		}
		return a.Priority > b.Priority
	})
	return tasks
}

func toProjects(raw []rawProject) []Project {
	return transform.Map(raw, func(r rawProject) Project {
		return Project{
			ID:       r.ID,
			Name:     r.Name,
			Color:    r.Color,
			Favorite: r.IsFavorite,
			Inbox:    r.IsInboxProject,
			URL:      transform.Or(r.URL, "https://todoist.com/app/project/"+r.ID),
		}
	})
}
