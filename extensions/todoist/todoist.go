// Package todoist lists, edits, completes and creates Todoist tasks
// through the REST v2 API.
package todoist

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

const defaultFilter = "today | overdue"

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "todoist",
		Title:       "Todoist",
		Description: "Manage Todoist tasks",
		Preferences: []extension.PreferenceSpec{
			{Name: "token", Title: "API Token", Required: true, Secret: true},
			{Name: "filter", Title: "Default Filter", Default: defaultFilter},
			{Name: "api_url", Title: "API URL", Default: defaultAPIURL},
		},
		Commands: []extension.Command{
			{
				Name:        "tasks",
				Title:       "Show Tasks",
				Description: "Tasks matching a Todoist filter",
				Arguments:   []extension.Argument{{Name: "filter", Placeholder: defaultFilter}},
				Open:        openTasks,
			},
			{Name: "create-task", Title: "Create Task", Open: openCreateTask},
			{Name: "projects", Title: "Show Projects", Open: openProjects},
		},
	}
}

func newAPI(env *extension.Env) *api {
	return &api{c: env.Client(
		env.Prefs.StringOr("api_url", defaultAPIURL),
		fetch.WithBearer(env.Prefs.String("token")),
	)}
}

func byID(id string) func(Task) bool {
	return func(t Task) bool { return t.ID == id }
}

// replaceWith swaps the task id for the server's version of it.
func replaceWith(id string, updated Task) func([]Task) []Task {
	return func(ts []Task) []Task {
		return transform.Replace(ts, byID(id), func(Task) Task { return updated })
	}
}

func projectsLoader(a *api) func(context.Context, struct{}) ([]Project, error) {
	return func(ctx context.Context, _ struct{}) ([]Project, error) {
		raw, err := a.projects(ctx)
		if err != nil {
			return nil, err
		}
		return toProjects(raw), nil
	}
}

func priorityLabel(p int) string {
	return fmt.Sprintf("P%d", 5-p)
}

var priorityTint = map[int]string{4: "red", 3: "orange", 2: "blue"}

type tasksScreen struct {
	env      *extension.Env
	api      *api
	filter   string
	tasks    *binding.Binding[string, []Task]
	projects *binding.Binding[struct{}, []Project]
}

func openTasks(_ context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	s := &tasksScreen{
		env:    env,
		api:    newAPI(env),
		filter: transform.Or(strings.TrimSpace(args["filter"]), env.Prefs.StringOr("filter", defaultFilter)),
	}
	s.tasks = binding.New(s.load, []Task{},
		binding.WithCache(env.Cache, "tasks:"+s.filter),
		binding.WithNotifier(env.Notifier, "Failed to load tasks"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.tasks.Update(s.filter)
	// Projects only feed the move actions, so a failed load stays quiet.
	s.projects = binding.New(projectsLoader(s.api), []Project{},
		binding.WithCache(env.Cache, "projects"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.projects.Update(struct{}{})
	return s, nil
}

func (s *tasksScreen) load(ctx context.Context, filter string) ([]Task, error) {
	raw, err := s.api.tasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return toTasks(raw), nil
}

func (s *tasksScreen) Render() view.View {
	st := s.tasks.State()
	projects := s.projects.State().Data
	l := &view.List{
		Title:             "Tasks",
		IsLoading:         st.IsLoading,
		SearchPlaceholder: "Filter tasks by name",
		Sections: []view.Section{{
			Title:    s.filter,
			Subtitle: strconv.Itoa(len(st.Data)),
			Items:    transform.Map(st.Data, func(t Task) view.Item { return taskItem(t, projects) }),
		}},
	}
	if len(st.Data) == 0 && !st.IsLoading {
		l.Empty = &view.Empty{Title: "No tasks", Description: "Nothing matches " + s.filter}
		if st.Err != nil {
			l.Empty = &view.Empty{Title: "Could not load tasks", Description: fetch.Message(st.Err)}
		}
	}
	return l
}

func taskItem(t Task, projects []Project) view.Item {
	icon := &view.Icon{Source: "circle", Tint: priorityTint[t.Priority]}
	toggle := view.PerformAction(extension.ActionID("complete", t.ID), "Complete Task")
	if t.Done {
		icon = &view.Icon{Source: "checkbox-checked", Tint: "green"}
		toggle = view.PerformAction(extension.ActionID("reopen", t.ID), "Reopen Task")
	}

	var acc []view.Accessory
	if t.DueLabel != "" {
		acc = append(acc, view.Accessory{Text: t.DueLabel, Date: dateString(t), Tooltip: "Due"})
	}
	for _, l := range t.Labels {
		acc = append(acc, view.Accessory{Tag: l})
	}
	if t.Priority > 1 {
		acc = append(acc, view.Accessory{Tag: priorityLabel(t.Priority), Tooltip: "Priority"})
	}

	actions := []view.Action{
		toggle,
		view.OpenAction("Open in Todoist", t.URL),
		view.CopyAction("Copy Task Title", t.Content),
	}
	for p := 4; p >= 1; p-- {
		if p != t.Priority {
			actions = append(actions, view.PerformAction(
				extension.ActionID("priority", t.ID, strconv.Itoa(p)),
				"Set Priority "+priorityLabel(p)))
		}
	}
	edit := view.PerformAction(extension.ActionID("edit", t.ID), "Edit Task").WithShortcut("cmd+e")
	edit.Args = map[string]string{"content": t.Content, "description": t.Description, "due": t.DueLabel}
	actions = append(actions, edit)
	for _, p := range projects {
		if p.ID != t.ProjectID {
			actions = append(actions, view.PerformAction(extension.ActionID("move", t.ID, p.ID), "Move to "+p.Name))
		}
	}
	actions = append(actions,
		view.PerformAction(extension.ActionID("delete", t.ID), "Delete Task").Destructive().WithShortcut("ctrl+x"),
		view.PerformAction("refresh", "Refresh").WithShortcut("cmd+r"),
	)

	return view.Item{
		ID:          t.ID,
		Title:       t.Content,
		Subtitle:    transform.Truncate(t.Description, 60),
		Icon:        icon,
		Accessories: acc,
		Keywords:    t.Labels,
		Actions:     actions,
	}
}

func dateString(t Task) string {
	if t.Due.IsZero() {
		return ""
	}
	return t.Due.Format("2006-01-02")
}

func (s *tasksScreen) Perform(ctx context.Context, action string, input map[string]string) error {
	verb, ops := extension.ParseAction(action)
	switch {
	case verb == "refresh":
		s.tasks.Revalidate()
		return nil
	case verb == "complete" && len(ops) == 1:
		return s.setDone(ctx, ops[0], true)
	case verb == "reopen" && len(ops) == 1:
		return s.setDone(ctx, ops[0], false)
	case verb == "priority" && len(ops) == 2:
		p, err := strconv.Atoi(ops[1])
		if err != nil || p < 1 || p > 4 {
			break
		}
		return s.setPriority(ctx, ops[0], p)
	case verb == "edit" && len(ops) == 1:
		return s.edit(ctx, ops[0], input)
	case verb == "move" && len(ops) == 2:
		return s.move(ctx, ops[0], ops[1])
	case verb == "delete" && len(ops) == 1:
		return s.delete(ctx, ops[0])
	}
	return extension.UnknownAction(action)
}

func (s *tasksScreen) setDone(ctx context.Context, id string, done bool) error {
	call, failure, success := s.api.closeTask, "Failed to mark task as completed", "Task completed"
	if !done {
		call, failure, success = s.api.reopenTask, "Failed to mark task as incomplete", "Task reopened"
	}
	err := s.tasks.Mutate(ctx, binding.Mutation[[]Task]{
		Optimistic: func(ts []Task) []Task {
			return transform.Replace(ts, byID(id), func(t Task) Task {
				t.Done = done
				return t
			})
		},
		Commit: func(ctx context.Context) (func([]Task) []Task, error) {
			return nil, call(ctx, id)
		},
		FailureTitle: failure,
	})
	if err != nil {
		return err
	}
	notify.Success(s.env.Notifier, success, "")
	return nil
}

func (s *tasksScreen) setPriority(ctx context.Context, id string, priority int) error {
	return s.tasks.Mutate(ctx, binding.Mutation[[]Task]{
		Optimistic: func(ts []Task) []Task {
			return transform.Replace(ts, byID(id), func(t Task) Task {
				t.Priority = priority
				return t
			})
		},
		Commit: func(ctx context.Context) (func([]Task) []Task, error) {
			raw, err := s.api.setPriority(ctx, id, priority)
			if err != nil {
				return nil, err
			}
			return replaceWith(id, toTask(raw)), nil
		},
		FailureTitle: "Failed to change priority",
	})
}

// edit changes the fields present in input: content, description and due.
// An empty due removes the due date.
func (s *tasksScreen) edit(ctx context.Context, id string, input map[string]string) error {
	var req updateTaskRequest
	if v, ok := input["content"]; ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("%w: task title is required", view.ErrInvalid)
		}
		req.Content = &v
	}
	if v, ok := input["description"]; ok {
		req.Description = &v
	}
	if v, ok := input["due"]; ok {
		v = transform.Or(strings.TrimSpace(v), noDate)
		req.DueString = &v
	}
	if req == (updateTaskRequest{}) {
		return fmt.Errorf("%w: nothing to change", view.ErrInvalid)
	}

	err := s.tasks.Mutate(ctx, binding.Mutation[[]Task]{
		Optimistic: func(ts []Task) []Task { return transform.Replace(ts, byID(id), req.apply) },
		Commit: func(ctx context.Context) (func([]Task) []Task, error) {
			raw, err := s.api.updateTask(ctx, id, req)
			if err != nil {
				return nil, err
			}
			return replaceWith(id, toTask(raw)), nil
		},
		FailureTitle: "Failed to update task",
	})
	if err != nil {
		return err
	}
	notify.Success(s.env.Notifier, "Task updated", "")
	return nil
}

// apply is the local guess at the server's result. The due date itself is
// only known once the server has parsed the due string.
func (r updateTaskRequest) apply(t Task) Task {
	if r.Content != nil {
		t.Content = *r.Content
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.DueString != nil {
		t.Due, t.DueLabel, t.Recurring = time.Time{}, "", false
		if *r.DueString != noDate {
			t.DueLabel = *r.DueString
		}
	}
	return t
}

func (s *tasksScreen) move(ctx context.Context, id, projectID string) error {
	name := projectID
	for _, p := range s.projects.State().Data {
		if p.ID == projectID {
			name = p.Name
		}
	}
	err := s.tasks.Mutate(ctx, binding.Mutation[[]Task]{
		Optimistic: func(ts []Task) []Task {
			return transform.Replace(ts, byID(id), func(t Task) Task {
				t.ProjectID = projectID
				return t
			})
		},
		Commit: func(ctx context.Context) (func([]Task) []Task, error) {
			raw, err := s.api.moveTask(ctx, id, projectID)
			if err != nil {
				return nil, err
			}
			return replaceWith(id, toTask(raw)), nil
		},
		FailureTitle: "Failed to move task",
	})
	if err != nil {
		return err
	}
	notify.Success(s.env.Notifier, "Task moved", name)
	return nil
}

func (s *tasksScreen) delete(ctx context.Context, id string) error {
	err := s.tasks.Mutate(ctx, binding.Mutation[[]Task]{
		Optimistic: func(ts []Task) []Task { return transform.Remove(ts, byID(id)) },
		Commit: func(ctx context.Context) (func([]Task) []Task, error) {
			return nil, s.api.deleteTask(ctx, id)
		},
		FailureTitle: "Failed to delete task",
	})
	if err != nil {
		return err
	}
	notify.Success(s.env.Notifier, "Task deleted", "")
	return nil
}

func (s *tasksScreen) Wait() {
	s.tasks.Wait()
	s.projects.Wait()
}

func (s *tasksScreen) Close() {
	s.tasks.Close()
	s.projects.Close()
}

type createScreen struct {
	env      *extension.Env
	api      *api
	projects *binding.Binding[struct{}, []Project]

	mu     sync.Mutex
	values map[string]string
	errors map[string]string
}

func openCreateTask(_ context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	s := &createScreen{
		env:    env,
		api:    newAPI(env),
		values: map[string]string{"priority": "1"},
	}
	s.projects = binding.New(projectsLoader(s.api), []Project{},
		binding.WithCache(env.Cache, "projects"),
		binding.WithNotifier(env.Notifier, "Failed to load projects"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.projects.Update(struct{}{})
	return s, nil
}

func (s *createScreen) form() *view.Form {
	projects := []view.Option{{Value: "", Title: "Inbox"}}
	for _, p := range s.projects.State().Data {
		if !p.Inbox {
			projects = append(projects, view.Option{Value: p.ID, Title: p.Name})
		}
	}
	return &view.Form{
		Title: "Create Task",
		Fields: []view.Field{
			{ID: "content", Kind: view.TextField, Title: "Title", Placeholder: "Buy groceries", Required: true},
			{ID: "description", Kind: view.TextArea, Title: "Description"},
			{ID: "due", Kind: view.TextField, Title: "Due", Placeholder: "tomorrow at 5pm"},
			{ID: "priority", Kind: view.Select, Title: "Priority", Options: []view.Option{
				{Value: "4", Title: "P1"}, {Value: "3", Title: "P2"}, {Value: "2", Title: "P3"}, {Value: "1", Title: "P4"},
			}},
			{ID: "project", Kind: view.Select, Title: "Project", Options: projects},
		},
		Submit: view.Action{ID: "create", Title: "Create Task", Kind: view.Submit},
	}
}

func (s *createScreen) Render() view.View {
	f := s.form()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range f.Fields {
		f.Fields[i].Value = s.values[f.Fields[i].ID]
		f.Fields[i].Error = s.errors[f.Fields[i].ID]
	}
	return f
}

func (s *createScreen) Perform(ctx context.Context, action string, input map[string]string) error {
	if action != "create" {
		return extension.UnknownAction(action)
	}
	f := s.form()
	ok := f.Validate(input)
	s.remember(f)
	if !ok {
		s.env.Changed()
		return view.ErrInvalid
	}

	values := f.Values()
	priority, _ := strconv.Atoi(values["priority"])
	task, err := s.api.createTask(ctx, createTaskRequest{
		Content:     values["content"],
		Description: values["description"],
		ProjectID:   values["project"],
		DueString:   values["due"],
		Priority:    priority,
	})
	if err != nil {
		s.env.Toast("Failed to create task", err)
		return err
	}
	notify.Success(s.env.Notifier, "Task created", task.Content)

	s.mu.Lock()
	s.values = map[string]string{"priority": "1", "project": values["project"]}
	s.mu.Unlock()
	s.env.Changed()
	return nil
}

func (s *createScreen) remember(f *view.Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = f.Values()
	s.errors = make(map[string]string)
	for _, fld := range f.Fields {
		if fld.Error != "" {
			s.errors[fld.ID] = fld.Error
		}
	}
}

func (s *createScreen) Wait()  { s.projects.Wait() }
func (s *createScreen) Close() { s.projects.Close() }

type projectsScreen struct {
	env      *extension.Env
	projects *binding.Binding[struct{}, []Project]
}

func openProjects(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	s := &projectsScreen{env: env}
	s.projects = binding.New(projectsLoader(newAPI(env)), []Project{},
		binding.WithCache(env.Cache, "projects"),
		binding.WithNotifier(env.Notifier, "Failed to load projects"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.projects.Update(struct{}{})
	return s, nil
}

func (s *projectsScreen) Render() view.View {
	st := s.projects.State()
	var favorites, rest []view.Item
	for _, p := range st.Data {
		it := view.Item{
			ID:    p.ID,
			Title: p.Name,
			Icon:  &view.Icon{Source: "list", Tint: p.Color},
			Actions: []view.Action{
				view.PushAction("Show Tasks", "tasks", map[string]string{"filter": "#" + p.Name}),
				view.OpenAction("Open in Todoist", p.URL),
				view.PerformAction("refresh", "Refresh"),
			},
		}
		if p.Inbox {
			it.Icon = &view.Icon{Source: "tray"}
		}
		if p.Favorite {
			favorites = append(favorites, it)
		} else {
			rest = append(rest, it)
		}
	}
	l := &view.List{Title: "Projects", IsLoading: st.IsLoading, SearchPlaceholder: "Filter projects by name"}
	if len(favorites) > 0 {
		l.Sections = append(l.Sections, view.Section{Title: "Favorites", Items: favorites})
	}
	l.Sections = append(l.Sections, view.Section{Title: "Projects", Items: transform.NonNil(rest)})
	return l
}

func (s *projectsScreen) Perform(_ context.Context, action string, _ map[string]string) error {
	if action == "refresh" {
		s.projects.Revalidate()
		return nil
	}
	return extension.UnknownAction(action)
}

func (s *projectsScreen) Wait()  { s.projects.Wait() }
func (s *projectsScreen) Close() { s.projects.Close() }
