package view

// ActionKind says what the renderer does when an action is chosen.
type ActionKind string

const (
	// OpenURL opens Target in the browser.
	OpenURL ActionKind = "open_url"
	// Copy copies Target to the clipboard.
	Copy ActionKind = "copy"
	// Push opens Command as a new screen with Args.
	Push ActionKind = "push"
	// Perform calls back into the screen with the action ID.
	Perform ActionKind = "perform"
	// Submit sends the form values back with the action ID.
	Submit ActionKind = "submit"
)

// Action is a user action attached to an item, detail or form.
type Action struct {
	ID       string            `json:"id,omitempty"`
	Title    string            `json:"title"`
	Kind     ActionKind        `json:"kind"`
	Target   string            `json:"target,omitempty"`
	Command  string            `json:"command,omitempty"`
	Args     map[string]string `json:"args,omitempty"`
	Shortcut string            `json:"shortcut,omitempty"`
	Style    string            `json:"style,omitempty"`
	Icon     *Icon             `json:"icon,omitempty"`
}

// OpenAction opens url.
func OpenAction(title, url string) Action {
	return Action{Title: title, Kind: OpenURL, Target: url}
}

// CopyAction copies text.
func CopyAction(title, text string) Action {
	return Action{Title: title, Kind: Copy, Target: text, Shortcut: "cmd+shift+c"}
}

// PushAction opens another command.
func PushAction(title, command string, args map[string]string) Action {
	return Action{Title: title, Kind: Push, Command: command, Args: args}
}

// PerformAction routes id back to the current screen.
func PerformAction(id, title string) Action {
	return Action{ID: id, Title: title, Kind: Perform}
}

// Destructive marks a as destructive.
func (a Action) Destructive() Action {
	a.Style = "destructive"
	return a
}

// WithShortcut sets a's keyboard shortcut.
func (a Action) WithShortcut(s string) Action {
	a.Shortcut = s
	return a
}
