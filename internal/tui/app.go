// internal/tui/app.go
//
// This is the variable inspector TUI. It uses bubbletea, which follows The
// Elm Architecture:
//
// 1. Model: the registered variables, the selection and the last resolution
// 2. Update: reacts to keys, resolution results and registry changes
// 3. View: renders the variable list next to the resolved value and its
//    dependency chain
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

type focus int

const (
	focusList   focus = iota // Moving through the variable list
	focusDetail              // Scrolling the resolved value
	focusArg                 // Typing an argument
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithScope sets the scope handed to resolvers.
func WithScope(scope any) AppOption {
	return func(a *App) {
		a.scope = scope
	}
}

// WithContext sets the context used for resolutions.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

type resolvedMsg struct {
	ref   variables.Ref
	value *variables.ResolvedVariable
	err   error
}

type registryChangedMsg struct {
	change variables.Change
}

// variableItem implements list.Item for a registered variable.
type variableItem struct {
	variable variables.Variable
}

func (i variableItem) Title() string { return i.variable.Name }

func (i variableItem) Description() string {
	desc := strings.TrimSpace(i.variable.Description)
	if len(i.variable.Arguments) > 0 {
		names := make([]string, len(i.variable.Arguments))
		for idx, arg := range i.variable.Arguments {
			names[idx] = arg.Name
		}
		args := "args: " + strings.Join(names, ", ")
		if desc == "" {
			return args
		}
		return desc + " · " + args
	}
	if desc == "" {
		return "no description"
	}
	return desc
}

func (i variableItem) FilterValue() string { return i.variable.Name }

// App is the inspector model.
type App struct {
	engine *variables.Engine
	scope  any
	ctx    context.Context
	cache  *variables.Cache
	sub    variables.Subscription

	focus  focus
	list   list.Model
	detail viewport.Model
	arg    textinput.Model

	current   variables.Ref
	result    *variables.ResolvedVariable
	err       error
	resolving bool
	statusMsg string

	width  int
	height int
}

// NewApp creates an inspector over engine's registry. Call Close when the
// program exits to release the registry subscription.
func NewApp(engine *variables.Engine, opts ...AppOption) *App {
	menu := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "⬡ VARIABLES"
	menu.SetShowStatusBar(false)

	arg := textinput.New()
	arg.Placeholder = "argument"
	arg.Prompt = "arg › "

	a := &App{
		engine: engine,
		ctx:    context.Background(),
		cache:  variables.NewCache(),
		sub:    engine.Variables().Subscribe(),
		list:   menu,
		detail: viewport.New(0, 0),
		arg:    arg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.refreshItems()
	a.detail.SetContent(a.renderDetail())
	return a
}

// Close releases the registry subscription.
func (a *App) Close() {
	a.sub.Close()
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.waitForChange()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		listWidth, detailWidth := a.paneWidths()
		a.list.SetSize(listWidth, max(0, msg.Height-4))
		a.detail.Width = detailWidth
		a.detail.Height = max(0, msg.Height-8)
		a.detail.SetContent(a.renderDetail())
		return a, nil

	case registryChangedMsg:
		a.refreshItems()
		a.statusMsg = fmt.Sprintf("%s %s", msg.change.Name, msg.change.Kind)
		cmds := []tea.Cmd{a.waitForChange()}
		// Definitions changed underneath the cached values.
		a.cache = variables.NewCache()
		if a.current.Name != "" {
			cmds = append(cmds, a.resolve(a.current))
		}
		return a, tea.Batch(cmds...)

	case resolvedMsg:
		if msg.ref != a.current {
			return a, nil
		}
		a.resolving = false
		a.result = msg.value
		a.err = msg.err
		a.detail.SetContent(a.renderDetail())
		a.detail.GotoTop()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a.forward(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	if a.focus == focusArg {
		switch msg.String() {
		case "enter":
			a.focus = focusList
			a.arg.Blur()
			item, ok := a.selected()
			if !ok {
				return a, nil
			}
			return a, a.resolve(variables.RefFor(item.variable, a.arg.Value()))
		case "esc":
			a.focus = focusList
			a.arg.Blur()
			return a, nil
		}
		var cmd tea.Cmd
		a.arg, cmd = a.arg.Update(msg)
		return a, cmd
	}

	if a.list.FilterState() == list.Filtering {
		return a.forward(msg)
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "tab":
		if a.focus == focusList {
			a.focus = focusDetail
		} else {
			a.focus = focusList
		}
		return a, nil
	case "enter":
		item, ok := a.selected()
		if !ok {
			return a, nil
		}
		return a, a.resolve(variables.RefFor(item.variable, ""))
	case "a":
		if _, ok := a.selected(); !ok {
			return a, nil
		}
		a.focus = focusArg
		a.arg.SetValue("")
		return a, a.arg.Focus()
	case "r":
		if a.current.Name == "" {
			return a, nil
		}
		a.cache = variables.NewCache()
		return a, a.resolve(a.current)
	}
	return a.forward(msg)
}

func (a *App) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if a.focus == focusDetail {
		a.detail, cmd = a.detail.Update(msg)
		return a, cmd
	}
	a.list, cmd = a.list.Update(msg)
	return a, cmd
}

func (a *App) selected() (variableItem, bool) {
	item, ok := a.list.SelectedItem().(variableItem)
	return item, ok
}

func (a *App) refreshItems() {
	current := ""
	if item, ok := a.selected(); ok {
		current = item.variable.Name
	}
	vars := a.engine.Variables().List()
	items := make([]list.Item, len(vars))
	selectIdx := 0
	for i, v := range vars {
		items[i] = variableItem{variable: v}
		if v.Name == current {
			selectIdx = i
		}
	}
	a.list.SetItems(items)
	if len(items) > 0 {
		a.list.Select(selectIdx)
	}
}

func (a *App) resolve(ref variables.Ref) tea.Cmd {
	a.current = ref
	a.resolving = true
	a.err = nil
	a.result = nil
	a.detail.SetContent(a.renderDetail())
	engine, ctx, scope, cache := a.engine, a.ctx, a.scope, a.cache
	return func() tea.Msg {
		value, err := engine.Resolve(ctx, ref, scope, cache)
		return resolvedMsg{ref: ref, value: value, err: err}
	}
}

func (a *App) waitForChange() tea.Cmd {
	events := a.sub.Events
	return func() tea.Msg {
		change, ok := <-events
		if !ok {
			return nil
		}
		return registryChangedMsg{change: change}
	}
}

func (a *App) paneWidths() (int, int) {
	if a.width <= 0 {
		return 0, 0
	}
	listWidth := max(24, a.width/3)
	return listWidth, max(20, a.width-listWidth-6)
}
