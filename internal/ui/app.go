package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/debounce"
	"github.com/five82/rebbit/internal/feed"
	"github.com/five82/rebbit/internal/notify"
	"github.com/five82/rebbit/internal/prefs"
	"github.com/five82/rebbit/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewFeed View = iota
	ViewPost
	ViewCompose
)

const defaultTick = 500 * time.Millisecond

// Options configures the UI.
type Options struct {
	Context     context.Context
	Manager     *state.Manager
	Toasts      *notify.Center
	SearchDelay time.Duration
	Tick        time.Duration
	ThemeName   string
	Sort        feed.SortKey
	PrefsPath   string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	manager   *state.Manager
	toasts    *notify.Center
	prefsPath string
	tick      time.Duration
	keys      keyMap
	bridge    *bridge
	now       func() time.Time

	// UI state
	theme    Theme
	view     View
	width    int
	height   int
	ready    bool
	showHelp bool

	// Data state
	snapshot state.Snapshot
	toast    notify.Toast
	hasToast bool

	// Feed state
	sortKey       feed.SortKey
	selected      int
	searching     bool
	search        textinput.Model
	query         string
	results       map[string]bool // ids returned by the store search; nil until it answers
	confirmDelete string

	// Post state
	openID   string
	postView viewport.Model

	// Compose state
	form composeForm
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Nightfox"
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search posts"
	search.CharLimit = 120

	m := Model{
		ctx:       ctx,
		manager:   opts.Manager,
		toasts:    opts.Toasts,
		prefsPath: prefsPath,
		tick:      tick,
		keys:      DefaultKeyMap(),
		bridge:    newBridge(opts.Manager, debounce.New(opts.SearchDelay)),
		now:       time.Now,
		theme:     GetTheme(themeName),
		view:      ViewFeed,
		sortKey:   feed.ParseSortKey(string(opts.Sort)),
		search:    search,
		postView:  viewport.New(0, 0),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.tick),
		m.bridge.wait(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd(m.tick)

	case changedMsg:
		m.refresh()
		return m, m.bridge.wait()

	case searchDueMsg:
		if msg.query != m.query {
			return m, m.bridge.wait()
		}
		return m, tea.Batch(m.bridge.wait(), searchCmd(m.ctx, m.manager, msg.query))

	case searchResultMsg:
		// Results for an older query are ignored; a failed search keeps the
		// local filter.
		if msg.query == m.query && msg.err == nil {
			m.results = make(map[string]bool, len(msg.posts))
			for _, p := range msg.posts {
				m.results[p.ID] = true
			}
			m.clampSelection()
		}
		return m, nil

	case actionDoneMsg:
		m.refresh()
		return m, nil

	case submitDoneMsg:
		return m.handleSubmitDone(msg)
	}

	// Cursor blinks and other component messages.
	var cmd tea.Cmd
	switch {
	case m.view == ViewCompose:
		m.form, cmd = m.form.update(msg)
	case m.searching:
		m.search, cmd = m.search.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// refresh pulls the latest snapshot and toast.
func (m *Model) refresh() {
	if m.manager != nil {
		m.snapshot = m.manager.Snapshot()
	}
	if m.toasts != nil {
		m.toast, m.hasToast = m.toasts.Latest()
	}
	m.clampSelection()

	if m.view == ViewPost {
		if _, ok := m.openPost(); !ok {
			// Deleted while open.
			m.view = ViewFeed
			m.openID = ""
			return
		}
		m.updatePostView()
	}
}

func (m *Model) resize() {
	m.postView.Width = max(m.width-4, 10)
	m.postView.Height = max(m.height-5, 3)
	m.search.Width = max(m.width-6, 10)
	if m.view == ViewCompose {
		m.form.resize(m.width, m.height)
	}
	m.updatePostView()
}

// visiblePosts is the feed after search and sort. Until the store answers a
// search the collection is filtered locally.
func (m Model) visiblePosts() []board.Post {
	if m.query == "" {
		return feed.Project(m.snapshot.Posts, "", m.sortKey)
	}
	if m.results == nil {
		return feed.Project(m.snapshot.Posts, m.query, m.sortKey)
	}
	matched := make([]board.Post, 0, len(m.results))
	for _, p := range m.snapshot.Posts {
		if m.results[p.ID] {
			matched = append(matched, p)
		}
	}
	return feed.Project(matched, "", m.sortKey)
}

func (m *Model) clampSelection() {
	n := len(m.visiblePosts())
	if m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m Model) selectedPost() (board.Post, bool) {
	posts := m.visiblePosts()
	if m.selected < 0 || m.selected >= len(posts) {
		return board.Post{}, false
	}
	return posts[m.selected], true
}

func (m Model) openPost() (board.Post, bool) {
	for _, p := range m.snapshot.Posts {
		if p.ID == m.openID {
			return p, true
		}
	}
	return board.Post{}, false
}

func (m Model) savePrefs() {
	_ = prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, Sort: m.sortKey})
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.bridge.close()
	return m, tea.Quit
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	defer m.bridge.close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
