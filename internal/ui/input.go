package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rebbit/internal/board"
)

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	// Any key closes help
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	// Text entry gets every key.
	if m.view == ViewCompose {
		return m.handleComposeKey(msg)
	}
	if m.searching {
		return m.handleSearchKey(msg)
	}

	if m.confirmDelete != "" {
		id := m.confirmDelete
		m.confirmDelete = ""
		if key.Matches(msg, m.keys.Confirm) {
			return m, deleteCmd(m.ctx, m.manager, id)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		m.updatePostView()
		return m, nil
	}

	switch m.view {
	case ViewPost:
		return m.handlePostKey(msg)
	default:
		return m.handleFeedKey(msg)
	}
}

// handleFeedKey processes keyboard input for the feed view.
func (m Model) handleFeedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	posts := m.visiblePosts()
	count := len(posts)
	page := max(m.feedRows(), 1)

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < count-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = count - 1
	case key.Matches(msg, m.keys.PageUp):
		m.selected -= page
	case key.Matches(msg, m.keys.PageDown):
		m.selected += page

	case key.Matches(msg, m.keys.Sort):
		m.sortKey = m.sortKey.Next()
		m.selected = 0
		m.savePrefs()

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		cmd := m.search.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Back):
		m.clearSearch()

	case key.Matches(msg, m.keys.Compose):
		return m.openCompose(composePost)

	case key.Matches(msg, m.keys.Open):
		if post, ok := m.selectedPost(); ok {
			m.openID = post.ID
			m.view = ViewPost
			m.updatePostView()
			m.postView.GotoTop()
		}

	case key.Matches(msg, m.keys.Upvote), key.Matches(msg, m.keys.Downvote):
		if post, ok := m.selectedPost(); ok {
			return m, m.vote(post.ID, key.Matches(msg, m.keys.Upvote))
		}

	case key.Matches(msg, m.keys.Delete):
		if post, ok := m.selectedPost(); ok {
			m.confirmDelete = post.ID
		}
	}

	m.clampSelection()
	return m, nil
}

// handlePostKey processes keyboard input for the open post.
func (m Model) handlePostKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.view = ViewFeed
		m.openID = ""
		return m, nil
	case key.Matches(msg, m.keys.Upvote), key.Matches(msg, m.keys.Downvote):
		return m, m.vote(m.openID, key.Matches(msg, m.keys.Upvote))
	case key.Matches(msg, m.keys.Comment):
		return m.openCompose(composeComment)
	case key.Matches(msg, m.keys.Edit):
		return m.openCompose(composeEdit)
	case key.Matches(msg, m.keys.Delete):
		m.confirmDelete = m.openID
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.postView.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.postView.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.postView, cmd = m.postView.Update(msg)
	return m, cmd
}

// handleSearchKey edits the search query. Searches are debounced.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.clearSearch()
		return m, nil
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.setQuery(m.search.Value())
	return m, cmd
}

// setQuery applies a new search text and schedules the store search.
func (m *Model) setQuery(raw string) {
	query := strings.TrimSpace(raw)
	if query == m.query {
		return
	}
	m.query = query
	m.results = nil
	m.selected = 0
	if query == "" {
		m.bridge.debouncer.Cancel()
		return
	}
	m.bridge.schedule(query)
}

func (m *Model) clearSearch() {
	m.searching = false
	m.search.Blur()
	m.search.SetValue("")
	m.setQuery("")
}

// handleComposeKey drives the compose form.
func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.view = m.form.returnTo
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		if m.form.submitting || (m.form.mode == composePost && m.snapshot.Creating) {
			return m, nil
		}
		m.form.submitting = true
		m.form.err = nil
		m.form.invalid = ""
		return m, submitCmd(m.ctx, m.manager, m.form.request())
	case key.Matches(msg, m.keys.NextField):
		m.form.cycleFocus(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevField):
		m.form.cycleFocus(-1)
		return m, nil
	case key.Matches(msg, m.keys.Category):
		if m.form.mode == composePost {
			m.form.category = m.form.category.Next()
		}
		return m, nil
	case key.Matches(msg, m.keys.Image):
		if m.form.has(fieldImage) {
			m.form.setFocus(fieldImage)
		}
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.form, cmd = m.form.update(msg)
	return m, cmd
}

func (m Model) openCompose(mode composeMode) (tea.Model, tea.Cmd) {
	returnTo := m.view
	var post board.Post
	if mode != composePost {
		open, ok := m.openPost()
		if !ok {
			return m, nil
		}
		post = open
	}
	m.form = newComposeForm(mode, post, returnTo, m.width, m.height)
	m.view = ViewCompose
	return m, textinput.Blink
}

// handleSubmitDone leaves the form on success and keeps it open with the
// error otherwise.
func (m Model) handleSubmitDone(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	m.refresh()
	if m.view != ViewCompose || msg.mode != m.form.mode {
		return m, nil
	}
	if msg.err != nil {
		m.form.fail(msg.err)
		return m, nil
	}

	m.form.submitting = false
	if msg.mode == composePost {
		m.clearSearch()
		m.openID = msg.postID
		m.view = ViewPost
	} else {
		m.view = m.form.returnTo
	}
	m.refresh()
	if msg.mode == composeComment {
		m.postView.GotoBottom()
	} else {
		m.postView.GotoTop()
	}
	return m, nil
}

// vote starts a vote unless one is already in flight for the post.
func (m Model) vote(id string, up bool) tea.Cmd {
	if id == "" || m.snapshot.Busy[id] {
		return nil
	}
	delta := -1
	if up {
		delta = 1
	}
	return voteCmd(m.ctx, m.manager, id, delta)
}
