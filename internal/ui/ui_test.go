package ui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/feed"
	"github.com/five82/rebbit/internal/localstore"
	"github.com/five82/rebbit/internal/notify"
	"github.com/five82/rebbit/internal/prefs"
	"github.com/five82/rebbit/internal/state"
)

func newTestModel(t *testing.T) (Model, *state.Manager) {
	t.Helper()
	store := localstore.New(&localstore.MemorySlots{}, localstore.WithAssetDir(t.TempDir()))
	center := notify.NewCenter(8, nil)
	mgr := state.Open(context.Background(), store, state.WithNotifier(center))
	m := New(Options{
		Manager:     mgr,
		Toasts:      center,
		SearchDelay: time.Hour,
		PrefsPath:   filepath.Join(t.TempDir(), "prefs.toml"),
	})
	t.Cleanup(m.bridge.close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), mgr
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "ctrl+t":
			msg = tea.KeyMsg{Type: tea.KeyCtrlT}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func addPosts(t *testing.T, mgr *state.Manager, titles ...string) {
	t.Helper()
	for _, title := range titles {
		if _, err := mgr.AddPost(context.Background(), state.PostDraft{Title: title, Content: "body of " + title}); err != nil {
			t.Fatalf("AddPost(%q): %v", title, err)
		}
	}
}

func TestSortKeyCyclesAndPersists(t *testing.T) {
	m, _ := newTestModel(t)
	if m.sortKey != feed.SortNew {
		t.Fatalf("sortKey = %q, want %q", m.sortKey, feed.SortNew)
	}

	m = press(t, m, "s")
	if m.sortKey != feed.SortTop {
		t.Fatalf("sortKey = %q, want %q", m.sortKey, feed.SortTop)
	}
	saved, err := prefs.Load(m.prefsPath)
	if err != nil {
		t.Fatalf("prefs.Load: %v", err)
	}
	if saved.Sort != feed.SortTop || saved.Theme != m.theme.Name {
		t.Fatalf("saved prefs = %+v, want top/%s", saved, m.theme.Name)
	}
}

func TestSelectionClampsToFeed(t *testing.T) {
	m, mgr := newTestModel(t)
	addPosts(t, mgr, "one", "two")
	m.refresh()

	m = press(t, m, "j", "j", "j", "j")
	if m.selected != 2 {
		t.Fatalf("selected = %d, want 2", m.selected)
	}
	m = press(t, m, "g")
	if m.selected != 0 {
		t.Fatalf("selected = %d, want 0", m.selected)
	}
}

func TestSearchFiltersLocallyUntilResultsArrive(t *testing.T) {
	m, mgr := newTestModel(t)
	addPosts(t, mgr, "Gophers unite", "Rust again")
	m.refresh()

	m = press(t, m, "/", "g", "o", "p")
	if !m.searching || m.query != "gop" {
		t.Fatalf("searching=%v query=%q, want true/gop", m.searching, m.query)
	}
	posts := m.visiblePosts()
	if len(posts) != 1 || posts[0].Title != "Gophers unite" {
		t.Fatalf("visible = %v, want the gopher post", titles(posts))
	}

	// A result for an older query is ignored.
	next, _ := m.Update(searchResultMsg{query: "go", posts: mgr.Posts()})
	m = next.(Model)
	if m.results != nil {
		t.Fatalf("results applied for a stale query")
	}

	rust, _ := mgr.SearchPosts(context.Background(), "rust")
	next, _ = m.Update(searchResultMsg{query: "gop", posts: rust})
	m = next.(Model)
	posts = m.visiblePosts()
	if len(posts) != 1 || posts[0].Title != "Rust again" {
		t.Fatalf("visible = %v, want the store's answer", titles(posts))
	}

	m = press(t, m, "esc")
	if m.searching || m.query != "" || m.results != nil {
		t.Fatalf("search not cleared: searching=%v query=%q", m.searching, m.query)
	}
	if got := len(m.visiblePosts()); got != 3 {
		t.Fatalf("len(visible) = %d, want 3", got)
	}
}

func TestOpenPostAndBack(t *testing.T) {
	m, mgr := newTestModel(t)
	addPosts(t, mgr, "Hello")
	m.refresh()

	m = press(t, m, "enter")
	if m.view != ViewPost {
		t.Fatalf("view = %v, want ViewPost", m.view)
	}
	post, ok := m.openPost()
	if !ok || post.Title != "Hello" {
		t.Fatalf("open post = %+v, %v", post, ok)
	}
	if !strings.Contains(m.View(), "Comments (0)") {
		t.Fatalf("post view missing comments heading")
	}
	m = press(t, m, "esc")
	if m.view != ViewFeed {
		t.Fatalf("view = %v, want ViewFeed", m.view)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	m, mgr := newTestModel(t)

	m = press(t, m, "d")
	if m.confirmDelete != "welcome" {
		t.Fatalf("confirmDelete = %q, want welcome", m.confirmDelete)
	}
	m = press(t, m, "x")
	if m.confirmDelete != "" {
		t.Fatalf("confirmDelete = %q after cancel", m.confirmDelete)
	}
	if _, ok := mgr.GetPost("welcome"); !ok {
		t.Fatalf("post deleted without confirmation")
	}

	m = press(t, m, "d")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if cmd == nil {
		t.Fatalf("confirm returned no command")
	}
	next, _ = next.Update(cmd())
	m = next.(Model)
	if _, ok := mgr.GetPost("welcome"); ok {
		t.Fatalf("post still present after confirmed delete")
	}
	if got := len(m.visiblePosts()); got != 0 {
		t.Fatalf("len(visible) = %d, want 0", got)
	}
}

func TestVoteCommand(t *testing.T) {
	m, mgr := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("+")})
	if cmd == nil {
		t.Fatalf("upvote returned no command")
	}
	if msg, ok := cmd().(actionDoneMsg); !ok || msg.err != nil {
		t.Fatalf("vote result = %+v", msg)
	}
	post, _ := mgr.GetPost("welcome")
	if post.Upvotes != 1 {
		t.Fatalf("upvotes = %d, want 1", post.Upvotes)
	}
}

func TestComposeSubmitAndValidation(t *testing.T) {
	m, mgr := newTestModel(t)

	m = press(t, m, "n")
	if m.view != ViewCompose || m.form.mode != composePost {
		t.Fatalf("view = %v mode = %v, want compose post", m.view, m.form.mode)
	}
	m = press(t, m, "ctrl+t")
	if m.form.category != board.CategoryMeme {
		t.Fatalf("category = %q, want Meme", m.form.category)
	}

	// Blank title is rejected and highlighted.
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = next.(Model)
	if !m.form.submitting {
		t.Fatalf("submitting = false after ctrl+s")
	}
	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.view != ViewCompose || m.form.invalid != "title" || m.form.focus != fieldTitle {
		t.Fatalf("view=%v invalid=%q focus=%v, want compose/title/title", m.view, m.form.invalid, m.form.focus)
	}

	m = press(t, m, "Hi")
	m = press(t, m, "tab", "there")
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	next, _ = next.Update(cmd())
	m = next.(Model)
	if m.view != ViewPost {
		t.Fatalf("view = %v, want ViewPost after publishing", m.view)
	}
	post, ok := mgr.GetPost(m.openID)
	if !ok || post.Title != "Hi" || post.Content != "there" || post.Category != board.CategoryMeme {
		t.Fatalf("published post = %+v", post)
	}
}

func TestCommentFromPostView(t *testing.T) {
	m, mgr := newTestModel(t)

	m = press(t, m, "enter", "c")
	if m.view != ViewCompose || m.form.mode != composeComment {
		t.Fatalf("view = %v mode = %v, want compose comment", m.view, m.form.mode)
	}
	m = press(t, m, "Nice!")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	next, _ = next.Update(cmd())
	m = next.(Model)

	if m.view != ViewPost {
		t.Fatalf("view = %v, want ViewPost", m.view)
	}
	post, _ := mgr.GetPost("welcome")
	if len(post.Comments) != 1 || post.Comments[0].Text != "Nice!" {
		t.Fatalf("comments = %+v", post.Comments)
	}
}

func TestOpenPostClosesWhenDeleted(t *testing.T) {
	m, mgr := newTestModel(t)
	m = press(t, m, "enter")
	if err := mgr.DeletePost(context.Background(), "welcome"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(Model)
	if m.view != ViewFeed {
		t.Fatalf("view = %v, want ViewFeed after the open post was deleted", m.view)
	}
}

func TestTruncateMiddleKeepsExtension(t *testing.T) {
	got := truncateMiddle("/home/user/pictures/very-long-file-name.png", 20)
	if !strings.HasSuffix(got, ".png") || len([]rune(got)) != 20 {
		t.Fatalf("truncateMiddle = %q, want 20 runes ending in .png", got)
	}
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncate = %q, want abc...", got)
	}
}

func TestHumanizeAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		then time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-48 * time.Hour), "2d ago"},
		{time.Time{}, ""},
	}
	for _, tt := range tests {
		if got := humanizeAge(now, tt.then); got != tt.want {
			t.Fatalf("humanizeAge(%v) = %q, want %q", tt.then, got, tt.want)
		}
	}
}

func TestThemeLookups(t *testing.T) {
	if got := NextTheme("Slate"); got != "Nightfox" {
		t.Fatalf("NextTheme(Slate) = %q, want Nightfox", got)
	}
	if got := GetTheme("missing").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(missing) = %q, want Nightfox", got)
	}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, c := range board.Categories() {
			if th.CategoryColors[c] == "" {
				t.Fatalf("theme %s has no color for %s", name, c)
			}
		}
	}
}

func titles(posts []board.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}
