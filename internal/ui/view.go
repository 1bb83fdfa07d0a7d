package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/notify"
)

const (
	chromeLines  = 4 // header, command bar, toast, hints
	linesPerPost = 3
	toastTTL     = 6 * time.Second
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	body := m.renderContent()
	bodyHeight := max(m.height-chromeLines, 1)
	b.WriteString(lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body))
	b.WriteString("\n")

	b.WriteString(m.renderToast())
	b.WriteString("\n")
	b.WriteString(m.renderHints())
	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.view {
	case ViewPost:
		return m.postView.View()
	case ViewCompose:
		return m.renderCompose()
	default:
		return m.renderFeed()
	}
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	parts := []string{styles.Logo.Render("rebbit")}

	switch {
	case !m.snapshot.Ready:
		parts = append(parts, styles.InfoText.Render("loading"))
	default:
		parts = append(parts, styles.MutedText.Render(pluralize(len(m.snapshot.Posts), "post")))
	}
	parts = append(parts, styles.MutedText.Render("sort: "+m.sortKey.Label()))
	if m.snapshot.Creating {
		parts = append(parts, styles.InfoText.Render("publishing..."))
	}
	if m.toasts != nil {
		if pending := m.toasts.Pending(); pending > 0 {
			parts = append(parts, styles.InfoText.Render(fmt.Sprintf("%d pending", pending)))
		}
	}
	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	if m.view == ViewFeed && (m.searching || m.query != "") {
		return " " + m.search.View()
	}
	switch m.view {
	case ViewPost:
		if post, ok := m.openPost(); ok {
			return " " + styles.AccentText.Render(truncate(post.Title, max(m.width-2, 10)))
		}
	case ViewCompose:
		return " " + styles.AccentText.Render(m.form.heading())
	}
	return ""
}

// feedRows is how many posts fit on screen.
func (m Model) feedRows() int {
	return (m.height - chromeLines) / linesPerPost
}

func (m Model) renderFeed() string {
	styles := m.theme.Styles()
	if !m.snapshot.Ready {
		return styles.MutedText.Render(" Loading posts...")
	}
	posts := m.visiblePosts()
	if len(posts) == 0 {
		if m.query != "" {
			return styles.MutedText.Render(fmt.Sprintf(" No posts match %q.", m.query))
		}
		return styles.MutedText.Render(" No posts yet. Press n to write the first one.")
	}

	rows := max(m.feedRows(), 1)
	start := 0
	if m.selected >= rows {
		start = m.selected - rows + 1
	}
	end := min(len(posts), start+rows)

	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(m.renderFeedRow(posts[i], i == m.selected))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m Model) renderFeedRow(p board.Post, selected bool) string {
	styles := m.theme.Styles()
	width := max(m.width-2, 30)

	marker := "  "
	title := styles.Text
	if selected {
		marker = styles.AccentText.Render("▌ ")
		title = styles.Selected.Bold(true)
	}

	score := padRight(fmt.Sprintf("%d", p.Upvotes), 5)
	if m.snapshot.Busy[p.ID] {
		score = padRight("...", 5)
	}

	chip := ""
	if p.Category != "" {
		chip = " " + styles.CategoryStyle(p.Category).Render(string(p.Category))
	}
	titleWidth := width - 7 - lipgloss.Width(chip)
	line := marker + styles.WarningText.Render(score) + title.Render(truncate(p.Title, titleWidth)) + chip

	meta := []string{p.Author, humanizeAge(m.now(), p.CreatedAt), pluralize(len(p.Comments), "comment")}
	if p.ImageURL != "" {
		meta = append(meta, "image")
	}
	return line + "\n       " + styles.MutedText.Render(strings.Join(meta, " · "))
}

// updatePostView renders the open post into the viewport.
func (m *Model) updatePostView() {
	post, ok := m.openPost()
	if !ok {
		m.postView.SetContent("")
		return
	}
	m.postView.SetContent(m.renderPost(post))
}

func (m Model) renderPost(p board.Post) string {
	styles := m.theme.Styles()
	width := max(m.postView.Width, 20)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(wrap.Render(p.Title)))
	b.WriteString("\n")

	meta := fmt.Sprintf("%s · %s · %d points", p.Author, humanizeAge(m.now(), p.CreatedAt), p.Upvotes)
	if m.snapshot.Busy[p.ID] {
		meta += " · saving..."
	}
	b.WriteString(styles.MutedText.Render(meta))
	if p.Category != "" {
		b.WriteString(" ")
		b.WriteString(styles.CategoryStyle(p.Category).Render(string(p.Category)))
	}
	b.WriteString("\n")
	if p.ImageURL != "" {
		b.WriteString(styles.InfoText.Render("image: " + truncateMiddle(p.ImageURL, width-7)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(wrap.Render(p.Content))
	b.WriteString("\n\n")

	b.WriteString(styles.AccentText.Bold(true).Render(fmt.Sprintf("Comments (%d)", len(p.Comments))))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", min(width, 40))))
	b.WriteString("\n")
	if len(p.Comments) == 0 {
		b.WriteString(styles.MutedText.Render("No comments yet. Press c to add one."))
		b.WriteString("\n")
	}
	for _, c := range p.Comments {
		b.WriteString(styles.MutedText.Render(fmt.Sprintf("%s · %s", c.Author, humanizeAge(m.now(), c.CreatedAt))))
		b.WriteString("\n")
		if c.Text != "" {
			b.WriteString(wrap.Render(c.Text))
			b.WriteString("\n")
		}
		if c.ImageURL != "" {
			b.WriteString(styles.InfoText.Render("image: " + truncateMiddle(c.ImageURL, width-7)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderCompose() string {
	styles := m.theme.Styles()
	f := m.form

	label := func(field formField, text string) string {
		switch {
		case f.fieldInvalid(field):
			return styles.DangerText.Render(text + " (required)")
		case f.focus == field:
			return styles.AccentText.Bold(true).Render(text)
		default:
			return styles.MutedText.Render(text)
		}
	}

	box := func(field formField, body string) string {
		if f.focus == field {
			return styles.FocusBorder.Render(body)
		}
		return styles.Border.Render(body)
	}

	var b strings.Builder
	for _, field := range f.fields() {
		switch field {
		case fieldTitle:
			b.WriteString(label(fieldTitle, "Title"))
			b.WriteString("\n")
			b.WriteString(box(fieldTitle, f.title.View()))
		case fieldContent:
			name := "Content"
			if f.mode == composeComment {
				name = "Comment"
			}
			b.WriteString(label(fieldContent, name))
			b.WriteString("\n")
			b.WriteString(box(fieldContent, f.content.View()))
		case fieldImage:
			b.WriteString(label(fieldImage, "Image"))
			b.WriteString("\n")
			b.WriteString(box(fieldImage, f.image.View()))
		}
		b.WriteString("\n")
	}

	if f.mode == composePost {
		b.WriteString(styles.MutedText.Render("Category: "))
		b.WriteString(styles.CategoryStyle(f.category).Render(string(f.category)))
		b.WriteString("\n")
	}
	switch {
	case f.submitting:
		b.WriteString(styles.InfoText.Render("Submitting..."))
	case f.err != nil:
		b.WriteString(styles.DangerText.Render(truncate(f.err.Error(), max(m.width-2, 20))))
	}
	return b.String()
}

// renderToast shows the delete prompt or the latest notification.
func (m Model) renderToast() string {
	styles := m.theme.Styles()
	if m.confirmDelete != "" {
		title := m.confirmDelete
		for _, p := range m.snapshot.Posts {
			if p.ID == m.confirmDelete {
				title = p.Title
				break
			}
		}
		return " " + styles.WarningText.Render(fmt.Sprintf("Delete %q? Press y to confirm, any other key to cancel.", truncate(title, 40)))
	}
	if !m.hasToast {
		return ""
	}
	if m.toast.Level != notify.LevelLoading && m.now().Sub(m.toast.Updated) > toastTTL {
		return ""
	}
	text := m.toast.Message
	if m.toast.Detail != "" {
		text += ": " + m.toast.Detail
	}
	return " " + styles.ToastStyle(m.toast.Level).Render(truncate(text, max(m.width-2, 20)))
}

func (m Model) renderHints() string {
	var bindings []key.Binding
	switch {
	case m.view == ViewCompose:
		bindings = []key.Binding{m.keys.Submit, m.keys.NextField}
		if m.form.mode == composePost {
			bindings = append(bindings, m.keys.Category)
		}
		if m.form.has(fieldImage) {
			bindings = append(bindings, m.keys.Image)
		}
		bindings = append(bindings, m.keys.Back)
	case m.searching:
		bindings = []key.Binding{
			key.NewBinding(key.WithHelp("enter", "Keep results")),
			key.NewBinding(key.WithHelp("esc", "Clear search")),
		}
	case m.view == ViewPost:
		bindings = []key.Binding{m.keys.Upvote, m.keys.Downvote, m.keys.Comment, m.keys.Edit, m.keys.Delete, m.keys.Back}
	default:
		bindings = []key.Binding{m.keys.Open, m.keys.Compose, m.keys.Search, m.keys.Sort, m.keys.Upvote, m.keys.Downvote, m.keys.Delete}
	}
	bindings = append(bindings, m.keys.ShortHelp()...)

	styles := m.theme.Styles()
	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, styles.WarningText.Render(help.Key)+" "+styles.MutedText.Render(help.Desc))
	}
	return styles.Footer.Width(m.width).Render(strings.Join(parts, "  "))
}
