package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rebbit/internal/board"
)

type composeMode int

const (
	composePost composeMode = iota
	composeEdit
	composeComment
)

type formField int

const (
	fieldTitle formField = iota
	fieldContent
	fieldImage
)

// composeForm backs the new post, edit post and comment views.
type composeForm struct {
	mode       composeMode
	postID     string
	postTitle  string // parent post, for the comment heading
	returnTo   View
	title      textinput.Model
	content    textarea.Model
	image      textinput.Model
	category   board.Category
	focus      formField
	submitting bool
	err        error
	invalid    string // field reported by a validation error
}

func newComposeForm(mode composeMode, post board.Post, returnTo View, width, height int) composeForm {
	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 200

	content := textarea.New()
	content.ShowLineNumbers = false
	content.CharLimit = 0
	if mode == composeComment {
		content.Placeholder = "Write a comment"
	} else {
		content.Placeholder = "Write something (markdown)"
	}

	image := textinput.New()
	image.Placeholder = "path or URL (optional)"
	image.CharLimit = 1024

	f := composeForm{
		mode:      mode,
		postID:    post.ID,
		postTitle: post.Title,
		returnTo:  returnTo,
		title:     title,
		content:   content,
		image:     image,
		category:  board.CategoryDiscussion,
	}
	if mode == composeEdit {
		f.title.SetValue(post.Title)
		f.content.SetValue(post.Content)
	}
	f.resize(width, height)
	f.setFocus(f.fields()[0])
	return f
}

// fields lists the inputs the mode shows, in tab order.
func (f composeForm) fields() []formField {
	switch f.mode {
	case composeEdit:
		return []formField{fieldTitle, fieldContent}
	case composeComment:
		return []formField{fieldContent, fieldImage}
	default:
		return []formField{fieldTitle, fieldContent, fieldImage}
	}
}

func (f composeForm) has(field formField) bool {
	for _, candidate := range f.fields() {
		if candidate == field {
			return true
		}
	}
	return false
}

func (f *composeForm) setFocus(field formField) {
	f.focus = field
	f.title.Blur()
	f.content.Blur()
	f.image.Blur()
	switch field {
	case fieldTitle:
		f.title.Focus()
	case fieldContent:
		f.content.Focus()
	case fieldImage:
		f.image.Focus()
	}
}

// cycleFocus moves focus by step through the visible fields.
func (f *composeForm) cycleFocus(step int) {
	fields := f.fields()
	idx := 0
	for i, field := range fields {
		if field == f.focus {
			idx = i
			break
		}
	}
	idx = (idx + step + len(fields)) % len(fields)
	f.setFocus(fields[idx])
}

func (f *composeForm) resize(width, height int) {
	w := max(width-6, 20)
	f.title.Width = w
	f.image.Width = w
	f.content.SetWidth(w)
	f.content.SetHeight(max(height-17, 3))
}

func (f composeForm) update(msg tea.Msg) (composeForm, tea.Cmd) {
	var cmd tea.Cmd
	switch f.focus {
	case fieldTitle:
		f.title, cmd = f.title.Update(msg)
	case fieldContent:
		f.content, cmd = f.content.Update(msg)
	case fieldImage:
		f.image, cmd = f.image.Update(msg)
	}
	return f, cmd
}

func (f composeForm) request() submitRequest {
	return submitRequest{
		mode:     f.mode,
		postID:   f.postID,
		title:    f.title.Value(),
		content:  f.content.Value(),
		category: f.category,
		image:    f.image.Value(),
	}
}

// fail records err and, for validation errors, which field to highlight.
func (f *composeForm) fail(err error) {
	f.submitting = false
	f.err = err
	f.invalid = ""
	var boardErr *board.Error
	if errors.As(err, &boardErr) && errors.Is(err, board.ErrValidation) {
		f.invalid = boardErr.Field
		switch boardErr.Field {
		case "title":
			f.setFocus(fieldTitle)
		case "content", "text":
			f.setFocus(fieldContent)
		case "image":
			if f.has(fieldImage) {
				f.setFocus(fieldImage)
			}
		}
	}
}

func (f composeForm) heading() string {
	switch f.mode {
	case composeEdit:
		return "Edit post"
	case composeComment:
		return "Comment on: " + strings.TrimSpace(f.postTitle)
	default:
		return "New post"
	}
}

// fieldInvalid reports whether the last validation error named field.
func (f composeForm) fieldInvalid(field formField) bool {
	switch f.invalid {
	case "title":
		return field == fieldTitle
	case "content", "text":
		return field == fieldContent
	case "image":
		return field == fieldImage
	}
	return false
}
