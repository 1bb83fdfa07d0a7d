package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/state"
)

// Messages

type tickMsg time.Time

// changedMsg signals that the manager published a new snapshot.
type changedMsg struct{}

type searchDueMsg struct {
	query string
}

type searchResultMsg struct {
	query string
	posts []board.Post
	err   error
}

type actionDoneMsg struct {
	err error
}

type submitDoneMsg struct {
	mode   composeMode
	postID string
	err    error
}

// submitRequest is a snapshot of the compose form taken when it is submitted.
type submitRequest struct {
	mode     composeMode
	postID   string
	title    string
	content  string
	category board.Category
	image    string
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func searchCmd(ctx context.Context, mgr *state.Manager, query string) tea.Cmd {
	return func() tea.Msg {
		posts, err := mgr.SearchPosts(ctx, query)
		return searchResultMsg{query: query, posts: posts, err: err}
	}
}

func voteCmd(ctx context.Context, mgr *state.Manager, id string, delta int) tea.Cmd {
	return func() tea.Msg {
		_, err := mgr.VotePost(ctx, id, delta)
		return actionDoneMsg{err: err}
	}
}

func deleteCmd(ctx context.Context, mgr *state.Manager, id string) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: mgr.DeletePost(ctx, id)}
	}
}

// submitCmd uploads the attached image, if any, and then runs the operation
// for the form's mode. A failed upload blocks the submission.
func submitCmd(ctx context.Context, mgr *state.Manager, req submitRequest) tea.Cmd {
	return func() tea.Msg {
		done := submitDoneMsg{mode: req.mode, postID: req.postID}

		ref, err := resolveImage(ctx, mgr, req.image)
		if err != nil {
			done.err = err
			return done
		}

		switch req.mode {
		case composeEdit:
			_, done.err = mgr.UpdatePost(ctx, req.postID, req.title, req.content)
		case composeComment:
			_, done.err = mgr.AddComment(ctx, req.postID, req.content, ref)
		default:
			var post board.Post
			post, done.err = mgr.AddPost(ctx, state.PostDraft{
				Title:    req.title,
				Content:  req.content,
				Category: req.category,
				ImageURL: ref,
			})
			done.postID = post.ID
		}
		return done
	}
}

// resolveImage turns the image field into a reference. URLs are used as
// given; anything else is read from disk and uploaded.
func resolveImage(ctx context.Context, mgr *state.Manager, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	path, err := expandHome(raw)
	if err != nil {
		return "", board.Invalid("attach image", "image")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &board.Error{Kind: board.ErrValidation, Op: "attach image", Field: "image", Err: fmt.Errorf("read image: %w", err)}
	}
	return mgr.UploadImage(ctx, data)
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
