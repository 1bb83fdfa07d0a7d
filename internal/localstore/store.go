package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/rebbit/internal/board"
)

// PostsKey is the slot holding the serialized post collection.
const PostsKey = "rebbit-posts"

// Ensure Store implements board.Store at compile time.
var _ board.Store = (*Store)(nil)

// Store keeps the post collection in memory and writes it back to a slot
// after every mutation.
type Store struct {
	mu       sync.Mutex
	slots    Slots
	assetDir string
	now      func() time.Time
	logger   *slog.Logger

	posts  []board.Post
	loaded bool
}

// Option customises a Store.
type Option func(*Store)

// WithAssetDir sets the directory uploaded assets are written to.
func WithAssetDir(dir string) Option {
	return func(s *Store) { s.assetDir = dir }
}

// WithClock overrides the time source used for seed data.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for degraded loads.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New builds a Store over slots.
func New(slots Slots, opts ...Option) *Store {
	s := &Store{slots: slots, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll reads the collection from the slot. An empty slot yields the seed
// post; an unparsable one yields the seed post and a load error.
func (s *Store) LoadAll(ctx context.Context) ([]board.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.loadLocked()
	return board.ClonePosts(s.posts), err
}

func (s *Store) loadLocked() error {
	s.loaded = true
	raw, ok, err := s.slots.Get(PostsKey)
	if err != nil {
		s.posts = []board.Post{s.seed()}
		return board.LoadFailed("load", err)
	}
	if !ok {
		s.posts = []board.Post{s.seed()}
		return nil
	}
	var posts []board.Post
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		s.logger.Warn("post slot is corrupt, using seed", slog.String("error", err.Error()))
		s.posts = []board.Post{s.seed()}
		return board.LoadFailed("load", fmt.Errorf("decode %s: %w", PostsKey, err))
	}
	for i := range posts {
		if posts[i].Comments == nil {
			posts[i].Comments = []board.Comment{}
		}
	}
	s.posts = posts
	return nil
}

func (s *Store) ensureLoadedLocked() {
	if !s.loaded {
		_ = s.loadLocked()
	}
}

func (s *Store) seed() board.Post {
	return board.Post{
		ID:        "welcome",
		Title:     "Welcome to Rebbit",
		Content:   "Everything here is **anonymous**. Be kind, vote honestly, and have fun.",
		Author:    "Anon #1000",
		Category:  board.CategoryDiscussion,
		CreatedAt: s.now().UTC(),
		Comments:  []board.Comment{},
	}
}

// persistLocked writes the collection back; on failure the previous
// collection is restored.
func (s *Store) persistLocked(op string, prev []board.Post) error {
	data, err := json.Marshal(s.posts)
	if err == nil {
		err = s.slots.Set(PostsKey, string(data))
	}
	if err != nil {
		s.posts = prev
		return board.WriteFailed(op, err)
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i, p := range s.posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Create implements board.Store. New posts go to the head of the collection.
func (s *Store) Create(ctx context.Context, post board.Post) (board.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	if post.ID == "" {
		return board.Post{}, board.WriteFailed("create", errors.New("post id is empty"))
	}
	if s.indexLocked(post.ID) >= 0 {
		return board.Post{}, board.WriteFailed("create", fmt.Errorf("duplicate post id %q", post.ID))
	}
	stored := post.Clone()
	if stored.Comments == nil {
		stored.Comments = []board.Comment{}
	}

	prev := s.posts
	s.posts = append([]board.Post{stored}, prev...)
	if err := s.persistLocked("create", prev); err != nil {
		return board.Post{}, err
	}
	return stored.Clone(), nil
}

// Update implements board.Store.
func (s *Store) Update(ctx context.Context, id string, patch board.PostPatch) (board.Post, error) {
	return s.mutate("update", id, func(p *board.Post) {
		p.Title = patch.Title
		p.Content = patch.Content
	})
}

// Vote implements board.Store.
func (s *Store) Vote(ctx context.Context, postID string, delta int) (board.Post, error) {
	return s.mutate("vote", postID, func(p *board.Post) {
		p.Upvotes += delta
	})
}

func (s *Store) mutate(op, id string, apply func(*board.Post)) (board.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	idx := s.indexLocked(id)
	if idx < 0 {
		return board.Post{}, board.NotFound(op, fmt.Errorf("post %q", id))
	}
	prev := board.ClonePosts(s.posts)
	apply(&s.posts[idx])
	if err := s.persistLocked(op, prev); err != nil {
		return board.Post{}, err
	}
	return s.posts[idx].Clone(), nil
}

// Delete implements board.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	idx := s.indexLocked(id)
	if idx < 0 {
		return nil
	}
	prev := s.posts
	next := make([]board.Post, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	s.posts = next
	return s.persistLocked("delete", prev)
}

// AppendComment implements board.Store.
func (s *Store) AppendComment(ctx context.Context, postID string, comment board.Comment) (board.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	idx := s.indexLocked(postID)
	if idx < 0 {
		return board.Comment{}, board.NotFound("comment", fmt.Errorf("post %q", postID))
	}
	comment.PostID = postID
	prev := board.ClonePosts(s.posts)
	s.posts[idx].Comments = append(s.posts[idx].Comments, comment)
	if err := s.persistLocked("comment", prev); err != nil {
		return board.Comment{}, err
	}
	return comment, nil
}

// Search implements board.Store.
func (s *Store) Search(ctx context.Context, query string) ([]board.Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	var out []board.Post
	for _, p := range s.posts {
		if p.Matches(query) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// UploadAsset writes data under the asset directory and returns its path.
func (s *Store) UploadAsset(ctx context.Context, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(s.assetDir) == "" {
		return "", board.WriteFailed("upload", errors.New("asset directory not configured"))
	}
	if err := os.MkdirAll(s.assetDir, 0o755); err != nil {
		return "", board.WriteFailed("upload", fmt.Errorf("create asset dir: %w", err))
	}
	name := uuid.NewString() + extensionFor(contentType)
	path, err := filepath.Abs(filepath.Join(s.assetDir, name))
	if err != nil {
		return "", board.WriteFailed("upload", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", board.WriteFailed("upload", fmt.Errorf("write asset: %w", err))
	}
	return path, nil
}

func extensionFor(contentType string) string {
	switch strings.TrimSpace(strings.Split(contentType, ";")[0]) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
