package state

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/ident"
	"github.com/five82/rebbit/internal/notify"
)

// MaxUploadBytes is the largest image UploadImage accepts.
const MaxUploadBytes = 5 << 20

// Snapshot is an immutable view of the canonical collection.
type Snapshot struct {
	Posts       []board.Post
	Ready       bool
	Creating    bool
	Busy        map[string]bool // posts with a request in flight
	LastError   error
	LastUpdated time.Time
}

// PostDraft carries the user-supplied fields of a new post.
type PostDraft struct {
	Title    string
	Content  string
	Category board.Category
	ImageURL string
}

type entry struct {
	post     board.Post
	issued   uint64 // last ticket handed to a request
	applied  uint64 // ticket of the response currently shown
	inflight int
}

type subscriber struct {
	mu    sync.Mutex
	alive bool
	fn    func(Snapshot)
}

// Manager owns the canonical post collection and keeps it in step with a
// board.Store. All methods are safe for concurrent use.
type Manager struct {
	store    board.Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	newName  func() string

	initOnce sync.Once

	mu       sync.RWMutex
	order    []string
	posts    map[string]*entry
	deleted  map[string]bool // ids removed locally; never reinstated
	ready    bool
	creating int
	lastErr  error
	updated  time.Time

	pubMu   sync.Mutex
	subMu   sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64
}

// Option customises a Manager.
type Option func(*Manager)

// WithNotifier sets the notification channel. The default discards.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source for new posts and comments.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIdentity overrides id and author generation.
func WithIdentity(newID, newName func() string) Option {
	return func(m *Manager) {
		m.newID = newID
		m.newName = newName
	}
}

// New builds a Manager without loading. Most callers want Open.
func New(store board.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		notifier: notify.Discard,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    ident.NewID,
		newName:  ident.NewAnonymousName,
		posts:    make(map[string]*entry),
		deleted:  make(map[string]bool),
		subs:     make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "state"))
	return m
}

// Open builds a Manager and loads the collection.
func Open(ctx context.Context, store board.Store, opts ...Option) *Manager {
	m := New(store, opts...)
	m.Initialize(ctx)
	return m
}

// Initialize loads the collection from the store. Only the first call does
// anything. A load failure leaves whatever fallback the store returned and
// still marks the manager ready.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		posts, err := m.store.LoadAll(ctx)
		if err != nil {
			m.logger.Debug("initial load failed", slog.String("error", err.Error()))
			m.notifier.Fail(0, "Could not load posts", err)
		}

		m.mu.Lock()
		m.order = m.order[:0]
		for _, p := range posts {
			if m.deleted[p.ID] {
				continue
			}
			if _, dup := m.posts[p.ID]; dup || p.ID == "" {
				m.logger.Warn("skipping post with duplicate or empty id", slog.String("id", p.ID))
				continue
			}
			m.posts[p.ID] = &entry{post: normalise(p)}
			m.order = append(m.order, p.ID)
		}
		m.ready = true
		m.lastErr = err
		m.updated = m.now()
		m.mu.Unlock()

		m.logger.Info("posts loaded", slog.Int("count", len(m.order)))
		m.publish()
	})
}

// Ready reports whether the initial load has finished.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// AddPost validates draft, persists it, and inserts the stored post at the head.
func (m *Manager) AddPost(ctx context.Context, draft PostDraft) (board.Post, error) {
	const op = "add post"
	title := strings.TrimSpace(draft.Title)
	content := strings.TrimSpace(draft.Content)
	switch {
	case title == "":
		return board.Post{}, board.Invalid(op, "title")
	case content == "":
		return board.Post{}, board.Invalid(op, "content")
	case !draft.Category.Valid():
		return board.Post{}, board.Invalid(op, "category")
	}

	post := board.Post{
		ID:        m.newID(),
		Title:     title,
		Content:   content,
		Author:    m.newName(),
		Category:  draft.Category,
		ImageURL:  strings.TrimSpace(draft.ImageURL),
		CreatedAt: m.now().UTC(),
		Comments:  []board.Comment{},
	}

	m.setCreating(1)
	toast := m.notifier.Begin("Publishing...")
	saved, err := m.store.Create(ctx, post)
	m.setCreating(-1)
	if err != nil {
		m.failed(toast, "Could not publish post", err)
		return board.Post{}, err
	}
	if saved.ID == "" {
		saved.ID = post.ID
	}
	saved = normalise(saved)

	m.mu.Lock()
	delete(m.deleted, saved.ID)
	if e, ok := m.posts[saved.ID]; ok {
		e.post = saved
	} else {
		m.posts[saved.ID] = &entry{post: saved}
		m.order = append([]string{saved.ID}, m.order...)
	}
	m.touchLocked(nil)
	m.mu.Unlock()

	m.notifier.Succeed(toast, "Post published")
	m.publish()
	return saved.Clone(), nil
}

// UpdatePost replaces a post's title and content.
func (m *Manager) UpdatePost(ctx context.Context, id, title, content string) (board.Post, error) {
	const op = "update post"
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return board.Post{}, board.Invalid(op, "title")
	}
	if content == "" {
		return board.Post{}, board.Invalid(op, "content")
	}

	ticket, ok := m.begin(id)
	if !ok {
		return board.Post{}, board.NotFound(op, nil)
	}
	m.publish()
	toast := m.notifier.Begin("Saving...")
	saved, err := m.store.Update(ctx, id, board.PostPatch{Title: title, Content: content})
	if err != nil {
		m.finish(id)
		m.failed(toast, "Could not save post", err)
		return board.Post{}, err
	}
	current := m.apply(id, saved, ticket)
	m.notifier.Succeed(toast, "Post updated")
	m.publish()
	return current, nil
}

// DeletePost deletes a post. The post is removed locally even when the store
// reports an error; the error is still returned.
func (m *Manager) DeletePost(ctx context.Context, id string) error {
	toast := m.notifier.Begin("Deleting...")
	err := m.store.Delete(ctx, id)

	m.mu.Lock()
	m.deleted[id] = true
	if _, ok := m.posts[id]; ok {
		delete(m.posts, id)
		for i, existing := range m.order {
			if existing == id {
				m.order = append(m.order[:i:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.touchLocked(err)
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("delete failed", slog.String("id", id), slog.String("error", err.Error()))
		m.notifier.Fail(toast, "Could not delete post", err)
	} else {
		m.notifier.Succeed(toast, "Post deleted")
	}
	m.publish()
	return err
}

// AddComment appends a comment to an existing post. Either text or an image
// is required.
func (m *Manager) AddComment(ctx context.Context, postID, text, imageURL string) (board.Comment, error) {
	const op = "add comment"
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)
	if text == "" && imageURL == "" {
		return board.Comment{}, board.Invalid(op, "text")
	}
	if _, ok := m.GetPost(postID); !ok {
		return board.Comment{}, board.NotFound(op, nil)
	}

	comment := board.Comment{
		ID:        m.newID(),
		PostID:    postID,
		Text:      text,
		Author:    m.newName(),
		CreatedAt: m.now().UTC(),
		ImageURL:  imageURL,
	}
	toast := m.notifier.Begin("Commenting...")
	saved, err := m.store.AppendComment(ctx, postID, comment)
	if err != nil {
		if errors.Is(err, board.ErrNotFound) {
			m.logger.Debug("post vanished before comment was saved", slog.String("post", postID))
			m.notifier.Warn(toast, "The post no longer exists", err)
			m.mu.Lock()
			m.touchLocked(err)
			m.mu.Unlock()
			return board.Comment{}, err
		}
		m.failed(toast, "Could not add comment", err)
		return board.Comment{}, err
	}
	if saved.ID == "" {
		saved.ID = comment.ID
	}
	if saved.PostID == "" {
		saved.PostID = postID
	}

	m.mu.Lock()
	if e, ok := m.posts[postID]; ok && !hasComment(e.post.Comments, saved.ID) {
		e.post.Comments = append(e.post.Comments, saved)
	}
	m.touchLocked(nil)
	m.mu.Unlock()

	m.notifier.Succeed(toast, "Comment added")
	m.publish()
	return saved, nil
}

// VotePost applies a +1 or -1 vote and shows the stored score.
func (m *Manager) VotePost(ctx context.Context, id string, delta int) (board.Post, error) {
	const op = "vote"
	if delta != 1 && delta != -1 {
		return board.Post{}, board.Invalid(op, "delta")
	}
	ticket, ok := m.begin(id)
	if !ok {
		return board.Post{}, board.NotFound(op, nil)
	}
	m.publish()
	saved, err := m.store.Vote(ctx, id, delta)
	if err != nil {
		m.finish(id)
		m.failed(0, "Could not register vote", err)
		return board.Post{}, err
	}
	current := m.apply(id, saved, ticket)
	m.publish()
	return current, nil
}

// UploadImage stores an image and returns its reference.
func (m *Manager) UploadImage(ctx context.Context, data []byte) (string, error) {
	const op = "upload image"
	if len(data) == 0 || len(data) > MaxUploadBytes {
		return "", board.Invalid(op, "image")
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", board.Invalid(op, "image")
	}

	toast := m.notifier.Begin("Uploading image...")
	ref, err := m.store.UploadAsset(ctx, data, contentType)
	if err != nil {
		m.failed(toast, "Could not upload image", err)
		return "", err
	}
	m.notifier.Succeed(toast, "Image uploaded")
	return ref, nil
}

// SearchPosts asks the store for posts matching query. A blank query returns
// nothing without contacting the store. Posts deleted through the manager are
// left out even if the store still holds them.
func (m *Manager) SearchPosts(ctx context.Context, query string) ([]board.Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	posts, err := m.store.Search(ctx, query)
	if err != nil {
		m.failed(0, "Search failed", err)
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]board.Post, 0, len(posts))
	for _, p := range posts {
		if m.deleted[p.ID] {
			continue
		}
		out = append(out, p.Clone())
	}
	return out, nil
}

// GetPost looks a post up in the canonical collection.
func (m *Manager) GetPost(id string) (board.Post, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.posts[id]
	if !ok {
		return board.Post{}, false
	}
	return e.post.Clone(), true
}

// Posts returns the collection in canonical order (most recent insert first).
func (m *Manager) Posts() []board.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.postsLocked()
}

// Busy reports whether a request for the post is in flight.
func (m *Manager) Busy(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.posts[id]
	return ok && e.inflight > 0
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := Snapshot{
		Posts:       m.postsLocked(),
		Ready:       m.ready,
		Creating:    m.creating > 0,
		LastError:   m.lastErr,
		LastUpdated: m.updated,
	}
	for id, e := range m.posts {
		if e.inflight > 0 {
			if snap.Busy == nil {
				snap.Busy = make(map[string]bool)
			}
			snap.Busy[id] = true
		}
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned cancel function stops delivery; once it returns fn is not called
// again. fn must not call cancel or mutating Manager methods synchronously.
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	sub := &subscriber{alive: true, fn: fn}
	m.subMu.Lock()
	m.nextSub++
	key := m.nextSub
	m.subs[key] = sub
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, key)
			m.subMu.Unlock()

			sub.mu.Lock()
			sub.alive = false
			sub.mu.Unlock()
		})
	}
}

func (m *Manager) publish() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.subMu.Lock()
	subs := make([]*subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subMu.Unlock()
	if len(subs) == 0 {
		return
	}

	snap := m.Snapshot()
	for _, s := range subs {
		s.mu.Lock()
		if s.alive {
			s.fn(snap)
		}
		s.mu.Unlock()
	}
}

// begin hands out the next ticket for id and marks it busy.
func (m *Manager) begin(id string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.posts[id]
	if !ok {
		return 0, false
	}
	e.issued++
	e.inflight++
	return e.issued, true
}

func (m *Manager) finish(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.posts[id]; ok && e.inflight > 0 {
		e.inflight--
	}
}

// apply installs an authoritative post unless a newer response has already
// been applied or the post was deleted meanwhile. It returns the post as it
// now stands in the collection.
func (m *Manager) apply(id string, saved board.Post, ticket uint64) board.Post {
	if saved.ID == "" {
		saved.ID = id
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.posts[id]
	if !ok {
		m.logger.Debug("dropping response for deleted post", slog.String("id", saved.ID))
		return normalise(saved)
	}
	if e.inflight > 0 {
		e.inflight--
	}
	if ticket <= e.applied {
		m.logger.Debug("dropping stale response", slog.String("id", saved.ID),
			slog.Uint64("ticket", ticket), slog.Uint64("applied", e.applied))
		return e.post.Clone()
	}
	e.applied = ticket
	e.post = mergeComments(normalise(saved), e.post.Comments)
	m.touchLocked(nil)
	return e.post.Clone()
}

func (m *Manager) setCreating(delta int) {
	m.mu.Lock()
	m.creating += delta
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) failed(toast notify.ID, msg string, err error) {
	// The notifier records the failure; this only adds context for debugging.
	m.logger.Debug(msg, slog.String("error", err.Error()))
	m.notifier.Fail(toast, msg, err)
	m.mu.Lock()
	m.touchLocked(err)
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) touchLocked(err error) {
	m.lastErr = err
	m.updated = m.now()
}

func (m *Manager) postsLocked() []board.Post {
	out := make([]board.Post, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.posts[id].post.Clone())
	}
	return out
}

func normalise(p board.Post) board.Post {
	if p.Comments == nil {
		p.Comments = []board.Comment{}
	}
	return p
}

// mergeComments keeps local comments the response does not know about yet;
// comments are never removed.
func mergeComments(p board.Post, local []board.Comment) board.Post {
	for _, c := range local {
		if !hasComment(p.Comments, c.ID) {
			p.Comments = append(p.Comments, c)
		}
	}
	return p
}

func hasComment(comments []board.Comment, id string) bool {
	for _, c := range comments {
		if c.ID == id {
			return true
		}
	}
	return false
}
