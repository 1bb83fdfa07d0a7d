package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/rebbit/internal/board"
	"github.com/five82/rebbit/internal/localstore"
	"github.com/five82/rebbit/internal/notify"
	"github.com/five82/rebbit/internal/remote"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newLocalManager(t *testing.T, opts ...Option) (*Manager, *localstore.MemorySlots) {
	t.Helper()
	slots := &localstore.MemorySlots{}
	store := localstore.New(slots, localstore.WithAssetDir(t.TempDir()))
	return Open(context.Background(), store, opts...), slots
}

// blockingStore wraps a store and holds Update/Vote calls until released.
type blockingStore struct {
	board.Store
	mu    sync.Mutex
	gates []chan board.Post
}

func (b *blockingStore) Update(ctx context.Context, id string, patch board.PostPatch) (board.Post, error) {
	gate := make(chan board.Post)
	b.mu.Lock()
	b.gates = append(b.gates, gate)
	b.mu.Unlock()
	return <-gate, nil
}

func (b *blockingStore) waitFor(t *testing.T, n int) []chan board.Post {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		if len(b.gates) >= n {
			gates := append([]chan board.Post(nil), b.gates...)
			b.mu.Unlock()
			return gates
		}
		b.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d store calls", n)
	return nil
}

type failingStore struct {
	board.Store
	err error
}

func (f failingStore) LoadAll(context.Context) ([]board.Post, error) { return nil, f.err }

func TestOpen_SetsReady(t *testing.T) {
	store := localstore.New(&localstore.MemorySlots{})
	mgr := New(store)
	if mgr.Ready() {
		t.Fatalf("Ready() before Initialize = true, want false")
	}
	mgr.Initialize(context.Background())
	if !mgr.Ready() {
		t.Fatalf("Ready() after Initialize = false, want true")
	}
	if got := len(mgr.Posts()); got != 1 {
		t.Fatalf("len(Posts()) = %d, want 1 (seed)", got)
	}
}

func TestInitialize_RunsOnce(t *testing.T) {
	mgr, _ := newLocalManager(t)
	if _, err := mgr.AddPost(context.Background(), PostDraft{Title: "a", Content: "b"}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	mgr.Initialize(context.Background())
	if got := len(mgr.Posts()); got != 2 {
		t.Fatalf("len(Posts()) = %d, want 2", got)
	}
}

func TestInitialize_LoadFailureStillReady(t *testing.T) {
	center := notify.NewCenter(8, nil)
	loadErr := board.LoadFailed("load posts", errors.New("boom"))
	mgr := Open(context.Background(), failingStore{err: loadErr}, WithNotifier(center))

	if !mgr.Ready() {
		t.Fatalf("Ready() = false, want true")
	}
	if got := len(mgr.Posts()); got != 0 {
		t.Fatalf("len(Posts()) = %d, want 0", got)
	}
	if snap := mgr.Snapshot(); !errors.Is(snap.LastError, board.ErrLoad) {
		t.Fatalf("LastError = %v, want ErrLoad", snap.LastError)
	}
	latest, ok := center.Latest()
	if !ok || latest.Level != notify.LevelFailure {
		t.Fatalf("latest toast = %+v, want failure", latest)
	}
}

func TestAddPost_InsertsAtHead(t *testing.T) {
	mgr, _ := newLocalManager(t)
	before := len(mgr.Posts())

	post, err := mgr.AddPost(context.Background(), PostDraft{Title: " Hello ", Content: "World", Category: board.CategoryNews})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if post.Title != "Hello" || post.Content != "World" || post.Category != board.CategoryNews {
		t.Fatalf("post = %+v, want Hello/World/News", post)
	}
	if post.Upvotes != 0 || post.Comments == nil || len(post.Comments) != 0 {
		t.Fatalf("new post upvotes=%d comments=%v, want 0 and []", post.Upvotes, post.Comments)
	}
	if !strings.HasPrefix(post.Author, "Anon #") {
		t.Fatalf("author = %q, want Anon #NNNN", post.Author)
	}
	posts := mgr.Posts()
	if len(posts) != before+1 {
		t.Fatalf("len(Posts()) = %d, want %d", len(posts), before+1)
	}
	if posts[0].ID != post.ID {
		t.Fatalf("head = %q, want %q", posts[0].ID, post.ID)
	}
}

func TestAddPost_Validation(t *testing.T) {
	mgr, _ := newLocalManager(t)
	cases := []PostDraft{
		{Title: "  ", Content: "x"},
		{Title: "x", Content: "\n\t"},
		{Title: "x", Content: "y", Category: "Gossip"},
	}
	for _, draft := range cases {
		if _, err := mgr.AddPost(context.Background(), draft); !board.IsValidation(err) {
			t.Fatalf("AddPost(%+v) err = %v, want validation error", draft, err)
		}
	}
	if got := len(mgr.Posts()); got != 1 {
		t.Fatalf("len(Posts()) = %d, want 1", got)
	}
}

func TestAddPost_WriteFailureLeavesCollection(t *testing.T) {
	center := notify.NewCenter(8, nil)
	mgr, slots := newLocalManager(t, WithNotifier(center))
	slots.FailWrites = true
	before := mgr.Posts()

	if _, err := mgr.AddPost(context.Background(), PostDraft{Title: "a", Content: "b"}); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("AddPost err = %v, want ErrWrite", err)
	}
	if got := len(mgr.Posts()); got != len(before) {
		t.Fatalf("len(Posts()) = %d, want %d", got, len(before))
	}
	if center.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", center.Pending())
	}
}

func TestAddPost_RemoteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"p1","title":"t","content":"c","upvotes":3,"createdAt":"2024-01-01T00:00:00Z"}]`)
	}))
	client, err := remote.NewClient(srv.URL+"/api", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	center := notify.NewCenter(8, nil)
	mgr := Open(context.Background(), client, WithNotifier(center))
	before := mgr.Posts()
	if len(before) != 1 {
		t.Fatalf("len(Posts()) = %d, want 1", len(before))
	}

	srv.Close()
	_, err = mgr.AddPost(context.Background(), PostDraft{Title: "Hello", Content: "World"})
	var transport *remote.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("AddPost err = %v, want TransportError", err)
	}

	after := mgr.Posts()
	if len(after) != len(before) || after[0].ID != before[0].ID || after[0].Upvotes != before[0].Upvotes {
		t.Fatalf("Posts() changed after failed create: %+v", after)
	}

	recent := center.Recent()
	if len(recent) != 1 {
		t.Fatalf("len(Recent()) = %d, want 1 (announcement resolved in place)", len(recent))
	}
	if recent[0].Level != notify.LevelFailure || recent[0].ID != 1 {
		t.Fatalf("toast = %+v, want failure keyed to the announcement", recent[0])
	}
}

func TestRemoteEmptyReplyLeavesCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[{"id":"p1","title":"Hello","content":"World","author":"Anon #1234","upvotes":3,"createdAt":"2024-01-01T00:00:00Z"}]`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	client, err := remote.NewClient(srv.URL+"/api", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	center := notify.NewCenter(8, nil)
	mgr := Open(context.Background(), client, WithNotifier(center))
	ctx := context.Background()

	if _, err := mgr.VotePost(ctx, "p1", 1); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("VotePost err = %v, want ErrWrite", err)
	}
	got, _ := mgr.GetPost("p1")
	if got.Title != "Hello" || got.Content != "World" || got.Author != "Anon #1234" || got.Upvotes != 3 {
		t.Fatalf("post after empty vote reply = %+v, want unchanged", got)
	}
	if mgr.Busy("p1") {
		t.Fatalf("Busy() = true after failed vote")
	}

	if _, err := mgr.UpdatePost(ctx, "p1", "new", "body"); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("UpdatePost err = %v, want ErrWrite", err)
	}
	if got, _ := mgr.GetPost("p1"); got.Title != "Hello" {
		t.Fatalf("title after empty update reply = %q, want Hello", got.Title)
	}

	if _, err := mgr.AddPost(ctx, PostDraft{Title: "a", Content: "b"}); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("AddPost err = %v, want ErrWrite", err)
	}
	if n := len(mgr.Posts()); n != 1 {
		t.Fatalf("len(Posts()) = %d, want 1", n)
	}
	latest, _ := center.Latest()
	if latest.Level != notify.LevelFailure {
		t.Fatalf("latest toast = %+v, want failure", latest)
	}
}

func TestFailuresAreLoggedOnceByNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	center := notify.NewCenter(8, logger)
	mgr, slots := newLocalManager(t, WithNotifier(center), WithLogger(logger))
	slots.FailWrites = true

	if _, err := mgr.AddPost(context.Background(), PostDraft{Title: "a", Content: "b"}); err == nil {
		t.Fatalf("AddPost err = nil, want write error")
	}
	if n := strings.Count(buf.String(), "level=ERROR"); n != 1 {
		t.Fatalf("error records = %d, want 1:\n%s", n, buf.String())
	}
}

func TestUpdatePost(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()
	post, _ := mgr.AddPost(ctx, PostDraft{Title: "a", Content: "b"})

	for _, tc := range []struct{ title, content string }{{"", "x"}, {"x", "  "}} {
		if _, err := mgr.UpdatePost(ctx, post.ID, tc.title, tc.content); !board.IsValidation(err) {
			t.Fatalf("UpdatePost(%q, %q) err = %v, want validation error", tc.title, tc.content, err)
		}
	}
	if got, _ := mgr.GetPost(post.ID); got.Title != "a" || got.Content != "b" {
		t.Fatalf("post after rejected update = %+v, want unchanged", got)
	}

	updated, err := mgr.UpdatePost(ctx, post.ID, "new title", "new body")
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if updated.Title != "new title" || updated.Content != "new body" || !updated.CreatedAt.Equal(post.CreatedAt) {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := mgr.UpdatePost(ctx, "missing", "t", "c"); !board.IsNotFound(err) {
		t.Fatalf("UpdatePost(missing) err = %v, want not found", err)
	}
}

func TestVotePost_RoundTrip(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()
	post, _ := mgr.AddPost(ctx, PostDraft{Title: "a", Content: "b"})

	up, err := mgr.VotePost(ctx, post.ID, 1)
	if err != nil || up.Upvotes != 1 {
		t.Fatalf("VotePost(+1) = %d, %v; want 1, nil", up.Upvotes, err)
	}
	down, err := mgr.VotePost(ctx, post.ID, -1)
	if err != nil || down.Upvotes != 0 {
		t.Fatalf("VotePost(-1) = %d, %v; want 0, nil", down.Upvotes, err)
	}
	if _, err := mgr.VotePost(ctx, post.ID, 2); !board.IsValidation(err) {
		t.Fatalf("VotePost(2) err = %v, want validation error", err)
	}
	if mgr.Busy(post.ID) {
		t.Fatalf("Busy() = true after votes settled")
	}
}

func TestDeletePost(t *testing.T) {
	mgr, slots := newLocalManager(t)
	ctx := context.Background()
	a, _ := mgr.AddPost(ctx, PostDraft{Title: "a", Content: "b"})
	b, _ := mgr.AddPost(ctx, PostDraft{Title: "c", Content: "d"})

	if err := mgr.DeletePost(ctx, a.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, ok := mgr.GetPost(a.ID); ok {
		t.Fatalf("GetPost(%q) found deleted post", a.ID)
	}
	if _, ok := mgr.GetPost(b.ID); !ok {
		t.Fatalf("GetPost(%q) missing after deleting another post", b.ID)
	}

	// A failed write-back still removes the post locally.
	slots.FailWrites = true
	if err := mgr.DeletePost(ctx, b.ID); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("DeletePost err = %v, want ErrWrite", err)
	}
	if _, ok := mgr.GetPost(b.ID); ok {
		t.Fatalf("GetPost(%q) found post after failed delete", b.ID)
	}
}

func TestDeletedPostStaysGoneWhenWriteBackFails(t *testing.T) {
	mgr, slots := newLocalManager(t)
	ctx := context.Background()
	post, err := mgr.AddPost(ctx, PostDraft{Title: "Hello", Content: "World"})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	slots.FailWrites = true
	if err := mgr.DeletePost(ctx, post.ID); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("DeletePost err = %v, want ErrWrite", err)
	}
	found, err := mgr.SearchPosts(ctx, "Hello")
	if err != nil {
		t.Fatalf("SearchPosts: %v", err)
	}
	for _, p := range found {
		if p.ID == post.ID {
			t.Fatalf("SearchPosts returned deleted post %s", post.ID)
		}
	}
}

func TestDeleteBeforeInitializeIsNotUndone(t *testing.T) {
	slots := &localstore.MemorySlots{FailWrites: true}
	mgr := New(localstore.New(slots))
	ctx := context.Background()

	if err := mgr.DeletePost(ctx, "welcome"); !errors.Is(err, board.ErrWrite) {
		t.Fatalf("DeletePost err = %v, want ErrWrite", err)
	}
	mgr.Initialize(ctx)
	if _, ok := mgr.GetPost("welcome"); ok {
		t.Fatalf("GetPost(welcome) found post deleted before the initial load")
	}
}

func TestAddComment(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()
	post, _ := mgr.AddPost(ctx, PostDraft{Title: "a", Content: "b"})

	if _, err := mgr.AddComment(ctx, post.ID, "  ", ""); !board.IsValidation(err) {
		t.Fatalf("AddComment(blank) err = %v, want validation error", err)
	}
	if _, err := mgr.AddComment(ctx, "missing", "hi", ""); !board.IsNotFound(err) {
		t.Fatalf("AddComment(missing) err = %v, want not found", err)
	}

	first, err := mgr.AddComment(ctx, post.ID, "first", "")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	second, err := mgr.AddComment(ctx, post.ID, "", "/tmp/cat.png")
	if err != nil {
		t.Fatalf("AddComment(image only): %v", err)
	}
	got, _ := mgr.GetPost(post.ID)
	if len(got.Comments) != 2 || got.Comments[0].ID != first.ID || got.Comments[1].ID != second.ID {
		t.Fatalf("comments = %+v, want [first, second]", got.Comments)
	}
	if got.Comments[0].PostID != post.ID {
		t.Fatalf("comment postId = %q, want %q", got.Comments[0].PostID, post.ID)
	}
}

// vanishingStore reports NotFound for every comment.
type vanishingStore struct{ board.Store }

func (vanishingStore) AppendComment(context.Context, string, board.Comment) (board.Comment, error) {
	return board.Comment{}, board.NotFound("append comment", nil)
}

func TestAddComment_VanishedPostIsWarning(t *testing.T) {
	center := notify.NewCenter(8, nil)
	store := vanishingStore{localstore.New(&localstore.MemorySlots{})}
	mgr := Open(context.Background(), store, WithNotifier(center))

	_, err := mgr.AddComment(context.Background(), "welcome", "hi", "")
	if !board.IsNotFound(err) {
		t.Fatalf("AddComment err = %v, want not found", err)
	}
	latest, _ := center.Latest()
	if latest.Level != notify.LevelWarning || latest.ID != 1 {
		t.Fatalf("toast = %+v, want warning keyed to the announcement", latest)
	}
}

func TestSearchPosts(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()
	post, _ := mgr.AddPost(ctx, PostDraft{Title: "Hello", Content: "World"})

	for _, q := range []string{"", "   "} {
		got, err := mgr.SearchPosts(ctx, q)
		if err != nil || len(got) != 0 {
			t.Fatalf("SearchPosts(%q) = %v, %v; want empty", q, got, err)
		}
	}
	got, err := mgr.SearchPosts(ctx, "hello")
	if err != nil || len(got) != 1 || got[0].ID != post.ID {
		t.Fatalf("SearchPosts(hello) = %v, %v", got, err)
	}
}

func TestUploadImage(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()

	if _, err := mgr.UploadImage(ctx, nil); !board.IsValidation(err) {
		t.Fatalf("UploadImage(nil) err = %v, want validation error", err)
	}
	if _, err := mgr.UploadImage(ctx, []byte("plain text")); !board.IsValidation(err) {
		t.Fatalf("UploadImage(text) err = %v, want validation error", err)
	}
	big := make([]byte, MaxUploadBytes+1)
	copy(big, pngHeader)
	if _, err := mgr.UploadImage(ctx, big); !board.IsValidation(err) {
		t.Fatalf("UploadImage(oversized) err = %v, want validation error", err)
	}
	ref, err := mgr.UploadImage(ctx, pngHeader)
	if err != nil || !strings.HasSuffix(ref, ".png") {
		t.Fatalf("UploadImage(png) = %q, %v; want .png reference", ref, err)
	}
}

func TestScenario_PostLifecycle(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()

	a, err := mgr.AddPost(ctx, PostDraft{Title: "Hello", Content: "World", Category: board.CategoryNews})
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if voted, _ := mgr.VotePost(ctx, a.ID, 1); voted.Upvotes != 1 {
		t.Fatalf("upvotes = %d, want 1", voted.Upvotes)
	}
	if _, err := mgr.AddComment(ctx, a.ID, "Nice!", ""); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	got, _ := mgr.GetPost(a.ID)
	if len(got.Comments) != 1 || got.Comments[0].PostID != a.ID {
		t.Fatalf("comments = %+v, want one comment on %s", got.Comments, a.ID)
	}
	if err := mgr.DeletePost(ctx, a.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, ok := mgr.GetPost(a.ID); ok {
		t.Fatalf("GetPost after delete found post")
	}
	found, _ := mgr.SearchPosts(ctx, "Hello")
	for _, p := range found {
		if p.ID == a.ID {
			t.Fatalf("SearchPosts still returns deleted post")
		}
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	inner := localstore.New(&localstore.MemorySlots{})
	store := &blockingStore{Store: inner}
	mgr := Open(context.Background(), store)
	base, _ := mgr.GetPost("welcome")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = mgr.UpdatePost(context.Background(), "welcome", "first", "body")
	}()
	store.waitFor(t, 1)
	go func() {
		defer wg.Done()
		_, _ = mgr.UpdatePost(context.Background(), "welcome", "second", "body")
	}()
	gates := store.waitFor(t, 2)

	if !mgr.Busy("welcome") {
		t.Fatalf("Busy() = false while requests are in flight")
	}

	newer := base
	newer.Title = "second"
	gates[1] <- newer
	older := base
	older.Title = "first"
	gates[0] <- older
	wg.Wait()

	got, _ := mgr.GetPost("welcome")
	if got.Title != "second" {
		t.Fatalf("title = %q, want second (stale response applied)", got.Title)
	}
	if mgr.Busy("welcome") {
		t.Fatalf("Busy() = true after responses arrived")
	}
}

func TestResponseForDeletedPostIsDropped(t *testing.T) {
	inner := localstore.New(&localstore.MemorySlots{})
	store := &blockingStore{Store: inner}
	mgr := Open(context.Background(), store)
	base, _ := mgr.GetPost("welcome")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mgr.UpdatePost(context.Background(), "welcome", "late", "body")
	}()
	gates := store.waitFor(t, 1)
	if err := mgr.DeletePost(context.Background(), "welcome"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	base.Title = "late"
	gates[0] <- base
	<-done

	if _, ok := mgr.GetPost("welcome"); ok {
		t.Fatalf("deleted post reappeared after late response")
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	mgr, _ := newLocalManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var snaps []Snapshot
	cancel := mgr.Subscribe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	if _, err := mgr.AddPost(ctx, PostDraft{Title: "a", Content: "b"}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	mu.Lock()
	seen := len(snaps)
	if seen == 0 {
		mu.Unlock()
		t.Fatalf("no snapshots delivered")
	}
	last := snaps[seen-1]
	mu.Unlock()
	if !last.Ready || len(last.Posts) != 2 || last.Creating {
		t.Fatalf("last snapshot = ready:%v posts:%d creating:%v", last.Ready, len(last.Posts), last.Creating)
	}

	cancel()
	cancel()
	if _, err := mgr.AddPost(ctx, PostDraft{Title: "c", Content: "d"}); err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != seen {
		t.Fatalf("snapshots after cancel = %d, want %d", len(snaps), seen)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	mgr, _ := newLocalManager(t)
	snap := mgr.Snapshot()
	snap.Posts[0].Title = "mutated"
	if got, _ := mgr.GetPost("welcome"); got.Title == "mutated" {
		t.Fatalf("Snapshot shares post storage with the manager")
	}
}
