package board

import "context"

// Store is the persistence contract the state manager is written against.
// Implementations must be safe for concurrent use.
type Store interface {
	// LoadAll returns the full collection. On failure it may still return a
	// usable fallback collection alongside the error.
	LoadAll(ctx context.Context) ([]Post, error)
	Create(ctx context.Context, post Post) (Post, error)
	Update(ctx context.Context, id string, patch PostPatch) (Post, error)
	// Delete removes a post. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	AppendComment(ctx context.Context, postID string, comment Comment) (Comment, error)
	Vote(ctx context.Context, postID string, delta int) (Post, error)
	// Search returns posts whose title or content contains query. A blank
	// query returns an empty result.
	Search(ctx context.Context, query string) ([]Post, error)
	// UploadAsset stores data and returns a dereferenceable reference.
	UploadAsset(ctx context.Context, data []byte, contentType string) (string, error)
}
