// Package remote implements board.Store over the Rebbit posts HTTP API.
//
// Every store operation maps to a single request under the configured base
// URL (default http://localhost:8080/api):
//
//	GET    /posts                      LoadAll
//	POST   /posts                      Create
//	PUT    /posts/{id}                 Update   (title, content)
//	DELETE /posts/{id}                 Delete
//	POST   /posts/{id}/comments        AppendComment
//	PATCH  /posts/{id}/vote?value=±1   Vote
//	GET    /posts/search?query=...     Search
//	POST   /images/upload              UploadAsset (multipart field "file")
//
// # Errors
//
// A request that never yields a response fails with *TransportError; a
// non-2xx response fails with *StatusError. Both are wrapped in a
// *board.Error: 404 maps to board.ErrNotFound, reads map to board.ErrLoad and
// writes to board.ErrWrite. Delete treats 404 as success.
package remote
