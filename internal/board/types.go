package board

import (
	"strings"
	"time"
)

// Category labels a post. The empty category is allowed.
type Category string

const (
	CategoryDiscussion Category = "Discussion"
	CategoryMeme       Category = "Meme"
	CategoryTech       Category = "Tech"
	CategoryQuestion   Category = "Question"
	CategoryNews       Category = "News"
)

// Categories lists the known categories in display order.
func Categories() []Category {
	return []Category{CategoryDiscussion, CategoryMeme, CategoryTech, CategoryQuestion, CategoryNews}
}

// Valid reports whether c is empty or one of the known categories.
func (c Category) Valid() bool {
	if c == "" {
		return true
	}
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Next returns the category after c, wrapping around to the first one.
func (c Category) Next() Category {
	all := Categories()
	for i, known := range all {
		if c == known {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

// Post mirrors the post payload exchanged with the backing store.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Category  Category  `json:"category,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Upvotes   int       `json:"upvotes"`
	CreatedAt time.Time `json:"createdAt"`
	Comments  []Comment `json:"comments"`
}

// Comment mirrors a comment attached to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	ImageURL  string    `json:"imageUrl,omitempty"`
}

// PostPatch carries the fields an update may change.
type PostPatch struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Clone returns a deep copy of the post.
func (p Post) Clone() Post {
	dup := p
	if p.Comments != nil {
		dup.Comments = make([]Comment, len(p.Comments))
		copy(dup.Comments, p.Comments)
	}
	return dup
}

// Matches reports whether the title or content contains query, ignoring case.
// A blank query matches nothing.
func (p Post) Matches(query string) bool {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.Title), needle) ||
		strings.Contains(strings.ToLower(p.Content), needle)
}

// ClonePosts deep-copies a slice of posts.
func ClonePosts(posts []Post) []Post {
	if len(posts) == 0 {
		return nil
	}
	dup := make([]Post, len(posts))
	for i, p := range posts {
		dup[i] = p.Clone()
	}
	return dup
}
