package content

import (
	"context"
	"time"
)

// Post access levels. The level is an inclusive floor: a reader sees a post
// when their own level is at least the post's.
const (
	AccessPublic     = 0
	AccessRegistered = 3
)

// historyLimit caps the per-user recently-viewed ring.
const historyLimit = 20

// Post is a published entry.
type Post struct {
	ID          string
	AuthorID    string
	CategoryID  *string
	Title       string
	Description string
	Content     string
	Cover       *string
	AccessLevel int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment is a reader comment attached to a post.
type Comment struct {
	ID        string
	PostID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Category is a post grouping label.
type Category struct {
	ID   string
	Name string
}

// ArchiveFile is a bookkeeping row for an uploaded file. The bytes live in
// external object storage; Burrow only indexes them.
type ArchiveFile struct {
	ID          string
	Name        string
	ObjectKey   string
	SizeBytes   int64
	ContentType string
	UploaderID  string
	CreatedAt   time.Time
}

// HistoryEntry records one recently-viewed post.
type HistoryEntry struct {
	Post     Post
	ViewedAt time.Time
}

// CreatePostInput describes a new post.
type CreatePostInput struct {
	AuthorID    string
	CategoryID  *string
	Title       string
	Description string
	Content     string
	Cover       *string
	AccessLevel int
	Now         time.Time
}

// UpdatePostInput carries a partial post update; nil fields are untouched.
type UpdatePostInput struct {
	ID          string
	CategoryID  *string
	Title       *string
	Description *string
	Content     *string
	Cover       *string
	AccessLevel *int
	Now         time.Time
}

// CreateCommentInput describes a new comment.
type CreateCommentInput struct {
	PostID   string
	AuthorID string
	Body     string
	Now      time.Time
}

// CreateArchiveFileInput describes a new archive index row.
type CreateArchiveFileInput struct {
	Name        string
	ObjectKey   string
	SizeBytes   int64
	ContentType string
	UploaderID  string
	Now         time.Time
}

// Store is the persistence boundary for the content surface.
type Store interface {
	CreatePost(ctx context.Context, in CreatePostInput) (Post, error)
	UpdatePost(ctx context.Context, in UpdatePostInput) (Post, error)
	DeletePost(ctx context.Context, postID string) error
	GetPost(ctx context.Context, postID string) (Post, error)

	// ListPosts returns posts whose access level does not exceed maxAccess,
	// newest first.
	ListPosts(ctx context.Context, maxAccess, limit, offset int) ([]Post, error)

	CreateComment(ctx context.Context, in CreateCommentInput) (Comment, error)
	GetComment(ctx context.Context, commentID string) (Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	ListComments(ctx context.Context, postID string) ([]Comment, error)

	CreateCategory(ctx context.Context, name string) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	ListCategories(ctx context.Context) ([]Category, error)

	CreateArchiveFile(ctx context.Context, in CreateArchiveFileInput) (ArchiveFile, error)
	DeleteArchiveFile(ctx context.Context, fileID string) error
	ListArchiveFiles(ctx context.Context) ([]ArchiveFile, error)

	AddFavorite(ctx context.Context, userID, postID string, now time.Time) error
	RemoveFavorite(ctx context.Context, userID, postID string) error
	ListFavorites(ctx context.Context, userID string) ([]Post, error)

	// RecordView upserts a history entry and evicts the oldest rows beyond
	// the per-user cap.
	RecordView(ctx context.Context, userID, postID string, now time.Time) error
	ListHistory(ctx context.Context, userID string) ([]HistoryEntry, error)
}
