package content

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"burrow/cmd/identity/ids"
)

// PostgresStore persists the content surface in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "burrow").
// The schema name must be a legal PostgreSQL identifier.
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "burrow"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

const postSelectCols = `id, author_id, category_id, title, description, content, cover, access_level, created_at, updated_at`

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	err := row.Scan(
		&p.ID,
		&p.AuthorID,
		&p.CategoryID,
		&p.Title,
		&p.Description,
		&p.Content,
		&p.Cover,
		&p.AccessLevel,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, err
	}
	return p, nil
}

// ---- posts ----

// CreatePost inserts a new post.
func (s *PostgresStore) CreatePost(ctx context.Context, in CreatePostInput) (Post, error) {
	if strings.TrimSpace(in.AuthorID) == "" || strings.TrimSpace(in.Title) == "" || in.Content == "" {
		return Post{}, ErrInvalidInput
	}
	if in.AccessLevel != AccessPublic && in.AccessLevel != AccessRegistered {
		return Post{}, ErrInvalidInput
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Post{}, err
	}

	posts := pgIdent(s.schema, "posts")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+posts+` (id, author_id, category_id, title, description, content, cover, access_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		id, in.AuthorID, in.CategoryID, in.Title, in.Description, in.Content, in.Cover, in.AccessLevel, in.Now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Post{}, ErrNotFound
		}
		return Post{}, err
	}

	return Post{
		ID:          id,
		AuthorID:    in.AuthorID,
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		Content:     in.Content,
		Cover:       in.Cover,
		AccessLevel: in.AccessLevel,
		CreatedAt:   in.Now,
		UpdatedAt:   in.Now,
	}, nil
}

// UpdatePost applies a partial update and returns the stored row.
func (s *PostgresStore) UpdatePost(ctx context.Context, in UpdatePostInput) (Post, error) {
	if strings.TrimSpace(in.ID) == "" {
		return Post{}, ErrInvalidInput
	}
	if in.AccessLevel != nil && *in.AccessLevel != AccessPublic && *in.AccessLevel != AccessRegistered {
		return Post{}, ErrInvalidInput
	}

	posts := pgIdent(s.schema, "posts")
	row := s.pool.QueryRow(ctx,
		`UPDATE `+posts+`
		    SET category_id  = COALESCE($2, category_id),
		        title        = COALESCE($3, title),
		        description  = COALESCE($4, description),
		        content      = COALESCE($5, content),
		        cover        = COALESCE($6, cover),
		        access_level = COALESCE($7, access_level),
		        updated_at   = $8
		  WHERE id = $1
		  RETURNING `+postSelectCols,
		in.ID, in.CategoryID, in.Title, in.Description, in.Content, in.Cover, in.AccessLevel, in.Now,
	)
	return scanPost(row)
}

// DeletePost removes a post; comments cascade in the schema.
func (s *PostgresStore) DeletePost(ctx context.Context, postID string) error {
	if strings.TrimSpace(postID) == "" {
		return ErrInvalidInput
	}
	posts := pgIdent(s.schema, "posts")
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+posts+` WHERE id = $1`, postID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPost fetches one post by ID regardless of access level; the caller
// decides visibility.
func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	if strings.TrimSpace(postID) == "" {
		return Post{}, ErrInvalidInput
	}
	posts := pgIdent(s.schema, "posts")
	row := s.pool.QueryRow(ctx, `SELECT `+postSelectCols+` FROM `+posts+` WHERE id = $1`, postID)
	return scanPost(row)
}

// ListPosts returns posts at or below maxAccess, newest first.
func (s *PostgresStore) ListPosts(ctx context.Context, maxAccess, limit, offset int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	posts := pgIdent(s.schema, "posts")
	rows, err := s.pool.Query(ctx,
		`SELECT `+postSelectCols+`
		   FROM `+posts+`
		  WHERE access_level <= $1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		maxAccess, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- comments ----

// CreateComment inserts a comment on an existing post.
func (s *PostgresStore) CreateComment(ctx context.Context, in CreateCommentInput) (Comment, error) {
	if strings.TrimSpace(in.PostID) == "" || strings.TrimSpace(in.AuthorID) == "" || strings.TrimSpace(in.Body) == "" {
		return Comment{}, ErrInvalidInput
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Comment{}, err
	}

	comments := pgIdent(s.schema, "comments")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+comments+` (id, post_id, author_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, in.PostID, in.AuthorID, in.Body, in.Now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, err
	}

	return Comment{ID: id, PostID: in.PostID, AuthorID: in.AuthorID, Body: in.Body, CreatedAt: in.Now}, nil
}

// GetComment fetches one comment by ID.
func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	if strings.TrimSpace(commentID) == "" {
		return Comment{}, ErrInvalidInput
	}

	comments := pgIdent(s.schema, "comments")
	var c Comment
	err := s.pool.QueryRow(ctx,
		`SELECT id, post_id, author_id, body, created_at FROM `+comments+` WHERE id = $1`,
		commentID,
	).Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, err
	}
	return c, nil
}

// DeleteComment removes one comment.
func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	if strings.TrimSpace(commentID) == "" {
		return ErrInvalidInput
	}
	comments := pgIdent(s.schema, "comments")
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+comments+` WHERE id = $1`, commentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListComments returns a post's comments, oldest first.
func (s *PostgresStore) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, ErrInvalidInput
	}

	comments := pgIdent(s.schema, "comments")
	rows, err := s.pool.Query(ctx,
		`SELECT id, post_id, author_id, body, created_at
		   FROM `+comments+`
		  WHERE post_id = $1
		  ORDER BY created_at ASC`,
		postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- categories ----

// CreateCategory inserts a category; duplicate names conflict.
func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, ErrInvalidInput
	}

	id, err := ids.NewULID(time.Time{})
	if err != nil {
		return Category{}, err
	}

	categories := pgIdent(s.schema, "categories")
	_, err = s.pool.Exec(ctx, `INSERT INTO `+categories+` (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Category{}, ErrConflict
		}
		return Category{}, err
	}
	return Category{ID: id, Name: name}, nil
}

// DeleteCategory removes a category; posts keep a NULL category reference.
func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID string) error {
	if strings.TrimSpace(categoryID) == "" {
		return ErrInvalidInput
	}

	posts := pgIdent(s.schema, "posts")
	categories := pgIdent(s.schema, "categories")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE `+posts+` SET category_id = NULL WHERE category_id = $1`, categoryID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM `+categories+` WHERE id = $1`, categoryID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

// ListCategories returns all categories by name.
func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	categories := pgIdent(s.schema, "categories")
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM `+categories+` ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- archive ----

// CreateArchiveFile inserts an archive index row.
func (s *PostgresStore) CreateArchiveFile(ctx context.Context, in CreateArchiveFileInput) (ArchiveFile, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.ObjectKey) == "" || strings.TrimSpace(in.UploaderID) == "" {
		return ArchiveFile{}, ErrInvalidInput
	}
	if in.SizeBytes < 0 {
		return ArchiveFile{}, ErrInvalidInput
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return ArchiveFile{}, err
	}

	files := pgIdent(s.schema, "archive_files")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+files+` (id, name, object_key, size_bytes, content_type, uploader_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, in.Name, in.ObjectKey, in.SizeBytes, in.ContentType, in.UploaderID, in.Now,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return ArchiveFile{}, ErrConflict
		}
		if pgIsForeignKeyViolation(err) {
			return ArchiveFile{}, ErrNotFound
		}
		return ArchiveFile{}, err
	}

	return ArchiveFile{
		ID:          id,
		Name:        in.Name,
		ObjectKey:   in.ObjectKey,
		SizeBytes:   in.SizeBytes,
		ContentType: in.ContentType,
		UploaderID:  in.UploaderID,
		CreatedAt:   in.Now,
	}, nil
}

// DeleteArchiveFile removes an archive index row.
func (s *PostgresStore) DeleteArchiveFile(ctx context.Context, fileID string) error {
	if strings.TrimSpace(fileID) == "" {
		return ErrInvalidInput
	}
	files := pgIdent(s.schema, "archive_files")
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+files+` WHERE id = $1`, fileID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListArchiveFiles returns the archive index, newest first.
func (s *PostgresStore) ListArchiveFiles(ctx context.Context) ([]ArchiveFile, error) {
	files := pgIdent(s.schema, "archive_files")
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, object_key, size_bytes, content_type, uploader_id, created_at
		   FROM `+files+`
		  ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ArchiveFile, 0)
	for rows.Next() {
		var f ArchiveFile
		if err := rows.Scan(&f.ID, &f.Name, &f.ObjectKey, &f.SizeBytes, &f.ContentType, &f.UploaderID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- favorites ----

// AddFavorite marks a post as a favorite (idempotent).
func (s *PostgresStore) AddFavorite(ctx context.Context, userID, postID string, now time.Time) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(postID) == "" {
		return ErrInvalidInput
	}

	favorites := pgIdent(s.schema, "favorites")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+favorites+` (user_id, post_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, post_id) DO NOTHING`,
		userID, postID, now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RemoveFavorite unmarks a favorite (idempotent).
func (s *PostgresStore) RemoveFavorite(ctx context.Context, userID, postID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(postID) == "" {
		return ErrInvalidInput
	}
	favorites := pgIdent(s.schema, "favorites")
	_, err := s.pool.Exec(ctx, `DELETE FROM `+favorites+` WHERE user_id = $1 AND post_id = $2`, userID, postID)
	return err
}

// ListFavorites returns a user's favorite posts, most recently marked first.
func (s *PostgresStore) ListFavorites(ctx context.Context, userID string) ([]Post, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}

	favorites := pgIdent(s.schema, "favorites")
	posts := pgIdent(s.schema, "posts")
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.author_id, p.category_id, p.title, p.description, p.content, p.cover, p.access_level, p.created_at, p.updated_at
		   FROM `+favorites+` f
		   JOIN `+posts+` p ON p.id = f.post_id
		  WHERE f.user_id = $1
		  ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- history ----

// RecordView upserts a history entry and evicts beyond the per-user cap.
func (s *PostgresStore) RecordView(ctx context.Context, userID, postID string, now time.Time) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(postID) == "" {
		return ErrInvalidInput
	}

	history := pgIdent(s.schema, "history")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+history+` (user_id, post_id, viewed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, post_id) DO UPDATE SET viewed_at = EXCLUDED.viewed_at`,
		userID, postID, now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return err
	}

	// Delete-oldest eviction keeps the newest rows within the cap.
	_, err = tx.Exec(ctx,
		`DELETE FROM `+history+`
		  WHERE user_id = $1
		    AND (user_id, post_id) NOT IN (
		        SELECT user_id, post_id FROM `+history+`
		         WHERE user_id = $1
		         ORDER BY viewed_at DESC
		         LIMIT $2)`,
		userID, historyLimit,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListHistory returns a user's recently-viewed posts, newest first.
func (s *PostgresStore) ListHistory(ctx context.Context, userID string) ([]HistoryEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}

	history := pgIdent(s.schema, "history")
	posts := pgIdent(s.schema, "posts")
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.author_id, p.category_id, p.title, p.description, p.content, p.cover, p.access_level, p.created_at, p.updated_at, h.viewed_at
		   FROM `+history+` h
		   JOIN `+posts+` p ON p.id = h.post_id
		  WHERE h.user_id = $1
		  ORDER BY h.viewed_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.Post.ID,
			&e.Post.AuthorID,
			&e.Post.CategoryID,
			&e.Post.Title,
			&e.Post.Description,
			&e.Post.Content,
			&e.Post.Cover,
			&e.Post.AccessLevel,
			&e.Post.CreatedAt,
			&e.Post.UpdatedAt,
			&e.ViewedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
