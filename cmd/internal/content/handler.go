package content

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"burrow/cmd/internal/auth/gate"
)

const defaultMaxBodyBytes = 1 << 20

// Handler wires the content endpoints to the store, behind the access gate.
type Handler struct {
	log   *slog.Logger
	store Store
	gate  *gate.Gate

	maxBodyBytes int64
}

// NewHandler constructs a content Handler.
func NewHandler(log *slog.Logger, store Store, g *gate.Gate) (*Handler, error) {
	if store == nil || g == nil {
		return nil, errors.New("content: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, store: store, gate: g, maxBodyBytes: defaultMaxBodyBytes}, nil
}

// Register wires content routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	optional := h.gate.Require(gate.TierOptional)
	required := h.gate.Require(gate.TierRequired)
	admin := func(next http.Handler) http.Handler {
		return required(h.gate.RequireGroups("admin")(next))
	}

	mux.Handle("GET /api/posts", optional(http.HandlerFunc(h.handleListPosts)))
	mux.Handle("POST /api/posts", required(http.HandlerFunc(h.handleCreatePost)))
	mux.Handle("GET /api/posts/{id}", optional(http.HandlerFunc(h.handleGetPost)))
	mux.Handle("PATCH /api/posts/{id}", required(http.HandlerFunc(h.handleUpdatePost)))
	mux.Handle("DELETE /api/posts/{id}", required(http.HandlerFunc(h.handleDeletePost)))

	mux.HandleFunc("GET /api/posts/{id}/comments", h.handleListComments)
	mux.Handle("POST /api/posts/{id}/comments", required(http.HandlerFunc(h.handleCreateComment)))
	mux.Handle("DELETE /api/comments/{id}", required(http.HandlerFunc(h.handleDeleteComment)))

	mux.HandleFunc("GET /api/categories", h.handleListCategories)
	mux.Handle("POST /api/categories", admin(http.HandlerFunc(h.handleCreateCategory)))
	mux.Handle("DELETE /api/categories/{id}", admin(http.HandlerFunc(h.handleDeleteCategory)))

	mux.Handle("GET /api/archive", admin(http.HandlerFunc(h.handleListArchive)))
	mux.Handle("POST /api/archive", admin(http.HandlerFunc(h.handleCreateArchiveFile)))
	mux.Handle("DELETE /api/archive/{id}", admin(http.HandlerFunc(h.handleDeleteArchiveFile)))

	mux.Handle("GET /api/favorites", required(http.HandlerFunc(h.handleListFavorites)))
	mux.Handle("PUT /api/favorites/{postID}", required(http.HandlerFunc(h.handleAddFavorite)))
	mux.Handle("DELETE /api/favorites/{postID}", required(http.HandlerFunc(h.handleRemoveFavorite)))

	mux.Handle("GET /api/history", required(http.HandlerFunc(h.handleListHistory)))
}

// accessLevelFor maps the caller's authentication state to the highest post
// access level they may read.
func accessLevelFor(id gate.Identity, ok bool) int {
	if ok && id.UserID != "" {
		return AccessRegistered
	}
	return AccessPublic
}

// isOwnerOrAdmin reports whether the caller may mutate a resource owned by
// ownerID. The admin override is resolved against the store; the token's
// group claim alone never grants it.
func (h *Handler) isOwnerOrAdmin(ctx context.Context, id gate.Identity, ownerID string) (bool, error) {
	if id.UserID == ownerID {
		return true, nil
	}
	return h.gate.MemberOf(ctx, id.UserID, "admin")
}

// ---- request/response shapes ----

type createPostRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	Cover       *string `json:"cover"`
	CategoryID  *string `json:"category_id"`
	AccessLevel int     `json:"access_level"`
}

type updatePostRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
	Cover       *string `json:"cover"`
	CategoryID  *string `json:"category_id"`
	AccessLevel *int    `json:"access_level"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

type createArchiveFileRequest struct {
	Name        string `json:"name"`
	ObjectKey   string `json:"object_key"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

type postResponse struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	CategoryID  *string   `json:"category_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Cover       *string   `json:"cover"`
	AccessLevel int       `json:"access_level"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type archiveFileResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ObjectKey   string    `json:"object_key"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	UploaderID  string    `json:"uploader_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type historyEntryResponse struct {
	Post     postResponse `json:"post"`
	ViewedAt time.Time    `json:"viewed_at"`
}

func toPostResponse(p Post) postResponse {
	return postResponse{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		CategoryID:  p.CategoryID,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Cover:       p.Cover,
		AccessLevel: p.AccessLevel,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toPostResponses(posts []Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	return out
}

func toCommentResponse(c Comment) commentResponse {
	return commentResponse{ID: c.ID, PostID: c.PostID, AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt}
}

// ---- posts ----

func (h *Handler) handleListPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())

	limit, offset := 20, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit = atoiDefault(v, 20)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset = atoiDefault(v, 0)
	}

	posts, err := h.store.ListPosts(r.Context(), accessLevelFor(id, ok), limit, offset)
	if err != nil {
		h.log.Error("content.posts.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toPostResponses(posts))
}

func (h *Handler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req createPostRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	post, err := h.store.CreatePost(r.Context(), CreatePostInput{
		AuthorID:    id.UserID,
		CategoryID:  req.CategoryID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Content:     req.Content,
		Cover:       req.Cover,
		AccessLevel: req.AccessLevel,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, "content.posts.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

func (h *Handler) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, authed := gate.IdentityFrom(r.Context())

	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, "content.posts.get", err)
		return
	}

	// A restricted post reads the same as a missing one for anonymous callers.
	if post.AccessLevel > accessLevelFor(id, authed) {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}

	if authed && id.UserID != "" {
		if err := h.store.RecordView(r.Context(), id.UserID, post.ID, time.Now().UTC()); err != nil {
			// A failed history write never blocks the read.
			h.log.Error("content.history.record.fail", "err", err, "post_id", post.ID)
		}
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (h *Handler) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, "content.posts.update", err)
		return
	}
	allowed, err := h.isOwnerOrAdmin(r.Context(), id, post.AuthorID)
	if err != nil {
		h.writeStoreError(w, "content.posts.update", err)
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", "not the post author")
		return
	}

	var req updatePostRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	updated, err := h.store.UpdatePost(r.Context(), UpdatePostInput{
		ID:          post.ID,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Cover:       req.Cover,
		AccessLevel: req.AccessLevel,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, "content.posts.update", err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(updated))
}

func (h *Handler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, "content.posts.delete", err)
		return
	}
	allowed, err := h.isOwnerOrAdmin(r.Context(), id, post.AuthorID)
	if err != nil {
		h.writeStoreError(w, "content.posts.delete", err)
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", "not the post author")
		return
	}

	if err := h.store.DeletePost(r.Context(), post.ID); err != nil {
		h.writeStoreError(w, "content.posts.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- comments ----

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.store.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, "content.comments.list", err)
		return
	}
	out := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req createCommentRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	comment, err := h.store.CreateComment(r.Context(), CreateCommentInput{
		PostID:   r.PathValue("id"),
		AuthorID: id.UserID,
		Body:     strings.TrimSpace(req.Body),
		Now:      time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, "content.comments.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	comment, err := h.store.GetComment(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, "content.comments.delete", err)
		return
	}
	allowed, err := h.isOwnerOrAdmin(r.Context(), id, comment.AuthorID)
	if err != nil {
		h.writeStoreError(w, "content.comments.delete", err)
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", "not the comment author")
		return
	}

	if err := h.store.DeleteComment(r.Context(), comment.ID); err != nil {
		h.writeStoreError(w, "content.comments.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- categories ----

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.log.Error("content.categories.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	category, err := h.store.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.writeStoreError(w, "content.categories.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name})
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		h.writeStoreError(w, "content.categories.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- archive ----

func (h *Handler) handleListArchive(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListArchiveFiles(r.Context())
	if err != nil {
		h.log.Error("content.archive.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	out := make([]archiveFileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, archiveFileResponse{
			ID:          f.ID,
			Name:        f.Name,
			ObjectKey:   f.ObjectKey,
			SizeBytes:   f.SizeBytes,
			ContentType: f.ContentType,
			UploaderID:  f.UploaderID,
			CreatedAt:   f.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateArchiveFile(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req createArchiveFileRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	file, err := h.store.CreateArchiveFile(r.Context(), CreateArchiveFileInput{
		Name:        strings.TrimSpace(req.Name),
		ObjectKey:   strings.TrimSpace(req.ObjectKey),
		SizeBytes:   req.SizeBytes,
		ContentType: req.ContentType,
		UploaderID:  id.UserID,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		h.writeStoreError(w, "content.archive.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, archiveFileResponse{
		ID:          file.ID,
		Name:        file.Name,
		ObjectKey:   file.ObjectKey,
		SizeBytes:   file.SizeBytes,
		ContentType: file.ContentType,
		UploaderID:  file.UploaderID,
		CreatedAt:   file.CreatedAt,
	})
}

func (h *Handler) handleDeleteArchiveFile(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteArchiveFile(r.Context(), r.PathValue("id")); err != nil {
		h.writeStoreError(w, "content.archive.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- favorites ----

func (h *Handler) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	posts, err := h.store.ListFavorites(r.Context(), id.UserID)
	if err != nil {
		h.writeStoreError(w, "content.favorites.list", err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponses(posts))
}

func (h *Handler) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	if err := h.store.AddFavorite(r.Context(), id.UserID, r.PathValue("postID"), time.Now().UTC()); err != nil {
		h.writeStoreError(w, "content.favorites.add", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	if err := h.store.RemoveFavorite(r.Context(), id.UserID, r.PathValue("postID")); err != nil {
		h.writeStoreError(w, "content.favorites.remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- history ----

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	entries, err := h.store.ListHistory(r.Context(), id.UserID)
	if err != nil {
		h.writeStoreError(w, "content.history.list", err)
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{Post: toPostResponse(e.Post), ViewedAt: e.ViewedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- helpers ----

func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "resource already exists")
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
