// Package content implements Burrow's content surface: posts, comments,
// categories, the archive file index, favorites, and per-user view history.
//
// Posts carry an access level; reads are filtered through the caller's
// authentication tier. Everything is store-backed, including the
// recently-viewed history, which is capped per user at the store layer.
package content
