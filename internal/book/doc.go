// Package book maintains local orderbooks from exchange depth streams. It
// supports both wholesale snapshot feeds and incremental delta feeds with
// update-id continuity checking.
package book
