// Package store provides durable persistence for the account pickle and
// session records.
//
// Two backends implement domain.SessionStore:
//   - FileStore serialises everything as JSON on disk with atomic
//     temp-file-then-rename writes.
//   - SQLiteStore keeps the same data in a WAL-mode SQLite database.
//
// Both are concurrency-safe and keep each device's sessions ordered
// most-recently-used first. Backend failures are wrapped in
// domain.ErrStorage.
package store
