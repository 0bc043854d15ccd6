// Package sqlite contains the SQLite repository for reconstruction
// results.
//
// All database read/write operations for reconstruction runs, landmarks
// and their supporting measurements belong here rather than in the
// estimation packages. This keeps the robust-estimation core free of
// SQL noise and makes it easy to swap storage backends for testing.
package sqlite
