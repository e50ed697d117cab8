// Package storage persists users, scheduled events, acknowledgements and
// readings.
//
// The sqlite and postgres drivers share one squirrel-built query set over
// database/sql and apply embedded goose migrations when opened. The memory
// driver keeps everything in maps and is meant for tests and dry runs.
package storage
