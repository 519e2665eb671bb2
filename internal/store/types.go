package store

import "time"

// File is one cached module tree.
type File struct {
	ID        int64
	Path      string
	Module    string
	Hash      string
	Dump      []byte
	IndexedAt time.Time
}
