package domain

import "time"

// StoredKeySet is a key set pinned under a name in the registry.
type StoredKeySet struct {
	ID        string
	Name      string
	SourceURL string
	Keys      KeySet
	FetchedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
