package models

import "time"

// Gift is a shareable multimedia gift page owned by a user.
type Gift struct {
	ID         int
	UserUID    string
	Title      string
	Slug       string
	PhotoCount int
	MusicCount int
	CreatedAt  time.Time
}
