package core

import "time"

// Note is a single immutable blackboard entry.
type Note struct {
	Seq      int       `json:"seq"`
	Author   string    `json:"author"`
	Content  string    `json:"content"`
	PostedAt time.Time `json:"posted_at"`
}

// NoteBoard is the shared append-only note log visible to every agent of a run.
// Implementations must make Post atomic with respect to concurrent posters.
type NoteBoard interface {
	Post(author, content string) Note
	Read() []Note
}
