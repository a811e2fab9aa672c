package blackboard

import (
	"sync"
	"time"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
)

// Mirror receives every posted note. Truncate is called by Reset.
type Mirror interface {
	Append(note core.Note) error
	Truncate() error
}

// Options configures a Blackboard.
type Options struct {
	// Mirror is optional; mirror failures are logged and never lose the in-memory note.
	Mirror Mirror
	Logger logging.Logger
	// Clock returns the posting time (defaults to time.Now).
	Clock func() time.Time
}

// Blackboard is an in-memory ordered note log. Safe for concurrent posters.
type Blackboard struct {
	mu     sync.RWMutex
	notes  []core.Note
	mirror Mirror
	logger logging.Logger
	clock  func() time.Time
}

var _ core.NoteBoard = (*Blackboard)(nil)

// New creates an empty blackboard.
func New(optFns ...func(o *Options)) *Blackboard {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Clock:  time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Blackboard{
		mirror: opts.Mirror,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
}

// Post appends a note at the next sequence position and returns it.
func (b *Blackboard) Post(author, content string) core.Note {
	b.mu.Lock()
	defer b.mu.Unlock()

	note := core.Note{
		Seq:      len(b.notes) + 1,
		Author:   author,
		Content:  content,
		PostedAt: b.clock().UTC(),
	}
	b.notes = append(b.notes, note)

	if b.mirror != nil {
		if err := b.mirror.Append(note); err != nil {
			b.logger.Warn("blackboard.mirror.append_failed", "seq", note.Seq, "error", err.Error())
		}
	}

	b.logger.Debug("blackboard.post", "seq", note.Seq, "author", author)

	return note
}

// Read returns a snapshot of all notes in post order. Later posts do not
// appear in an already returned snapshot.
func (b *Blackboard) Read() []core.Note {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Note, len(b.notes))
	copy(out, b.notes)

	return out
}

// Len returns the number of posted notes.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.notes)
}

// Reset starts a new run: the in-memory log is dropped and the mirror truncated.
// Snapshots taken earlier stay valid.
func (b *Blackboard) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notes = nil

	if b.mirror != nil {
		return b.mirror.Truncate()
	}

	return nil
}
