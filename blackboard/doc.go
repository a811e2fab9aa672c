// Package blackboard contains the run-scoped shared note log implementing
// core.NoteBoard. One Blackboard is constructed per run and handed by
// reference to every agent of the spawn tree; there is no package-level
// instance.
//
// Notes are append-only: Post adds, Read snapshots, nothing edits or removes
// a note. An optional Mirror copies every note to an external append-only log
// which is truncated by Reset at the start of each run.
package blackboard
