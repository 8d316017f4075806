// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package record

import (
	"sort"
	"sync"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// ChangeKind identifies the mutation that triggered a Listener.
type ChangeKind string

const (
	ChangeReplace ChangeKind = "replace"
	ChangeRestore ChangeKind = "restore"
	ChangeAppend  ChangeKind = "append"
	ChangeContent ChangeKind = "content"
	ChangeUsed    ChangeKind = "used"
)

// Change describes one store mutation. Positions lists the records whose
// content or flags changed; it is nil for replace, restore and append, which affect
// the whole set.
type Change struct {
	Kind      ChangeKind
	Positions []int
	Version   uint64
}

// Listener is notified after a mutation has been committed. Listeners run
// outside the store lock and may read the store.
type Listener func(Change)

// Store is the mutable, ordered container of test and check records.
type Store struct {
	mu        sync.RWMutex
	tests     []TestRecord
	checks    []CheckRecord
	rawChecks string
	version   uint64
	listeners []Listener
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// OnChange registers fn to be called after every mutation.
func (s *Store) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Replace discards every record and ingests res, numbering tests and checks
// from 0.
func (s *Store) Replace(res GenerationResult) {
	s.replace(res, ChangeReplace)
}

// Restore is Replace for a previously saved snapshot; used flags carry over.
func (s *Store) Restore(res GenerationResult) {
	s.replace(res, ChangeRestore)
}

func (s *Store) replace(res GenerationResult, kind ChangeKind) {
	s.mu.Lock()
	s.tests = renumberTests(append([]TestRecord(nil), res.Tests...))
	s.checks = renumberChecks(append([]CheckRecord(nil), res.Checks...))
	s.rawChecks = res.RawChecksText
	s.version++
	change := Change{Kind: kind, Version: s.version}
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, change)
}

// Append concatenates res after the existing records and renumbers both
// complete sequences so positions stay dense. Free-text checks from res are
// ignored; the existing free text is kept.
func (s *Store) Append(res GenerationResult) {
	s.mu.Lock()
	s.tests = renumberTests(append(s.tests, res.Tests...))
	s.checks = renumberChecks(append(s.checks, res.Checks...))
	s.version++
	change := Change{Kind: ChangeAppend, Version: s.version}
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, change)
}

// MarkUsed flags the check at position as consumed by a supplemental request.
func (s *Store) MarkUsed(position int) error {
	s.mu.Lock()
	if position < 0 || position >= len(s.checks) {
		s.mu.Unlock()
		return cgerr.New(cgerr.CodeRecordPositionNotFound, "check position out of range", cgerr.FieldPosition(position))
	}
	if s.checks[position].Used {
		s.mu.Unlock()
		return nil
	}
	s.checks[position].Used = true
	change := Change{Kind: ChangeUsed, Positions: []int{position}, Version: s.version}
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, change)
	return nil
}

// ApplyContents replaces the content of the tests at the given positions in
// one step. Every position is validated before anything is written, so either
// all contents are applied or none are.
func (s *Store) ApplyContents(contents map[int]string) error {
	if len(contents) == 0 {
		return nil
	}

	positions := make([]int, 0, len(contents))
	for pos := range contents {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	s.mu.Lock()
	for _, pos := range positions {
		if pos < 0 || pos >= len(s.tests) {
			n := len(s.tests)
			s.mu.Unlock()
			return cgerr.New(cgerr.CodePatchApplyConflict,
				"patched position no longer exists in the store",
				cgerr.FieldPosition(pos), cgerr.Field("test_count", n))
		}
	}
	for _, pos := range positions {
		s.tests[pos].Content = contents[pos]
	}
	change := Change{Kind: ChangeContent, Positions: positions, Version: s.version}
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, change)
	return nil
}

// Tests returns a copy of the test sequence.
func (s *Store) Tests() []TestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TestRecord(nil), s.tests...)
}

// Checks returns a copy of the check sequence.
func (s *Store) Checks() []CheckRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CheckRecord(nil), s.checks...)
}

// Test returns the test at position.
func (s *Store) Test(position int) (TestRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 0 || position >= len(s.tests) {
		return TestRecord{}, false
	}
	return s.tests[position], true
}

// Check returns the check at position.
func (s *Store) Check(position int) (CheckRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 0 || position >= len(s.checks) {
		return CheckRecord{}, false
	}
	return s.checks[position], true
}

// Snapshot returns a deep copy of the current contents.
func (s *Store) Snapshot() GenerationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GenerationResult{
		Tests:         append([]TestRecord{}, s.tests...),
		Checks:        append([]CheckRecord{}, s.checks...),
		RawChecksText: s.rawChecks,
	}
}

// Version is bumped by Replace and Append. Content patches keep it.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func renumberTests(tests []TestRecord) []TestRecord {
	for i := range tests {
		tests[i].Position = i
	}
	return tests
}

func renumberChecks(checks []CheckRecord) []CheckRecord {
	for i := range checks {
		checks[i].Position = i
	}
	return checks
}

func notify(listeners []Listener, change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}
