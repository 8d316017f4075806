// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package patch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// State is the externally visible phase of a Session.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one entry of the patch conversation log.
type Message struct {
	Role Role      `json:"role" yaml:"role"`
	Text string    `json:"text" yaml:"text"`
	Time time.Time `json:"time" yaml:"time"`
}

// Change describes one revised test.
type Change struct {
	Position int    `json:"position"`
	Label    string `json:"label"`
	Before   string `json:"before"`
	After    string `json:"after"`
	Diff     string `json:"diff"`
}

// Result is returned by a successful Submit.
type Result struct {
	Changes []Change `json:"changes"`
	// Stale reports that the store was regenerated while the request was in
	// flight; contents were still applied to the captured positions.
	Stale bool `json:"stale"`
}

// Session serializes patch requests against one record store. At most one
// request is in flight; a second Submit fails fast with a busy error.
type Session struct {
	store     *record.Store
	transport transport.Transport
	now       func() time.Time
	dmp       *diffmatchpatch.DiffMatchPatch

	busy atomic.Bool

	mu       sync.Mutex
	messages []Message
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for message timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Session) { s.now = fn }
}

// NewSession creates an idle session operating on store.
func NewSession(store *record.Store, tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		store:     store,
		transport: tr,
		now:       time.Now,
		dmp:       diffmatchpatch.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports whether a request is in flight.
func (s *Session) State() State {
	if s.busy.Load() {
		return StateAwaitingResponse
	}
	return StateIdle
}

// Submit sends instruction together with the tests at positions to the agent
// and applies the reply. On any failure the store is left untouched and the
// error is recorded in the conversation log.
func (s *Session) Submit(ctx context.Context, instruction string, positions []int) (*Result, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, cgerr.New(cgerr.CodePatchRequestInvalid, "instruction is required", cgerr.Field("field", "instruction"))
	}
	if len(positions) == 0 {
		return nil, cgerr.New(cgerr.CodePatchRequestInvalid, "at least one test must be selected", cgerr.Field("field", "positions"))
	}

	if !s.busy.CompareAndSwap(false, true) {
		return nil, cgerr.New(cgerr.CodePatchSessionBusy, "a patch request is already in progress")
	}
	defer s.busy.Store(false)

	targets, err := s.capture(positions)
	if err != nil {
		return nil, err
	}
	version := s.store.Version()

	s.record(RoleUser, instruction)

	payload, err := EncodeRequest(instruction, targets)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	reply, err := s.transport.Exchange(ctx, transport.Request{
		Route:     transport.RouteAgent,
		Payload:   payload,
		SessionID: transport.NewSessionID(s.now()),
	})
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	resolutions, err := Reconcile(targets, DecodeResponse(reply))
	if err != nil {
		slog.Warn("patch reply rejected", "error", err, "targets", len(targets))
		s.recordError(err)
		return nil, err
	}

	stale := s.store.Version() != version
	if stale {
		slog.Warn("store changed while patch request was in flight",
			"captured_version", version, "current_version", s.store.Version())
	}

	if err := s.store.ApplyContents(Contents(resolutions)); err != nil {
		s.recordError(err)
		return nil, err
	}

	res := &Result{Stale: stale, Changes: make([]Change, 0, len(resolutions))}
	labels := make([]string, 0, len(resolutions))
	for _, r := range resolutions {
		res.Changes = append(res.Changes, Change{
			Position: r.Position,
			Label:    r.Label,
			Before:   r.Before,
			After:    r.After,
			Diff:     s.diff(r.Before, r.After),
		})
		labels = append(labels, r.Label)
	}

	s.record(RoleAgent, fmt.Sprintf("Updated %d test(s): %s", len(labels), strings.Join(labels, ", ")))
	slog.Info("patch applied", "tests", len(resolutions), "stale", stale)
	return res, nil
}

func (s *Session) capture(positions []int) ([]Target, error) {
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)

	targets := make([]Target, 0, len(sorted))
	for i, pos := range sorted {
		if i > 0 && sorted[i-1] == pos {
			continue
		}
		t, ok := s.store.Test(pos)
		if !ok {
			return nil, cgerr.New(cgerr.CodePatchRequestInvalid, "selected test does not exist", cgerr.FieldPosition(pos))
		}
		targets = append(targets, Target{Position: t.Position, Label: t.Label, Content: t.Content})
	}
	return targets, nil
}

// diff renders a line-oriented before/after listing.
func (s *Session) diff(before, after string) string {
	a, b, lines := s.dmp.DiffLinesToChars(before, after)
	diffs := s.dmp.DiffMain(a, b, false)
	diffs = s.dmp.DiffCharsToLines(diffs, lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(strings.TrimSuffix(line, "\n"))
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func (s *Session) record(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: role, Text: text, Time: s.now()})
}

func (s *Session) recordError(err error) {
	s.record(RoleAgent, "Error: "+err.Error())
}

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Restore replaces the conversation log, used when a history item is loaded.
func (s *Session) Restore(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), msgs...)
}

// Reset clears the conversation log.
func (s *Session) Reset() {
	s.Restore(nil)
}
