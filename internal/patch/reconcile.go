// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package patch

import (
	"strings"

	cgerr "github.com/casegen/casegen/pkg/errors"
)

// Resolution maps one fragment onto the target it revises.
type Resolution struct {
	Position int
	Label    string
	Before   string
	After    string
}

// Reconcile resolves every fragment onto exactly one target. A fragment is
// matched by position when its position belongs to the target set, else by
// a label that matches exactly one target. The result is all-or-nothing:
// any unresolved fragment, duplicate, count mismatch or uncovered target
// rejects the whole reply.
func Reconcile(targets []Target, fragments []Fragment) ([]Resolution, error) {
	if len(fragments) == 0 {
		return nil, cgerr.New(cgerr.CodePatchReconcileEmpty, "agent reply contains no test fragments",
			cgerr.Field("targets", len(targets)))
	}

	byPosition := make(map[int]Target, len(targets))
	for _, t := range targets {
		byPosition[t.Position] = t
	}

	resolved := make([]int, len(fragments))
	for i, f := range fragments {
		pos, err := resolve(targets, byPosition, f)
		if err != nil {
			return nil, err
		}
		resolved[i] = pos
	}

	seen := make(map[int]bool, len(resolved))
	for i, pos := range resolved {
		if seen[pos] {
			return nil, cgerr.New(cgerr.CodePatchReconcileDuplicate, "two fragments resolve to the same test",
				cgerr.FieldPosition(pos), cgerr.Field("fragment", i))
		}
		seen[pos] = true
	}

	if len(fragments) != len(targets) {
		return nil, cgerr.New(cgerr.CodePatchReconcileCountMismatch, "agent returned a different number of tests than were selected",
			cgerr.Field("fragments", len(fragments)), cgerr.Field("targets", len(targets)))
	}

	for _, t := range targets {
		if !seen[t.Position] {
			return nil, cgerr.New(cgerr.CodePatchReconcileMissingTarget, "selected test missing from agent reply",
				cgerr.FieldPosition(t.Position), cgerr.FieldLabel(t.Label))
		}
	}

	out := make([]Resolution, 0, len(targets))
	afterByPos := make(map[int]string, len(fragments))
	for i, pos := range resolved {
		afterByPos[pos] = fragments[i].Content
	}
	for _, t := range targets {
		out = append(out, Resolution{
			Position: t.Position,
			Label:    t.Label,
			Before:   t.Content,
			After:    afterByPos[t.Position],
		})
	}
	return out, nil
}

func resolve(targets []Target, byPosition map[int]Target, f Fragment) (int, error) {
	if f.Position != nil {
		if _, ok := byPosition[*f.Position]; ok {
			return *f.Position, nil
		}
	}

	// Labels compare with surrounding whitespace ignored on both sides.
	if label := strings.TrimSpace(f.Label); label != "" {
		var matches []int
		for _, t := range targets {
			if strings.TrimSpace(t.Label) == label {
				matches = append(matches, t.Position)
			}
		}
		switch len(matches) {
		case 0:
			return 0, cgerr.New(cgerr.CodePatchReconcileMissingLabel, "fragment label matches no selected test", cgerr.FieldLabel(f.Label))
		case 1:
			return matches[0], nil
		default:
			return 0, cgerr.New(cgerr.CodePatchReconcileAmbiguous, "fragment label matches several selected tests",
				cgerr.FieldLabel(f.Label), cgerr.Field("matches", matches))
		}
	}

	if f.Position != nil {
		return 0, cgerr.New(cgerr.CodePatchReconcileForeign, "fragment position is not among the selected tests", cgerr.FieldPosition(*f.Position))
	}
	return 0, cgerr.New(cgerr.CodePatchReconcileUnresolvable, "fragment has neither a usable position nor a label")
}

// Contents converts resolutions into the map accepted by record.Store.ApplyContents.
func Contents(res []Resolution) map[int]string {
	out := make(map[int]string, len(res))
	for _, r := range res {
		out[r.Position] = r.After
	}
	return out
}
