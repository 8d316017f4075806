// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package transport

import (
	"context"
	"sync"
)

// Reply is one scripted answer of a Fake.
type Reply struct {
	Text string
	Err  error
}

// Fake is an in-process Transport for tests and offline demos. Replies are
// consumed per route in order; the last reply of a route repeats once the
// script runs out.
type Fake struct {
	mu       sync.Mutex
	replies  map[Route][]Reply
	echo     map[Route]bool
	requests []Request

	// Hook, when set, runs before a reply is produced. It may block on ctx
	// to simulate a slow upstream.
	Hook func(ctx context.Context, req Request) error
}

// NewFake returns a Fake with no scripted replies.
func NewFake() *Fake {
	return &Fake{replies: make(map[Route][]Reply), echo: make(map[Route]bool)}
}

func init() {
	Register("fake", func(Config) (Transport, error) { return NewDemo(), nil })
}

const demoGeneration = `<tests>
  <test name="TC-1">Step 1: Open the feature page.
Expected: The page loads without errors.</test>
  <test name="TC-2">Step 1: Submit the form with empty required fields.
Expected: Validation messages are shown.</test>
</tests>
<additional_checks>
  <check>Check keyboard navigation</check>
  <check>Check behaviour on slow network</check>
</additional_checks>`

// NewDemo returns an offline Fake: generate answers with a canned reply,
// agent echoes the patch request unchanged and export acknowledges.
func NewDemo() *Fake {
	f := NewFake().Script(RouteGenerate, Reply{Text: demoGeneration}).Script(RouteExport, Reply{Text: "ok"})
	f.Echo(RouteAgent)
	return f
}

// Echo makes route answer every request with its own payload.
func (f *Fake) Echo(route Route) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.echo[route] = true
	return f
}

// Script appends replies for route.
func (f *Fake) Script(route Route, replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[route] = append(f.replies[route], replies...)
	return f
}

// Requests returns every request received so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

func (f *Fake) Exchange(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.echo[req.Route] {
		return req.Payload, nil
	}
	queue := f.replies[req.Route]
	if len(queue) == 0 {
		return "", nil
	}
	r := queue[0]
	if len(queue) > 1 {
		f.replies[req.Route] = queue[1:]
	}
	return r.Text, r.Err
}
