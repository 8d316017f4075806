// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package export sends selected test records to the ticketing flow, one
// request per record, all in parallel.
package export

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// DefaultProfile is used when a request names no profile.
const DefaultProfile = "D"

// Profile holds the ticketing connection settings forwarded with each record.
type Profile struct {
	ConnectionURL        string `mapstructure:"connection_url" json:"connection_url"`
	ConnectionToken      string `mapstructure:"connection_token" json:"-"`
	ConfigurationElement string `mapstructure:"configuration_element" json:"configuration_element,omitempty"`
	TestType             string `mapstructure:"test_type" json:"test_type,omitempty"`
}

// Request selects the records to export and their destination.
type Request struct {
	ProjectKey string `json:"project_key"`
	FolderName string `json:"folder_name"`
	Positions  []int  `json:"positions"`
	Profile    string `json:"profile,omitempty"`
}

// ItemResult is the outcome of one record.
type ItemResult struct {
	Position int    `json:"position"`
	OK       bool   `json:"ok"`
	Name     string `json:"name"`
	Msg      string `json:"msg"`
}

// Report aggregates every record of one export, in selection order.
type Report struct {
	Profile   string       `json:"profile"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// Exporter runs at most one export at a time.
type Exporter struct {
	store       *record.Store
	transport   transport.Transport
	profiles    map[string]Profile
	concurrency int
	now         func() time.Time

	busy atomic.Bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithProfiles sets the named connection profiles. Names are matched
// case-insensitively.
func WithProfiles(p map[string]Profile) Option {
	return func(e *Exporter) {
		e.profiles = make(map[string]Profile, len(p))
		for name, prof := range p {
			e.profiles[strings.ToUpper(name)] = prof
		}
	}
}

// WithConcurrency caps the number of simultaneous requests; zero or less
// means one goroutine per record.
func WithConcurrency(n int) Option {
	return func(e *Exporter) { e.concurrency = n }
}

// New returns an Exporter that sends the tests of store through tr.
func New(store *record.Store, tr transport.Transport, opts ...Option) *Exporter {
	e := &Exporter{store: store, transport: tr, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Busy reports whether an export is running.
func (e *Exporter) Busy() bool { return e.busy.Load() }

// Export sends every selected record. Per-record failures are reported in
// the Report and never abort the others; the returned error covers only
// validation and the busy guard.
func (e *Exporter) Export(ctx context.Context, req Request) (*Report, error) {
	req.ProjectKey = strings.TrimSpace(req.ProjectKey)
	req.FolderName = strings.TrimSpace(req.FolderName)
	if req.ProjectKey == "" {
		return nil, cgerr.New(cgerr.CodeExportRequestInvalid, "project key is required", cgerr.Field("field", "project_key"))
	}
	if req.FolderName == "" {
		return nil, cgerr.New(cgerr.CodeExportRequestInvalid, "folder name is required", cgerr.Field("field", "folder_name"))
	}
	if len(req.Positions) == 0 {
		return nil, cgerr.New(cgerr.CodeExportRequestInvalid, "at least one test must be selected", cgerr.Field("field", "positions"))
	}

	name := strings.ToUpper(strings.TrimSpace(req.Profile))
	if name == "" {
		name = DefaultProfile
	}
	profile, ok := e.profiles[name]
	if !ok && len(e.profiles) > 0 {
		return nil, cgerr.New(cgerr.CodeExportRequestInvalid, "unknown export profile",
			cgerr.Field("profile", name), cgerr.Field("available", e.profileNames()))
	}

	tests := make([]record.TestRecord, 0, len(req.Positions))
	for _, pos := range req.Positions {
		t, ok := e.store.Test(pos)
		if !ok {
			return nil, cgerr.New(cgerr.CodeExportRequestInvalid, "selected test does not exist", cgerr.FieldPosition(pos))
		}
		tests = append(tests, t)
	}

	if !e.busy.CompareAndSwap(false, true) {
		return nil, cgerr.New(cgerr.CodeExportSessionBusy, "an export is already in progress")
	}
	defer e.busy.Store(false)

	items := make([]ItemResult, len(tests))
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, t := range tests {
		g.Go(func() error {
			items[i] = e.send(ctx, req, profile, t)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Profile: name, Items: items}
	for _, it := range items {
		if it.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	slog.Info("export finished", "profile", name, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

func (e *Exporter) send(ctx context.Context, req Request, p Profile, t record.TestRecord) ItemResult {
	res := ItemResult{Position: t.Position, Name: t.Label}

	payload, err := protocol.BuildExport(protocol.ExportInput{
		ProjectKey:           req.ProjectKey,
		FolderName:           req.FolderName,
		Label:                t.Label,
		Content:              t.Content,
		ConfigurationElement: p.ConfigurationElement,
		TestType:             p.TestType,
		ConnectionURL:        p.ConnectionURL,
		ConnectionToken:      p.ConnectionToken,
	})
	if err != nil {
		res.Msg = err.Error()
		return res
	}

	if _, err := e.transport.Exchange(ctx, transport.Request{
		Route:     transport.RouteExport,
		Payload:   payload,
		SessionID: transport.NewSessionID(e.now()),
	}); err != nil {
		slog.Warn("export of test failed", "position", t.Position, "label", t.Label, "error", err)
		res.Msg = err.Error()
		return res
	}

	res.OK = true
	res.Msg = "exported"
	return res
}

func (e *Exporter) profileNames() []string {
	names := make([]string, 0, len(e.profiles))
	for n := range e.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
