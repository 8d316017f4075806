// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package export_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/casegen/casegen/internal/export"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/transport"
	cgerr "github.com/casegen/casegen/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func threeTests() *record.Store {
	st := record.NewStore()
	st.Replace(record.GenerationResult{Tests: []record.TestRecord{
		{Label: "TC-1", Content: "one"},
		{Label: "TC-2", Content: "two"},
		{Label: "TC-3", Content: "three"},
	}})
	return st
}

var profiles = map[string]export.Profile{
	"D": {ConnectionURL: "https://jira-d.example", ConnectionToken: "tok-d"},
	"S": {ConnectionURL: "https://jira-s.example", ConnectionToken: "tok-s", TestType: "Manual"},
}

func TestExportRunsInParallelAndReportsEachRecord(t *testing.T) {
	var (
		mu      sync.Mutex
		arrived int
		all     = make(chan struct{})
	)
	fake := transport.NewFake()
	fake.Hook = func(ctx context.Context, req transport.Request) error {
		mu.Lock()
		arrived++
		if arrived == 3 {
			close(all)
		}
		mu.Unlock()
		<-all

		if strings.Contains(req.Payload, "<testName>TC-2</testName>") {
			return errors.New("HTTP 500: boom")
		}
		return nil
	}

	ex := export.New(threeTests(), fake, export.WithProfiles(profiles))
	report, err := ex.Export(context.Background(), export.Request{
		ProjectKey: "QA",
		FolderName: "Login",
		Positions:  []int{2, 0, 1},
		Profile:    "S",
	})
	require.NoError(t, err)

	assert.Equal(t, "S", report.Profile)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Items, 3)
	assert.Equal(t, []string{"TC-3", "TC-1", "TC-2"},
		[]string{report.Items[0].Name, report.Items[1].Name, report.Items[2].Name})
	assert.True(t, report.Items[0].OK)
	assert.False(t, report.Items[2].OK)
	assert.Contains(t, report.Items[2].Msg, "boom")

	for _, req := range fake.Requests() {
		assert.Equal(t, transport.RouteExport, req.Route)
		assert.Contains(t, req.Payload, "<jiraConnectionUrl>https://jira-s.example</jiraConnectionUrl>")
		assert.Contains(t, req.Payload, "<testType>Manual</testType>")
	}
	assert.False(t, ex.Busy())
}

func TestExportDefaultProfile(t *testing.T) {
	fake := transport.NewFake()
	ex := export.New(threeTests(), fake, export.WithProfiles(profiles), export.WithConcurrency(1))

	report, err := ex.Export(context.Background(), export.Request{ProjectKey: "QA", FolderName: "F", Positions: []int{0}})
	require.NoError(t, err)
	assert.Equal(t, export.DefaultProfile, report.Profile)
	assert.Contains(t, fake.Requests()[0].Payload, "tok-d")
}

func TestExportValidation(t *testing.T) {
	ex := export.New(threeTests(), transport.NewFake(), export.WithProfiles(profiles))
	ctx := context.Background()

	tests := []struct {
		name string
		req  export.Request
	}{
		{"missing project", export.Request{FolderName: "F", Positions: []int{0}}},
		{"missing folder", export.Request{ProjectKey: "QA", Positions: []int{0}}},
		{"no selection", export.Request{ProjectKey: "QA", FolderName: "F"}},
		{"unknown position", export.Request{ProjectKey: "QA", FolderName: "F", Positions: []int{7}}},
		{"unknown profile", export.Request{ProjectKey: "QA", FolderName: "F", Positions: []int{0}, Profile: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Export(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, cgerr.IsInvalidInput(err))
		})
	}
}

func TestExportRefusesConcurrentRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	fake := transport.NewFake()
	fake.Hook = func(context.Context, transport.Request) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}
	ex := export.New(threeTests(), fake)
	req := export.Request{ProjectKey: "QA", FolderName: "F", Positions: []int{0}}

	done := make(chan error, 1)
	go func() {
		_, err := ex.Export(context.Background(), req)
		done <- err
	}()
	<-entered
	assert.True(t, ex.Busy())

	_, err := ex.Export(context.Background(), req)
	require.Error(t, err)
	assert.True(t, cgerr.IsBusy(err))

	close(release)
	require.NoError(t, <-done)
}
