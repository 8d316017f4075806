// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/casegen/casegen/internal/export"
	"github.com/casegen/casegen/internal/generation"
	"github.com/casegen/casegen/internal/history"
	"github.com/casegen/casegen/internal/patch"
	"github.com/casegen/casegen/internal/protocol"
	"github.com/casegen/casegen/internal/record"
	"github.com/casegen/casegen/internal/workspace"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

const prefix = "/api/v1/workspaces/{id}"

func (s *Server) registerRoutes() {
	// Records
	huma.Register(s.api, huma.Operation{
		OperationID: "get-records",
		Method:      http.MethodGet,
		Path:        prefix + "/records",
		Summary:     "Current tests and checks",
		Tags:        []string{"records"},
	}, s.handleGetRecords)

	// Generation
	huma.Register(s.api, huma.Operation{
		OperationID: "generate",
		Method:      http.MethodPost,
		Path:        prefix + "/generate",
		Summary:     "Generate tests from feature pages",
		Description: "Replaces the working set. A newer request in the same workspace supersedes this one.",
		Tags:        []string{"generation"},
	}, s.handleGenerate)

	huma.Register(s.api, huma.Operation{
		OperationID: "generate-checks",
		Method:      http.MethodPost,
		Path:        prefix + "/generate/checks",
		Summary:     "Generate additional tests from selected checks",
		Tags:        []string{"generation"},
	}, s.handleGenerateChecks)

	// Patch conversation
	huma.Register(s.api, huma.Operation{
		OperationID: "patch",
		Method:      http.MethodPost,
		Path:        prefix + "/patch",
		Summary:     "Revise selected tests with an instruction",
		Tags:        []string{"patch"},
	}, s.handlePatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-conversation",
		Method:      http.MethodGet,
		Path:        prefix + "/conversation",
		Summary:     "Patch conversation log",
		Tags:        []string{"patch"},
	}, s.handleGetConversation)

	// Export
	huma.Register(s.api, huma.Operation{
		OperationID: "export",
		Method:      http.MethodPost,
		Path:        prefix + "/export",
		Summary:     "Export selected tests",
		Tags:        []string{"export"},
	}, s.handleExport)

	// History
	huma.Register(s.api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        prefix + "/history",
		Summary:     "List past generations, newest first",
		Tags:        []string{"history"},
	}, s.handleListHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-history-item",
		Method:      http.MethodGet,
		Path:        prefix + "/history/{itemId}",
		Summary:     "Get a past generation",
		Tags:        []string{"history"},
	}, s.handleGetHistoryItem)

	huma.Register(s.api, huma.Operation{
		OperationID: "load-history-item",
		Method:      http.MethodPost,
		Path:        prefix + "/history/{itemId}/load",
		Summary:     "Restore a past generation into the working set",
		Tags:        []string{"history"},
	}, s.handleLoadHistoryItem)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-history-item",
		Method:        http.MethodDelete,
		Path:          prefix + "/history/{itemId}",
		Summary:       "Delete a past generation",
		Tags:          []string{"history"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteHistoryItem)
}

// --- Request/Response types for huma ---

type workspaceInput struct {
	ID string `path:"id" doc:"Workspace id"`
}

type historyItemInput struct {
	ID     string `path:"id" doc:"Workspace id"`
	ItemID string `path:"itemId" doc:"History item id"`
}

// RecordsBody is the current working set of a workspace.
type RecordsBody struct {
	HistoryID     string               `json:"history_id,omitempty"`
	Version       uint64               `json:"version" doc:"Bumped whenever the record set is replaced or extended"`
	Tests         []record.TestRecord  `json:"tests"`
	Checks        []record.CheckRecord `json:"checks"`
	RawChecksText string               `json:"checks_raw,omitempty"`
}

type recordsOutput struct {
	Body RecordsBody
}

type generateInput struct {
	ID   string `path:"id"`
	Body struct {
		Features  []string `json:"features" minItems:"1" doc:"Feature page URLs"`
		Checklist string   `json:"checklist" minLength:"1" doc:"Checklist page URL"`
		AuxToken  string   `json:"aux_token,omitempty" doc:"Overrides the configured page access token"`
	}
}

type generateChecksInput struct {
	ID   string `path:"id"`
	Body struct {
		Positions []int    `json:"positions" minItems:"1" doc:"Check positions to expand"`
		Features  []string `json:"features,omitempty" doc:"Defaults to the features of the last generation"`
		Checklist string   `json:"checklist,omitempty"`
		AuxToken  string   `json:"aux_token,omitempty"`
	}
}

type generateOutput struct {
	Body generation.Outcome
}

type patchInput struct {
	ID   string `path:"id"`
	Body struct {
		Instruction string `json:"instruction" minLength:"1"`
		Positions   []int  `json:"positions" minItems:"1" doc:"Test positions to revise"`
	}
}

type patchOutput struct {
	Body patch.Result
}

// ConversationBody is the patch conversation of a workspace.
type ConversationBody struct {
	State    patch.State     `json:"state"`
	Messages []patch.Message `json:"messages"`
}

type conversationOutput struct {
	Body ConversationBody
}

type exportInput struct {
	ID   string `path:"id"`
	Body struct {
		ProjectKey string `json:"project_key" minLength:"1"`
		FolderName string `json:"folder_name" minLength:"1"`
		Positions  []int  `json:"positions" minItems:"1"`
		Profile    string `json:"profile,omitempty" doc:"Connection profile; defaults to D"`
	}
}

type exportOutput struct {
	Body export.Report
}

// HistorySummary is one entry of the history listing.
type HistorySummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	TestsCount  int       `json:"tests_count"`
	ChecksCount int       `json:"checks_count"`
	Features    []string  `json:"features"`
	Current     bool      `json:"current" doc:"Whether the working set belongs to this item"`
}

type listHistoryOutput struct {
	Body struct {
		Items []HistorySummary `json:"items"`
	}
}

type historyItemOutput struct {
	Body history.Item
}

// --- Handlers ---

func (s *Server) open(ctx context.Context, id string) (*workspace.Workspace, error) {
	ws, err := s.workspaces.Open(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	return ws, nil
}

func (s *Server) handleGetRecords(ctx context.Context, input *workspaceInput) (*recordsOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	snap := ws.Store.Snapshot()
	return &recordsOutput{Body: RecordsBody{
		HistoryID:     ws.HistoryID(),
		Version:       ws.Store.Version(),
		Tests:         nonNil(snap.Tests),
		Checks:        nonNil(snap.Checks),
		RawChecksText: snap.RawChecksText,
	}}, nil
}

func (s *Server) handleGenerate(ctx context.Context, input *generateInput) (*generateOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	out, err := ws.Generate(ctx, protocol.GenerationInput{
		Features:  input.Body.Features,
		Checklist: input.Body.Checklist,
		AuxToken:  input.Body.AuxToken,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &generateOutput{Body: out}, nil
}

func (s *Server) handleGenerateChecks(ctx context.Context, input *generateChecksInput) (*generateOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	out, err := ws.Supplemental(ctx, protocol.GenerationInput{
		Features:  input.Body.Features,
		Checklist: input.Body.Checklist,
		AuxToken:  input.Body.AuxToken,
	}, input.Body.Positions)
	if err != nil {
		return nil, apiError(err)
	}
	return &generateOutput{Body: out}, nil
}

func (s *Server) handlePatch(ctx context.Context, input *patchInput) (*patchOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	res, err := ws.ApplyPatch(ctx, input.Body.Instruction, input.Body.Positions)
	if err != nil {
		return nil, apiError(err)
	}
	return &patchOutput{Body: *res}, nil
}

func (s *Server) handleGetConversation(ctx context.Context, input *workspaceInput) (*conversationOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &conversationOutput{Body: ConversationBody{
		State:    ws.Patch.State(),
		Messages: nonNil(ws.Patch.Messages()),
	}}, nil
}

func (s *Server) handleExport(ctx context.Context, input *exportInput) (*exportOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	report, err := ws.Export(ctx, export.Request{
		ProjectKey: input.Body.ProjectKey,
		FolderName: input.Body.FolderName,
		Positions:  input.Body.Positions,
		Profile:    input.Body.Profile,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &exportOutput{Body: *report}, nil
}

func (s *Server) handleListHistory(ctx context.Context, input *workspaceInput) (*listHistoryOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	items, err := ws.History.List(ctx)
	if err != nil {
		return nil, apiError(err)
	}

	current := ws.HistoryID()
	out := &listHistoryOutput{}
	out.Body.Items = make([]HistorySummary, 0, len(items))
	for _, it := range items {
		out.Body.Items = append(out.Body.Items, HistorySummary{
			ID:          it.ID,
			CreatedAt:   it.CreatedAt,
			TestsCount:  it.TestsCount,
			ChecksCount: it.ChecksCount,
			Features:    nonNil(it.Params.Features),
			Current:     it.ID == current,
		})
	}
	return out, nil
}

func (s *Server) handleGetHistoryItem(ctx context.Context, input *historyItemInput) (*historyItemOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	item, err := ws.History.Get(ctx, input.ItemID)
	if err != nil {
		return nil, apiError(err)
	}
	return &historyItemOutput{Body: item}, nil
}

func (s *Server) handleLoadHistoryItem(ctx context.Context, input *historyItemInput) (*historyItemOutput, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	item, err := ws.LoadHistory(ctx, input.ItemID)
	if err != nil {
		return nil, apiError(err)
	}
	return &historyItemOutput{Body: item}, nil
}

func (s *Server) handleDeleteHistoryItem(ctx context.Context, input *historyItemInput) (*struct{}, error) {
	ws, err := s.open(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := ws.DeleteHistory(ctx, input.ItemID); err != nil {
		return nil, apiError(err)
	}
	return nil, nil
}

// apiError maps a coded error onto the matching HTTP status. Unclassified
// errors are logged and reported as 500.
func apiError(err error) error {
	status := cgerr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "code", cgerr.CodeOf(err), "error", err)
		return huma.Error500InternalServerError("internal error", err)
	}
	return huma.NewError(status, err.Error())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
