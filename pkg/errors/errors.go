// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreKVNotFound         Code = "store.kv.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeProtocolRequestInvalid Code = "protocol.request.invalid_input"
	CodeProtocolParseMalformed Code = "protocol.parse.malformed"

	CodeRecordPositionNotFound Code = "record.position.not_found"

	CodePatchRequestInvalid         Code = "patch.request.invalid_input"
	CodePatchSessionBusy            Code = "patch.session.busy"
	CodePatchReconcileCountMismatch Code = "patch.reconcile.count_mismatch"
	CodePatchReconcileMissingLabel  Code = "patch.reconcile.missing_label"
	CodePatchReconcileAmbiguous     Code = "patch.reconcile.ambiguous_label"
	CodePatchReconcileUnresolvable  Code = "patch.reconcile.unresolvable"
	CodePatchReconcileForeign       Code = "patch.reconcile.foreign_position"
	CodePatchReconcileDuplicate     Code = "patch.reconcile.duplicate_position"
	CodePatchReconcileMissingTarget Code = "patch.reconcile.missing_target"
	CodePatchReconcileEmpty         Code = "patch.reconcile.no_fragments"
	CodePatchApplyConflict          Code = "patch.apply.conflict"

	CodeGenerationRequestInvalid Code = "generation.request.invalid_input"

	CodeExportRequestInvalid Code = "export.request.invalid_input"
	CodeExportSessionBusy    Code = "export.session.busy"

	CodeTransportRequestInvalid       Code = "transport.request.invalid_input"
	CodeTransportUpstreamFailure      Code = "transport.upstream.failure"
	CodeTransportUpstreamContentType  Code = "transport.upstream.content_type"
	CodeTransportUpstreamMalformed    Code = "transport.upstream.malformed_json"
	CodeTransportProviderNotSupported Code = "transport.provider.unsupported"

	CodeHistoryItemNotFound  Code = "history.item.not_found"
	CodeHistoryDecodeFailure Code = "history.decode.failure"

	CodeWorkspaceOpenFailure  Code = "workspace.open.failure"
	CodeWorkspaceCloseFailure Code = "workspace.close.failure"
	CodeWorkspaceIDInvalid    Code = "workspace.id.invalid"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"

	CodeCLIRequestFailure Code = "cli.request.failure"
	CodeCLISetupFailure   Code = "cli.setup.failure"
	CodeCLIInputInvalid   Code = "cli.input.invalid"

	CodeSecretInvalidInput   Code = "secret.invalid_input"
	CodeSecretNotFound       Code = "secret.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldWorkspaceID(value string) Attr {
	return Field("workspace_id", value)
}

func FieldPosition(value int) Attr {
	return Field("position", value)
}

func FieldLabel(value string) Attr {
	return Field("label", value)
}

func FieldRoute(value string) Attr {
	return Field("route", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

func IsBusy(err error) bool {
	return reason(CodeOf(err)) == "busy"
}

// IsReconcileFailure reports whether err rejected a patch response. The store
// is guaranteed untouched when this is true.
func IsReconcileFailure(err error) bool {
	code := string(CodeOf(err))
	return strings.HasPrefix(code, "patch.reconcile.") || strings.HasPrefix(code, "patch.apply.")
}

func IsUpstreamFailure(err error) bool {
	return strings.Contains(string(CodeOf(err)), ".upstream.")
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsBusy(err):
		return http.StatusConflict
	case IsReconcileFailure(err):
		return http.StatusUnprocessableEntity
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
