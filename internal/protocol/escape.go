// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package protocol

import "strings"

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape replaces the five XML-significant characters with entity references
// so that arbitrary user text can be interpolated into element content or
// attribute values.
func Escape(s string) string {
	return escaper.Replace(s)
}
