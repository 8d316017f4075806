// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

// Package protocol implements the generation-exchange XML dialect: request
// envelopes sent to the generation flow and the dual-strategy parser that
// turns a (possibly malformed) model response into test and check records.
//
// Requests are assembled as text rather than marshalled so that the element
// layout matches what the remote flow prompt expects byte for byte.
package protocol
