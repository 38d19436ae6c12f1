// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// Package machine defines the narrow capability interface the archive
// interpreter drives: filesystem entries, user and group management,
// compilation, and process launch on the target machine. The decoder
// never caches or mutates target state beyond issuing one-shot calls
// through this interface.
//
// The package also ships Memory, an in-memory simulated machine. It
// backs the decoder tests and the CLI's dry-run replay, where an
// archive is applied against a scratch machine to prove it extracts
// cleanly before anyone pastes it into the real terminal.
package machine
