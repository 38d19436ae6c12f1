// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle turns declarative bundle descriptors into archives.
//
// A descriptor is a JSONC or YAML list of entries, each with a "type"
// key naming the operation and type-specific keys. Entries can pull
// in local files, declare users and permissions, schedule builds and
// tests, and include further descriptors.
//
// Source files get special treatment: import_code lines are rewritten
// to point at the packed location of the imported file, trailing //
// comments are stripped, and file names restricted by the target
// build tool are relocated to sanitized paths under the scratch
// directory.
package bundle
