// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"errors"
	"strings"
)

// ErrExists reports a creation conflict: the folder, user, or group
// membership already exists. The interpreter treats folder conflicts
// as informational no-ops and user/group conflicts as ignorable when
// its ignore flag is set; every other error is fatal.
var ErrExists = errors.New("already exists")

// System is the capability interface a target machine implements.
// Calls are synchronous and applied in archive order; there is no
// rollback of completed operations.
type System interface {
	// Home returns the home directory of the extracting user,
	// without a trailing slash.
	Home() string

	// File looks up a filesystem entry. The second result is false
	// when the path does not exist.
	File(path string) (File, bool)

	// CreateFile creates an empty file named name inside parent.
	// The parent folder must already exist.
	CreateFile(parent, name string) error

	// CreateFolder creates a folder named name inside parent.
	// Returns ErrExists when the folder is already present.
	CreateFolder(parent, name string) error

	// CreateUser creates a user account. Returns ErrExists when the
	// user is already present.
	CreateUser(name, password string) error

	// CreateGroup adds user to group, creating the group as needed.
	// Returns ErrExists when the membership is already present.
	CreateGroup(user, group string) error

	// DeleteUser removes a user account, and the user's home
	// directory when removeHome is set.
	DeleteUser(name string, removeHome bool) error

	// DeleteGroup removes user from group.
	DeleteGroup(user, group string) error

	// Compile compiles the source file at sourcePath and places the
	// resulting executable in outDir, named after the source file
	// with its extension stripped.
	Compile(sourcePath, outDir string) error

	// Launch starts command with the given arguments and waits for
	// it. A non-success exit is returned as an error.
	Launch(command string, args []string) error
}

// File is a handle to one filesystem entry.
type File interface {
	// Path returns the absolute path of the entry.
	Path() string

	// IsDir reports whether the entry is a folder.
	IsDir() bool

	// Content returns the file's content. Fails on folders.
	Content() (string, error)

	// SetContent replaces the file's content. Fails on folders.
	SetContent(content string) error

	// Chmod sets the permission string (e.g. "u+rwx"), descending
	// into children when recursive is set.
	Chmod(perms string, recursive bool) error

	// SetOwner changes the owning user, optionally recursively.
	SetOwner(user string, recursive bool) error

	// SetGroup changes the owning group, optionally recursively.
	SetGroup(group string, recursive bool) error

	// Copy copies the entry into dir under name.
	Copy(dir, name string) error

	// Move moves the entry into dir under name.
	Move(dir, name string) error

	// Delete removes the entry.
	Delete() error
}

// Join joins a parent directory and an entry name with exactly one
// slash. The archive encodes root-level parents as the empty string,
// so Join("", "tmp") is "/tmp".
func Join(dir, name string) string {
	dir = strings.TrimSuffix(dir, "/")
	return dir + "/" + name
}
