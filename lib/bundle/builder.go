// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/greytar-foundation/greytar/lib/archive"
)

// Builder accumulates descriptor entries and assembles them into an
// archive writer. Build targets that name a packed source are
// resolved late, after import rewriting has decided where every
// source file actually lives.
type Builder struct {
	files   sourceSet
	folders []string
	users   []operation
	groups  []operation
	ops     []operation

	// visited guards against descriptor include cycles.
	visited map[string]bool

	logger *slog.Logger
}

// operation is an archive operation whose emission may depend on
// resolved source locations.
type operation func(*archive.Writer) error

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		visited: make(map[string]bool),
		logger:  slog.Default(),
	}
}

// SetLogger replaces the progress logger.
func (b *Builder) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

// ProcessFile loads a descriptor file and applies its entries. Local
// paths inside the descriptor are relative to the descriptor's
// directory. A descriptor included more than once is processed only
// the first time.
func (b *Builder) ProcessFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if b.visited[abs] {
		b.logger.Debug("descriptor already processed", "path", path)
		return nil
	}
	b.visited[abs] = true

	entries, err := LoadEntries(path)
	if err != nil {
		return err
	}
	contextDir := filepath.Dir(path)
	for i, entry := range entries {
		if err := b.apply(entry, contextDir); err != nil {
			return fmt.Errorf("%s entry %d (%s): %w", path, i+1, entry.Type, err)
		}
	}
	return nil
}

// Apply adds one entry. contextDir anchors any local paths.
func (b *Builder) Apply(entry Entry, contextDir string) error {
	return b.apply(entry, contextDir)
}

func (b *Builder) apply(entry Entry, contextDir string) error {
	switch entry.Type {
	case "folder":
		if entry.Path == "" {
			return fmt.Errorf("requires 'path'")
		}
		b.folders = append(b.folders, normalizeSlashes(entry.Path))
		return nil

	case "file":
		if entry.Path == "" {
			return fmt.Errorf("requires 'path' and one of 'contents' or 'local'")
		}
		if entry.Contents != "" {
			return b.files.addContents(entry.Path, entry.Contents)
		}
		if len(entry.Local) != 1 {
			return fmt.Errorf("requires 'path' and one of 'contents' or 'local'")
		}
		return b.files.addTextFile(entry.Path, filepath.Join(contextDir, entry.Local[0]))

	case "source":
		if entry.Path == "" || len(entry.Local) != 1 {
			return fmt.Errorf("requires 'path' and 'local'")
		}
		_, err := b.files.addSourceFile(entry.Path, filepath.Join(contextDir, entry.Local[0]))
		return err

	case "test":
		return b.applyTest(entry.Name, entry.Local, contextDir)

	case "build":
		if entry.Source == "" || entry.Target == "" {
			return fmt.Errorf("requires 'source' and 'target'")
		}
		return b.addBuild(entry.Source, entry.Target)

	case "compile":
		return b.applyCompile(entry, contextDir)

	case "user":
		if entry.User == "" || entry.Password == "" {
			return fmt.Errorf("requires 'user' and 'password'")
		}
		user, password := entry.User, entry.Password
		b.users = append(b.users, func(w *archive.Writer) error {
			return w.AddUser(user, password)
		})
		return nil

	case "group":
		if entry.User == "" || entry.Group == "" {
			return fmt.Errorf("requires 'user' and 'group'")
		}
		user, group := entry.User, entry.Group
		b.groups = append(b.groups, func(w *archive.Writer) error {
			return w.AddGroup(user, group)
		})
		return nil

	case "rm-user":
		if entry.User == "" {
			return fmt.Errorf("requires 'user'")
		}
		user, removeHome := entry.User, entry.RemoveHome
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddRemoveUser(user, removeHome)
		})
		return nil

	case "rm-group":
		if entry.User == "" || entry.Group == "" {
			return fmt.Errorf("requires 'user' and 'group'")
		}
		user, group := entry.User, entry.Group
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddRemoveGroup(user, group)
		})
		return nil

	case "chmod":
		if entry.Path == "" || entry.Permissions == "" {
			return fmt.Errorf("requires 'path' and 'permissions'")
		}
		path, perms, recursive := normalizeSlashes(entry.Path), entry.Permissions, entry.Recursive
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddChmod(path, perms, recursive)
		})
		return nil

	case "chown":
		return b.applyChown(entry)

	case "chgroup":
		if entry.Path == "" || entry.Group == "" {
			return fmt.Errorf("requires 'path' and 'group'")
		}
		path, group, recursive := normalizeSlashes(entry.Path), entry.Group, entry.Recursive
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddChgroup(path, group, recursive)
		})
		return nil

	case "exec", "run":
		if entry.Command == "" {
			return fmt.Errorf("requires 'cmd' and an optional 'arguments' list")
		}
		command, args := entry.Command, []string(entry.Arguments)
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddLaunch(command, args...)
		})
		return nil

	case "copy", "cp":
		return b.addTransfer(entry, false)

	case "move", "mv", "rename", "ren":
		return b.addTransfer(entry, true)

	case "delete", "del", "rm":
		if entry.Path == "" {
			return fmt.Errorf("requires 'path'")
		}
		path := normalizeSlashes(entry.Path)
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddDelete(path)
		})
		return nil

	case "about":
		// Metadata only; nothing is packed.
		return nil

	case "bundle":
		if len(entry.Local) != 1 {
			return fmt.Errorf("requires 'local'")
		}
		return b.ProcessFile(filepath.Join(contextDir, entry.Local[0]))

	default:
		return fmt.Errorf("unknown entry type %q", entry.Type)
	}
}

// applyTest expands glob patterns and schedules one test per match.
// The test compiles at extraction time, so matched files are packed
// as sources with synthetic locations.
func (b *Builder) applyTest(name string, patterns StringList, contextDir string) error {
	if name == "" || len(patterns) == 0 {
		return fmt.Errorf("requires 'name' and 'local'")
	}
	count := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(contextDir, pattern))
		if err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			file, err := b.files.addSourceFile("", match)
			if err != nil {
				return err
			}
			testName := name + "-" + stripExtension(filepath.Base(match))
			b.logger.Debug("adding test", "test", testName, "file", match)
			b.ops = append(b.ops, func(w *archive.Writer) error {
				return w.AddTest(testName, packedPath(file))
			})
			count++
		}
	}
	if count == 0 {
		return fmt.Errorf("found no files matching %v", []string(patterns))
	}
	return nil
}

// applyCompile is the source + test + build combination. The source
// is staged under the scratch directory; tests run before the build.
func (b *Builder) applyCompile(entry Entry, contextDir string) error {
	if len(entry.Local) != 1 || entry.Target == "" {
		return fmt.Errorf("requires 'local' and 'target', and optionally 'local-tests'")
	}
	local := entry.Local[0]
	base := filepath.Base(local)
	sourceName := archive.ScratchDir + "/build.source/" + base
	if _, err := b.files.addSourceFile(sourceName, filepath.Join(contextDir, local)); err != nil {
		return err
	}
	if len(entry.LocalTests) > 0 {
		if err := b.applyTest(stripExtension(base), entry.LocalTests, contextDir); err != nil {
			return err
		}
	}
	return b.addBuild(sourceName, entry.Target)
}

// addBuild schedules a build. When the source names a packed file,
// the emitted block uses wherever that file ends up after import
// rewriting; otherwise the source path is taken literally (the file
// may be produced by an earlier operation on the machine).
func (b *Builder) addBuild(source, target string) error {
	target = normalizeSlashes(target)
	targetDir, targetName := splitTarget(target)
	if targetName == "" {
		return fmt.Errorf("build target %q has no file name", target)
	}
	b.folders = append(b.folders, targetDir)

	if file := b.files.byRequestedPath(source); file != nil {
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddBuild(packedPath(file), targetDir, targetName)
		})
		return nil
	}
	source = normalizeSlashes(source)
	b.ops = append(b.ops, func(w *archive.Writer) error {
		return w.AddBuild(source, targetDir, targetName)
	})
	return nil
}

func (b *Builder) applyChown(entry Entry) error {
	if entry.Path == "" {
		return fmt.Errorf("requires 'path' and one of 'owner' or 'user'")
	}
	path, recursive := normalizeSlashes(entry.Path), entry.Recursive
	switch {
	case entry.Owner != "" && entry.User != "":
		return fmt.Errorf("must have one of 'owner' or 'user', but not both")

	case entry.Owner != "":
		// "user:group" sets both; a bare owner sets just the user.
		user, group, split := strings.Cut(entry.Owner, ":")
		if split && user != "" && group != "" {
			b.ops = append(b.ops, func(w *archive.Writer) error {
				if err := w.AddChown(path, user, recursive); err != nil {
					return err
				}
				return w.AddChgroup(path, group, recursive)
			})
			return nil
		}
		owner := entry.Owner
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddChown(path, owner, recursive)
		})
		return nil

	case entry.User != "":
		user := entry.User
		b.ops = append(b.ops, func(w *archive.Writer) error {
			return w.AddChown(path, user, recursive)
		})
		return nil

	default:
		return fmt.Errorf("requires 'path' and one of 'owner' or 'user'")
	}
}

func (b *Builder) addTransfer(entry Entry, move bool) error {
	if entry.From == "" || entry.To == "" {
		return fmt.Errorf("requires 'from' and 'to'")
	}
	source := normalizeSlashes(entry.From)
	targetDir, targetName := splitTarget(normalizeSlashes(entry.To))
	if targetName == "" {
		return fmt.Errorf("target %q has no file name", entry.To)
	}
	b.folders = append(b.folders, targetDir)
	b.ops = append(b.ops, func(w *archive.Writer) error {
		if move {
			return w.AddMove(source, targetDir, targetName)
		}
		return w.AddCopy(source, targetDir, targetName)
	})
	return nil
}

// Build resolves all files and assembles the archive writer.
func (b *Builder) Build() (*archive.Writer, error) {
	w := archive.NewWriter()
	resolved, err := b.files.resolve()
	if err != nil {
		return nil, err
	}
	for _, file := range resolved {
		if err := w.AddFile(file.path, file.contents); err != nil {
			return nil, fmt.Errorf("packing %s: %w", file.path, err)
		}
	}
	for _, folder := range b.folders {
		if err := w.AddFolder(folder); err != nil {
			return nil, fmt.Errorf("folder %s: %w", folder, err)
		}
	}
	for _, section := range [][]operation{b.users, b.groups, b.ops} {
		for _, add := range section {
			if err := add(w); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}

// packedPath is where a stored file ends up on the machine,
// preferring the synthetic location.
func packedPath(file *storedFile) string {
	if file.syntheticPath != "" {
		return file.syntheticPath
	}
	return file.requestedPath
}

func normalizeSlashes(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// splitTarget splits a target path into its folder and file name.
func splitTarget(path string) (string, string) {
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		return "", path
	}
	return path[:slash], path[slash+1:]
}

func stripExtension(name string) string {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}
