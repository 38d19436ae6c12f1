// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/greytar-foundation/greytar/lib/archive"
)

// importPattern matches a whole import_code line. The imported path
// is relative to the importing file on the local filesystem.
var importPattern = regexp.MustCompile(`^\s*import_code\s*\(\s*"([^"]+)"\s*\)\s*$`)

// goodSourceNameChars is the character set the target build tool
// accepts in source file paths. Anything else forces relocation to a
// sanitized synthetic path.
const goodSourceNameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789./"

// storedFile tracks one file on its way into the archive. A file can
// have a requested in-game path (from the descriptor), a synthetic
// path (assigned when the requested name is unusable or missing), or
// both.
type storedFile struct {
	localPath     string
	contents      string
	loaded        bool
	homeReplaced  bool
	isSource      bool
	requestedPath string
	syntheticPath string
}

// resolvedFile is a finished (path, contents) pair ready for the
// archive writer.
type resolvedFile struct {
	path     string
	contents string
}

// sourceSet collects files and resolves imports between them.
type sourceSet struct {
	stored []*storedFile
}

func (s *sourceSet) byRequestedPath(gamePath string) *storedFile {
	for _, file := range s.stored {
		if file.requestedPath == gamePath && file.requestedPath != "" {
			return file
		}
	}
	return nil
}

func (s *sourceSet) byLocalPath(localPath string) *storedFile {
	for _, file := range s.stored {
		if file.localPath != "" && file.localPath == localPath {
			return file
		}
	}
	return nil
}

func (s *sourceSet) checkFresh(gamePath string) error {
	if gamePath != "" && s.byRequestedPath(gamePath) != nil {
		return fmt.Errorf("duplicate game file %q", gamePath)
	}
	return nil
}

// addContents registers inline text for a game path.
func (s *sourceSet) addContents(gamePath, contents string) error {
	if err := s.checkFresh(gamePath); err != nil {
		return err
	}
	s.stored = append(s.stored, &storedFile{
		contents:      contents,
		loaded:        true,
		requestedPath: gamePath,
	})
	return nil
}

// addTextFile registers a local file to pack verbatim.
func (s *sourceSet) addTextFile(gamePath, localPath string) error {
	if err := s.checkFresh(gamePath); err != nil {
		return err
	}
	if info, err := os.Stat(localPath); err != nil || info.IsDir() {
		return fmt.Errorf("could not find file %q", localPath)
	}
	s.stored = append(s.stored, &storedFile{
		localPath:     localPath,
		requestedPath: gamePath,
	})
	return nil
}

// addSourceFile registers a local source file. gamePath may be empty
// for files only referenced indirectly (imports, tests); those get a
// synthetic path during resolution.
func (s *sourceSet) addSourceFile(gamePath, localPath string) (*storedFile, error) {
	if err := s.checkFresh(gamePath); err != nil {
		return nil, err
	}
	if info, err := os.Stat(localPath); err != nil || info.IsDir() {
		return nil, fmt.Errorf("could not find file %q", localPath)
	}
	file := &storedFile{
		localPath:     filepath.Clean(localPath),
		homeReplaced:  true,
		isSource:      true,
		requestedPath: gamePath,
	}
	s.stored = append(s.stored, file)
	return file, nil
}

// resolve loads, cleans, and places every file, returning the final
// (path, contents) pairs. Imports discovered while cleaning are
// appended to the work queue and resolved too.
func (s *sourceSet) resolve() ([]resolvedFile, error) {
	var out []resolvedFile
	taken := make(map[string]bool)
	emit := func(path, contents string) {
		if path == "" || taken[path] {
			return
		}
		taken[path] = true
		out = append(out, resolvedFile{path: path, contents: contents})
	}

	for scanned := 0; scanned < len(s.stored); scanned++ {
		file := s.stored[scanned]
		if !file.loaded {
			raw, err := os.ReadFile(file.localPath)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", file.localPath, err)
			}
			file.contents = string(raw)
			file.loaded = true
		}
		if file.isSource {
			if err := s.cleanSource(file); err != nil {
				return nil, err
			}
			if file.requestedPath == "" && file.syntheticPath == "" {
				file.syntheticPath = s.placeSynthetic(file, taken)
			}
		}
		emit(file.requestedPath, file.contents)
		emit(file.syntheticPath, file.contents)
	}
	return out, nil
}

// placeSynthetic picks a free scratch path for a file that was never
// given an in-game location.
func (s *sourceSet) placeSynthetic(file *storedFile, taken map[string]bool) string {
	base := filepath.Base(file.localPath)
	if base == "" || base == "." {
		base = fmt.Sprintf("%d", len(s.stored))
	}
	for index := 0; ; index++ {
		candidate := s.cleanSourceName(
			fmt.Sprintf("%s/src/%d/%s", archive.ScratchDir, index, base))
		if !taken[candidate] {
			return candidate
		}
	}
}

// cleanSource rewrites import_code lines to the packed location of
// the imported file and strips trailing comments. Blank lines are
// kept so line numbers stay stable.
func (s *sourceSet) cleanSource(file *storedFile) error {
	lines := strings.Split(file.contents, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = stripTrailingComment(strings.TrimSpace(line))
		if match := importPattern.FindStringSubmatch(line); match != nil {
			imported, err := s.findImport(file, match[1])
			if err != nil {
				return fmt.Errorf("%s: %w", file.localPath, err)
			}
			target := imported.syntheticPath
			if strings.HasPrefix(target, "~/") {
				target = archive.HomePlaceholder + target[1:]
				file.homeReplaced = true
			}
			line = fmt.Sprintf("import_code(%q)", target)
		}
		cleaned = append(cleaned, line)
	}
	file.contents = strings.Join(cleaned, "\n")
	return nil
}

// findImport resolves an import_code target, registering the
// imported file as a new source when it is not already known, and
// makes sure it has a packed location.
func (s *sourceSet) findImport(referrer *storedFile, importedPath string) (*storedFile, error) {
	localPath := filepath.Clean(
		filepath.Join(filepath.Dir(referrer.localPath), importedPath))
	found := s.byLocalPath(localPath)
	if found == nil {
		added, err := s.addSourceFile("", localPath)
		if err != nil {
			return nil, fmt.Errorf("import %q: %w", importedPath, err)
		}
		found = added
	}
	if found.syntheticPath == "" {
		if found.requestedPath != "" {
			found.syntheticPath = s.cleanSourceName(found.requestedPath)
		} else {
			found.syntheticPath = s.cleanSourceName(
				archive.ScratchDir + "/src/" + filepath.ToSlash(importedPath))
		}
	}
	return found, nil
}

// cleanSourceName sanitizes a source file path. Paths with characters
// the build tool rejects are relocated under the scratch directory
// with the offending characters replaced.
func (s *sourceSet) cleanSourceName(gamePath string) string {
	if gamePath == "" {
		return ""
	}
	var cleaned strings.Builder
	removed := 0
	rest := gamePath
	if rest[0] == '~' {
		// The only position where ~ is allowed.
		cleaned.WriteByte('~')
		rest = rest[1:]
	}
	for _, c := range rest {
		if c < 0x80 && strings.ContainsRune(goodSourceNameChars, c) {
			cleaned.WriteRune(c)
		} else {
			cleaned.WriteByte('X')
			removed++
		}
	}
	if removed == 0 {
		return gamePath
	}

	name := cleaned.String()
	name = strings.TrimPrefix(name, archive.ScratchDir+"/")
	name = strings.TrimPrefix(name, "src/")
	name = strings.TrimPrefix(name, "~/")
	if name == "" {
		name = "X"
	}
	if name[0] != '/' {
		name = "/" + name
	}
	prefix := fmt.Sprintf("%s/src/dirty%s", archive.ScratchDir, strings.Repeat("X", removed))
	candidate := prefix + name
	for index := 0; s.syntheticTaken(candidate); index++ {
		candidate = fmt.Sprintf("%s%d%s", prefix, index+1, name)
	}
	return candidate
}

func (s *sourceSet) syntheticTaken(gamePath string) bool {
	for _, file := range s.stored {
		if file.syntheticPath == gamePath {
			return true
		}
	}
	return false
}

// stripTrailingComment removes a trailing // comment, respecting //
// inside double-quoted strings. Strings escape quotes by doubling
// them, so a simple in/out state machine is enough.
func stripTrailingComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	const (
		plain = iota
		inString
		halfSlash
	)
	state := plain
	for pos := 0; pos < len(line); pos++ {
		switch state {
		case plain:
			switch line[pos] {
			case '"':
				state = inString
			case '/':
				state = halfSlash
			}
		case inString:
			if line[pos] == '"' {
				state = plain
			}
		case halfSlash:
			if line[pos] == '/' {
				return strings.TrimRight(line[:pos-1], " \t")
			}
			state = plain
			if line[pos] == '"' {
				state = inString
			}
		}
	}
	return line
}
