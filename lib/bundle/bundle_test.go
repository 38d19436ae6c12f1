// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greytar-foundation/greytar/lib/archive"
	"github.com/greytar-foundation/greytar/lib/machine"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildAndExtract(t *testing.T, b *Builder) *machine.Memory {
	t.Helper()
	w, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m := machine.NewMemory("/home/user")
	d := archive.NewDecoder(m)
	d.SetLogger(quietLogger())
	if err := d.DecodeBytes(w.Assemble()); err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	return m
}

func mustContent(t *testing.T, m *machine.Memory, path string) string {
	t.Helper()
	file, ok := m.File(path)
	if !ok {
		t.Fatalf("%s does not exist", path)
	}
	content, err := file.Content()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return content
}

func TestJSONCDescriptorEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "motd.txt", "welcome\n")
	descriptor := writeFile(t, dir, "bundle.jsonc", `[
		// Comments and trailing commas are fine.
		{"type": "folder", "path": "~/srv"},
		{"type": "file", "path": "~/srv/motd.txt", "local": "motd.txt"},
		{"type": "file", "path": "~/srv/inline.txt", "contents": "inline"},
		{"type": "user", "user": "svc", "password": "pw"},
		{"type": "chmod", "path": "~/srv", "permissions": "o-rwx", "recursive": true},
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)

	if got := mustContent(t, m, "/home/user/srv/motd.txt"); got != "welcome\n" {
		t.Fatalf("motd content %q", got)
	}
	if got := mustContent(t, m, "/home/user/srv/inline.txt"); got != "inline" {
		t.Fatalf("inline content %q", got)
	}
	if !m.HasUser("svc") {
		t.Fatalf("user missing")
	}
	if perms, ok := m.Perms("/home/user/srv/motd.txt"); !ok || perms != "o-rwx" {
		t.Fatalf("perms %q %v", perms, ok)
	}
}

func TestYAMLDescriptor(t *testing.T) {
	dir := t.TempDir()
	descriptor := writeFile(t, dir, "bundle.yaml", strings.Join([]string{
		`- type: file`,
		`  path: ~/cfg/app.cfg`,
		`  contents: "port=80"`,
		`- type: group`,
		`  user: root`,
		`  group: admins`,
	}, "\n"))

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)
	if got := mustContent(t, m, "/home/user/cfg/app.cfg"); got != "port=80" {
		t.Fatalf("content %q", got)
	}
	if !m.InGroup("root", "admins") {
		t.Fatalf("group membership missing")
	}
}

func TestImportRewriting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.src", "helper = 1\n")
	writeFile(t, dir, "main.src", "import_code(\"lib.src\")\nmain = helper\n")
	descriptor := writeFile(t, dir, "bundle.json", `[
		{"type": "source", "path": "~/src/main.src", "local": "main.src"}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)

	// The import line points at the imported file's packed location,
	// with the placeholder resolved to the extracting user's home.
	main := mustContent(t, m, "/home/user/src/main.src")
	if !strings.Contains(main, `import_code("/home/user/.tmp/src/lib.src")`) {
		t.Fatalf("import not rewritten: %q", main)
	}
	if got := mustContent(t, m, "/home/user/.tmp/src/lib.src"); got != "helper = 1\n" {
		t.Fatalf("imported file content %q", got)
	}
}

func TestCommentStripping(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain comment", `x = 1 // set x`, "x = 1"},
		{"no comment", `x = 1`, "x = 1"},
		{"slashes inside string", `url = "http://host"`, `url = "http://host"`},
		{"comment after string", `url = "a" // note`, `url = "a"`},
		{"separated slashes", `a = b / c / d`, `a = b / c / d`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := stripTrailingComment(test.in); got != test.want {
				t.Fatalf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestSourceCleaningKeepsBlankLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.src", "a = 1 // one\n\nb = 2\n")
	descriptor := writeFile(t, dir, "bundle.json", `[
		{"type": "source", "path": "~/main.src", "local": "main.src"}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)
	if got := mustContent(t, m, "/home/user/main.src"); got != "a = 1\n\nb = 2\n" {
		t.Fatalf("cleaned content %q", got)
	}
}

func TestDirtyImportNameRelocated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "my lib.src", "x = 1\n")
	writeFile(t, dir, "main.src", "import_code(\"my lib.src\")\n")
	descriptor := writeFile(t, dir, "bundle.json", `[
		{"type": "source", "path": "~/main.src", "local": "main.src"}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)
	if _, ok := m.File("/home/user/.tmp/src/dirtyX/myXlib.src"); !ok {
		t.Fatalf("dirty import was not relocated to a sanitized path")
	}
	main := mustContent(t, m, "/home/user/main.src")
	if !strings.Contains(main, `import_code("/home/user/.tmp/src/dirtyX/myXlib.src")`) {
		t.Fatalf("import line %q", main)
	}
}

func TestCompileStagesTestsAndBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tool.src", "main = 1\n")
	writeFile(t, dir, "tests/check_a.src", "assert(1)\n")
	writeFile(t, dir, "tests/check_b.src", "assert(2)\n")
	descriptor := writeFile(t, dir, "bundle.json", `[
		{"type": "compile", "local": "tool.src", "target": "~/bin/tool",
		 "local-tests": "tests/check_*.src"}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	w, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw := w.Assemble()

	infos, err := archive.InspectBytes(raw)
	if err != nil {
		t.Fatalf("InspectBytes: %v", err)
	}
	tests, builds := 0, 0
	var lastTest, firstBuild int
	for i, info := range infos {
		switch info.Type {
		case archive.BlockTest:
			tests++
			lastTest = i
		case archive.BlockBuild:
			builds++
			if firstBuild == 0 {
				firstBuild = i
			}
		}
	}
	if tests != 2 || builds != 1 {
		t.Fatalf("got %d tests and %d builds, want 2 and 1", tests, builds)
	}
	if lastTest > firstBuild {
		t.Fatalf("tests must run before the build")
	}

	m := machine.NewMemory("/home/user")
	d := archive.NewDecoder(m)
	d.SetLogger(quietLogger())
	if err := d.DecodeBytes(raw); err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if _, ok := m.File("/home/user/bin/tool"); !ok {
		t.Fatalf("built artifact missing")
	}
	if len(m.Launches()) != 2 {
		t.Fatalf("expected 2 test launches, got %d", len(m.Launches()))
	}
}

func TestChownOwnerSplit(t *testing.T) {
	dir := t.TempDir()
	descriptor := writeFile(t, dir, "bundle.json", `[
		{"type": "file", "path": "~/srv/app.cfg", "contents": "x"},
		{"type": "user", "user": "svc", "password": "pw"},
		{"type": "group", "user": "svc", "group": "staff"},
		{"type": "chown", "path": "~/srv", "owner": "svc:staff", "recursive": true}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)
	user, group, ok := m.Owner("/home/user/srv/app.cfg")
	if !ok || user != "svc" || group != "staff" {
		t.Fatalf("ownership %q:%q %v", user, group, ok)
	}
}

func TestBundleIncludesAreCycleSafe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[
		{"type": "file", "path": "~/a.txt", "contents": "a"},
		{"type": "bundle", "local": "b.json"}
	]`)
	writeFile(t, dir, "b.json", `[
		{"type": "file", "path": "~/b.txt", "contents": "b"},
		{"type": "bundle", "local": "a.json"}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(filepath.Join(dir, "a.json")); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	m := buildAndExtract(t, b)
	if got := mustContent(t, m, "/home/user/a.txt"); got != "a" {
		t.Fatalf("a.txt %q", got)
	}
	if got := mustContent(t, m, "/home/user/b.txt"); got != "b" {
		t.Fatalf("b.txt %q", got)
	}
}

func TestDescriptorErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown type",
			body: `[{"type": "teleport"}]`,
			want: "unknown entry type",
		},
		{
			name: "file without contents",
			body: `[{"type": "file", "path": "~/x"}]`,
			want: "'contents' or 'local'",
		},
		{
			name: "chown with owner and user",
			body: `[{"type": "chown", "path": "~/x", "owner": "a", "user": "b"}]`,
			want: "not both",
		},
		{
			name: "duplicate game file",
			body: `[
				{"type": "file", "path": "~/x", "contents": "1"},
				{"type": "file", "path": "~/x", "contents": "2"}
			]`,
			want: "duplicate game file",
		},
		{
			name: "test without matches",
			body: `[{"type": "test", "name": "t", "local": "missing_*.src"}]`,
			want: "no files matching",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			descriptor := writeFile(t, dir, test.name+".json", test.body)
			b := NewBuilder()
			b.SetLogger(quietLogger())
			err := b.ProcessFile(descriptor)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("got %v, want error containing %q", err, test.want)
			}
		})
	}
}

func TestStringListForms(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "t1.src", "a\n")
	writeFile(t, dir, "t2.src", "b\n")
	descriptor := writeFile(t, dir, "bundle.json", `[
		{"type": "test", "name": "multi", "local": ["t1.src", "t2.src"]}
	]`)

	b := NewBuilder()
	b.SetLogger(quietLogger())
	if err := b.ProcessFile(descriptor); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	w, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	infos, err := archive.InspectBytes(w.Assemble())
	if err != nil {
		t.Fatalf("InspectBytes: %v", err)
	}
	tests := 0
	for _, info := range infos {
		if info.Type == archive.BlockTest {
			tests++
		}
	}
	if tests != 2 {
		t.Fatalf("got %d tests, want 2", tests)
	}
}
