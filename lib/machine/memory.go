// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"
	"strings"
)

// Launch records one simulated process start.
type Launch struct {
	Command string
	Args    []string
}

// Memory is an in-memory simulated machine. It implements System with
// a plain tree of nodes, user/group maps, and a launch log. Compile
// produces an executable entry named after the source file with its
// extension stripped, which is the contract the interpreter's build
// and test operations rely on.
//
// Memory is scoped to one decode session and is not safe for
// concurrent use; decoding is strictly sequential.
type Memory struct {
	root *node
	home string

	users  map[string]string          // user → password
	groups map[string]map[string]bool // group → members

	launches []Launch

	failCompile map[string]string
	failLaunch  map[string]string
}

type node struct {
	name     string
	dir      bool
	content  string
	perms    string
	owner    string
	group    string
	binary   bool
	parent   *node
	children map[string]*node
}

// NewMemory creates a simulated machine with the given home directory
// (for example "/home/user") already present.
func NewMemory(home string) *Memory {
	m := &Memory{
		root: &node{
			name:     "",
			dir:      true,
			children: make(map[string]*node),
		},
		home:        strings.TrimSuffix(home, "/"),
		users:       make(map[string]string),
		groups:      make(map[string]map[string]bool),
		failCompile: make(map[string]string),
		failLaunch:  make(map[string]string),
	}
	m.mkdirAll(m.home)
	return m
}

// Home returns the home directory configured at construction.
func (m *Memory) Home() string { return m.home }

// SetCompileFailure makes Compile fail for the given source path.
func (m *Memory) SetCompileFailure(sourcePath, message string) {
	m.failCompile[sourcePath] = message
}

// SetLaunchFailure makes Launch fail for the given command path. Used
// by tests to simulate a non-success exit.
func (m *Memory) SetLaunchFailure(command, message string) {
	m.failLaunch[command] = message
}

// Launches returns the simulated launch log in order.
func (m *Memory) Launches() []Launch {
	out := make([]Launch, len(m.launches))
	copy(out, m.launches)
	return out
}

// File looks up a path.
func (m *Memory) File(path string) (File, bool) {
	n := m.lookup(path)
	if n == nil {
		return nil, false
	}
	return &memFile{m: m, n: n}, true
}

// CreateFile creates an empty file inside parent.
func (m *Memory) CreateFile(parent, name string) error {
	dir := m.lookup(parent)
	if dir == nil || !dir.dir {
		return fmt.Errorf("parent folder %q does not exist", parent)
	}
	if _, ok := dir.children[name]; ok {
		return fmt.Errorf("%s: %w", Join(parent, name), ErrExists)
	}
	dir.attach(&node{name: name})
	return nil
}

// CreateFolder creates a folder inside parent. ErrExists when the
// folder is already present.
func (m *Memory) CreateFolder(parent, name string) error {
	dir := m.lookup(parent)
	if dir == nil || !dir.dir {
		return fmt.Errorf("parent folder %q does not exist", parent)
	}
	if existing, ok := dir.children[name]; ok {
		if existing.dir {
			return fmt.Errorf("%s: %w", Join(parent, name), ErrExists)
		}
		return fmt.Errorf("%s exists and is a file", Join(parent, name))
	}
	dir.attach(&node{name: name, dir: true, children: make(map[string]*node)})
	return nil
}

// CreateUser creates a user account and its home directory.
func (m *Memory) CreateUser(name, password string) error {
	if _, ok := m.users[name]; ok {
		return fmt.Errorf("user %q: %w", name, ErrExists)
	}
	m.users[name] = password
	m.mkdirAll("/home/" + name)
	return nil
}

// CreateGroup adds user to group.
func (m *Memory) CreateGroup(user, group string) error {
	members, ok := m.groups[group]
	if !ok {
		members = make(map[string]bool)
		m.groups[group] = members
	}
	if members[user] {
		return fmt.Errorf("user %q in group %q: %w", user, group, ErrExists)
	}
	members[user] = true
	return nil
}

// DeleteUser removes a user account, and its home directory when
// removeHome is set.
func (m *Memory) DeleteUser(name string, removeHome bool) error {
	if _, ok := m.users[name]; !ok {
		return fmt.Errorf("user %q does not exist", name)
	}
	delete(m.users, name)
	if removeHome {
		if home := m.lookup("/home/" + name); home != nil {
			delete(home.parent.children, home.name)
		}
	}
	return nil
}

// DeleteGroup removes user from group.
func (m *Memory) DeleteGroup(user, group string) error {
	members, ok := m.groups[group]
	if !ok || !members[user] {
		return fmt.Errorf("user %q is not in group %q", user, group)
	}
	delete(members, user)
	if len(members) == 0 {
		delete(m.groups, group)
	}
	return nil
}

// HasUser reports whether the user account exists.
func (m *Memory) HasUser(name string) bool {
	_, ok := m.users[name]
	return ok
}

// InGroup reports whether user is a member of group.
func (m *Memory) InGroup(user, group string) bool {
	return m.groups[group][user]
}

// Compile compiles sourcePath into outDir. The simulated artifact is
// an executable entry named after the source file minus extension.
func (m *Memory) Compile(sourcePath, outDir string) error {
	if message, ok := m.failCompile[sourcePath]; ok {
		return fmt.Errorf("compile %s: %s", sourcePath, message)
	}
	src := m.lookup(sourcePath)
	if src == nil || src.dir {
		return fmt.Errorf("compile: source %q does not exist", sourcePath)
	}
	out := m.lookup(outDir)
	if out == nil || !out.dir {
		return fmt.Errorf("compile: output folder %q does not exist", outDir)
	}
	out.attach(&node{
		name:    stripExt(src.name),
		content: src.content,
		binary:  true,
	})
	return nil
}

// Launch starts command and waits for it. Commands registered with
// SetLaunchFailure exit non-success; everything else succeeds.
func (m *Memory) Launch(command string, args []string) error {
	n := m.lookup(command)
	if n == nil || n.dir {
		return fmt.Errorf("launch: %q does not exist", command)
	}
	m.launches = append(m.launches, Launch{Command: command, Args: args})
	if message, ok := m.failLaunch[command]; ok {
		return fmt.Errorf("launch %s: %s", command, message)
	}
	return nil
}

// lookup resolves a normalized absolute path to a node, nil when any
// segment is missing.
func (m *Memory) lookup(path string) *node {
	n := m.root
	for _, segment := range splitPath(path) {
		if !n.dir {
			return nil
		}
		child, ok := n.children[segment]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// mkdirAll creates every missing folder along path.
func (m *Memory) mkdirAll(path string) {
	n := m.root
	for _, segment := range splitPath(path) {
		child, ok := n.children[segment]
		if !ok {
			child = &node{name: segment, dir: true, children: make(map[string]*node)}
			n.attach(child)
		}
		n = child
	}
}

func (n *node) attach(child *node) {
	child.parent = n
	n.children[child.name] = child
}

func (n *node) path() string {
	if n.parent == nil {
		return "/"
	}
	var segments []string
	for at := n; at.parent != nil; at = at.parent {
		segments = append(segments, at.name)
	}
	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segments[i])
	}
	return b.String()
}

func splitPath(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

func stripExt(name string) string {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}

// memFile is a handle into a Memory tree.
type memFile struct {
	m *Memory
	n *node
}

func (f *memFile) Path() string { return f.n.path() }
func (f *memFile) IsDir() bool  { return f.n.dir }

func (f *memFile) Content() (string, error) {
	if f.n.dir {
		return "", fmt.Errorf("%s is a folder", f.n.path())
	}
	return f.n.content, nil
}

func (f *memFile) SetContent(content string) error {
	if f.n.dir {
		return fmt.Errorf("%s is a folder", f.n.path())
	}
	f.n.content = content
	return nil
}

func (f *memFile) Chmod(perms string, recursive bool) error {
	f.walk(recursive, func(n *node) { n.perms = perms })
	return nil
}

func (f *memFile) SetOwner(user string, recursive bool) error {
	f.walk(recursive, func(n *node) { n.owner = user })
	return nil
}

func (f *memFile) SetGroup(group string, recursive bool) error {
	f.walk(recursive, func(n *node) { n.group = group })
	return nil
}

func (f *memFile) walk(recursive bool, apply func(*node)) {
	var visit func(*node)
	visit = func(n *node) {
		apply(n)
		if recursive && n.dir {
			for _, child := range n.children {
				visit(child)
			}
		}
	}
	visit(f.n)
}

func (f *memFile) Copy(dir, name string) error {
	target := f.m.lookup(dir)
	if target == nil || !target.dir {
		return fmt.Errorf("copy: target folder %q does not exist", dir)
	}
	clone := f.n.clone()
	clone.name = name
	target.attach(clone)
	return nil
}

func (f *memFile) Move(dir, name string) error {
	target := f.m.lookup(dir)
	if target == nil || !target.dir {
		return fmt.Errorf("move: target folder %q does not exist", dir)
	}
	if f.n.parent == nil {
		return fmt.Errorf("move: cannot move the root folder")
	}
	delete(f.n.parent.children, f.n.name)
	f.n.name = name
	target.attach(f.n)
	return nil
}

func (f *memFile) Delete() error {
	if f.n.parent == nil {
		return fmt.Errorf("delete: cannot delete the root folder")
	}
	delete(f.n.parent.children, f.n.name)
	return nil
}

func (n *node) clone() *node {
	out := &node{
		name:    n.name,
		dir:     n.dir,
		content: n.content,
		perms:   n.perms,
		owner:   n.owner,
		group:   n.group,
		binary:  n.binary,
	}
	if n.dir {
		out.children = make(map[string]*node, len(n.children))
		for _, child := range n.children {
			out.attach(child.clone())
		}
	}
	return out
}

// Perms returns the permission string of a path, for test assertions.
func (m *Memory) Perms(path string) (string, bool) {
	n := m.lookup(path)
	if n == nil {
		return "", false
	}
	return n.perms, true
}

// Owner returns the owning user and group of a path.
func (m *Memory) Owner(path string) (user, group string, ok bool) {
	n := m.lookup(path)
	if n == nil {
		return "", "", false
	}
	return n.owner, n.group, true
}
