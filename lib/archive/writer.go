// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/greytar-foundation/greytar/lib/armor"
	"github.com/greytar-foundation/greytar/lib/dict"
)

// Writer assembles an archive. Add operations in any order; Assemble
// produces a deterministic stream: header, string definitions in
// index order, folder creations sorted by path (parents before
// children), file contents, user operations, group operations, then
// the remaining operations in the order they were added.
//
// Strings are interned: each distinct value is defined once and
// referenced by index everywhere it is used. Paths under the home
// directory are interned as home-relative definitions so the same
// archive works for any extracting user.
type Writer struct {
	plainStrings map[string]uint16
	homeStrings  map[string]uint16
	relPaths     map[string]uint16

	// defs holds serialized definition blocks in index order.
	defs [][]byte

	folders map[string][]byte
	files   [][]byte
	users   [][]byte
	groups  [][]byte
	ops     [][]byte

	testCount uint16
}

// NewWriter creates an empty archive writer.
func NewWriter() *Writer {
	return &Writer{
		plainStrings: make(map[string]uint16),
		homeStrings:  make(map[string]uint16),
		relPaths:     make(map[string]uint16),
		folders:      make(map[string][]byte),
	}
}

func (w *Writer) indexCount() int {
	return len(w.plainStrings) + len(w.homeStrings) + len(w.relPaths)
}

func (w *Writer) nextIndex() (uint16, error) {
	count := w.indexCount()
	if count > 0xFFFF {
		return 0, fmt.Errorf("string table full (%d entries)", count)
	}
	return uint16(count), nil
}

// internString assigns an index to value and records its definition
// block. ASCII-clean values use the compact ASCII form; anything
// else is encoded as UTF-16. Runes outside the Basic Multilingual
// Plane cannot be represented.
func (w *Writer) internString(value string) (uint16, error) {
	if index, ok := w.plainStrings[value]; ok {
		return index, nil
	}
	index, err := w.nextIndex()
	if err != nil {
		return 0, err
	}
	payload, blockType, err := encodeString(index, value, BlockASCIIString, BlockUTF16String)
	if err != nil {
		return 0, err
	}
	w.plainStrings[value] = index
	w.defs = append(w.defs, appendBlock(nil, blockType, payload))
	return index, nil
}

// internHomeString is internString for values containing the home
// placeholder, which the decoder substitutes at extraction time.
func (w *Writer) internHomeString(value string) (uint16, error) {
	if index, ok := w.homeStrings[value]; ok {
		return index, nil
	}
	index, err := w.nextIndex()
	if err != nil {
		return 0, err
	}
	payload, blockType, err := encodeString(index, value, BlockASCIIStringHome, BlockUTF16StringHome)
	if err != nil {
		return 0, err
	}
	w.homeStrings[value] = index
	w.defs = append(w.defs, appendBlock(nil, blockType, payload))
	return index, nil
}

func (w *Writer) internRelPath(rel string) (uint16, error) {
	if index, ok := w.relPaths[rel]; ok {
		return index, nil
	}
	if !isASCII(rel) {
		return 0, fmt.Errorf("home-relative path %q is not ASCII", rel)
	}
	index, err := w.nextIndex()
	if err != nil {
		return 0, err
	}
	payload := appendUint16(nil, index)
	payload = appendASCIIString(payload, rel)
	w.relPaths[rel] = index
	w.defs = append(w.defs, appendBlock(nil, BlockRelHomePath, payload))
	return index, nil
}

// internPath interns a filesystem path. "~" and "~/..." become
// home-relative definitions; paths containing the home placeholder
// become substituting definitions; everything else is a plain
// string.
func (w *Writer) internPath(path string) (uint16, error) {
	switch {
	case path == "~":
		return w.internRelPath("")
	case strings.HasPrefix(path, "~/"):
		return w.internRelPath(strings.TrimSuffix(path[2:], "/"))
	case strings.Contains(path, HomePlaceholder):
		return w.internHomeString(path)
	default:
		return w.internString(path)
	}
}

// internContent interns file content, choosing the substituting form
// when the content mentions the home placeholder.
func (w *Writer) internContent(content string) (uint16, error) {
	if strings.Contains(content, HomePlaceholder) {
		return w.internHomeString(content)
	}
	return w.internString(content)
}

// AddFolder records a folder creation, including every missing
// ancestor. Repeated additions of the same path are collapsed.
func (w *Writer) AddFolder(path string) error {
	path = normalizePath(path)
	if path == "~" || path == "" || path == "/" {
		return nil
	}
	parent, name := splitPath(path)
	if parent != "" && parent != "/" {
		if err := w.AddFolder(parent); err != nil {
			return err
		}
	}
	if _, ok := w.folders[path]; ok {
		return nil
	}
	parentRef, err := w.internPath(parentOrRoot(parent))
	if err != nil {
		return err
	}
	nameRef, err := w.internString(name)
	if err != nil {
		return err
	}
	payload := appendUint16(nil, parentRef)
	payload = appendUint16(payload, nameRef)
	w.folders[path] = appendBlock(nil, BlockCreateFolder, payload)
	return nil
}

// AddFile records a file with the given content, splitting large
// contents into parts. The containing folder is added automatically.
func (w *Writer) AddFile(path, content string) error {
	path = normalizePath(path)
	dir, name := splitPath(path)
	if err := w.AddFolder(dir); err != nil {
		return err
	}
	dirRef, err := w.internPath(parentOrRoot(dir))
	if err != nil {
		return err
	}
	nameRef, err := w.internString(name)
	if err != nil {
		return err
	}

	if len(content) <= FilePartSize {
		contentRef, err := w.internContent(content)
		if err != nil {
			return err
		}
		payload := appendUint16(nil, dirRef)
		payload = appendUint16(payload, nameRef)
		payload = appendUint16(payload, contentRef)
		w.files = append(w.files, appendBlock(nil, BlockCreateFile, payload))
		return nil
	}

	// Large file: emit parts split on character boundaries, then a
	// final block naming the target.
	runes := []rune(content)
	for len(runes) > 0 {
		n := FilePartSize
		if n > len(runes) {
			n = len(runes)
		}
		partRef, err := w.internContent(string(runes[:n]))
		if err != nil {
			return err
		}
		runes = runes[n:]
		w.files = append(w.files,
			appendBlock(nil, BlockFilePart, appendUint16(nil, partRef)))
	}
	payload := appendUint16(nil, dirRef)
	payload = appendUint16(payload, nameRef)
	w.files = append(w.files, appendBlock(nil, BlockFilePartLast, payload))
	return nil
}

// AddUser records a user creation.
func (w *Writer) AddUser(user, password string) error {
	block, err := w.refBlock(BlockCreateUser, user, password)
	if err != nil {
		return err
	}
	w.users = append(w.users, block)
	return nil
}

// AddGroup records adding user to group.
func (w *Writer) AddGroup(user, group string) error {
	block, err := w.refBlock(BlockCreateGroup, user, group)
	if err != nil {
		return err
	}
	w.groups = append(w.groups, block)
	return nil
}

// AddRemoveUser records a user removal. removeHome also deletes the
// user's home directory.
func (w *Writer) AddRemoveUser(user string, removeHome bool) error {
	userRef, err := w.internString(user)
	if err != nil {
		return err
	}
	payload := appendUint16(nil, userRef)
	payload = append(payload, flagByte(removeHome))
	// Removals run with the operation section so they always follow
	// the creations they may refer to.
	w.ops = append(w.ops, appendBlock(nil, BlockRemoveUser, payload))
	return nil
}

// AddRemoveGroup records removing user from group.
func (w *Writer) AddRemoveGroup(user, group string) error {
	block, err := w.refBlock(BlockRemoveGroup, user, group)
	if err != nil {
		return err
	}
	w.ops = append(w.ops, block)
	return nil
}

// AddChmod records a permission change on path.
func (w *Writer) AddChmod(path, perms string, recursive bool) error {
	return w.addAttribute(BlockChmod, path, perms, recursive)
}

// AddChown records an ownership change on path.
func (w *Writer) AddChown(path, user string, recursive bool) error {
	return w.addAttribute(BlockChownUser, path, user, recursive)
}

// AddChgroup records a group-ownership change on path.
func (w *Writer) AddChgroup(path, group string, recursive bool) error {
	return w.addAttribute(BlockChownGroup, path, group, recursive)
}

func (w *Writer) addAttribute(blockType BlockType, path, value string, recursive bool) error {
	pathRef, err := w.internPath(path)
	if err != nil {
		return err
	}
	valueRef, err := w.internString(value)
	if err != nil {
		return err
	}
	payload := appendUint16(nil, pathRef)
	payload = appendUint16(payload, valueRef)
	payload = append(payload, flagByte(recursive))
	w.ops = append(w.ops, appendBlock(nil, blockType, payload))
	return nil
}

// AddBuild records compiling source and installing the artifact as
// targetDir/targetName.
func (w *Writer) AddBuild(source, targetDir, targetName string) error {
	return w.addTransferLike(BlockBuild, source, targetDir, targetName)
}

// AddTest records compiling and running source as a named test.
func (w *Writer) AddTest(name, source string) error {
	if w.testCount == 0xFFFF {
		return fmt.Errorf("too many tests")
	}
	nameRef, err := w.internString(name)
	if err != nil {
		return err
	}
	sourceRef, err := w.internPath(source)
	if err != nil {
		return err
	}
	payload := appendUint16(nil, w.testCount)
	payload = appendUint16(payload, nameRef)
	payload = appendUint16(payload, sourceRef)
	w.testCount++
	w.ops = append(w.ops, appendBlock(nil, BlockTest, payload))
	return nil
}

// AddLaunch records running a command with arguments.
func (w *Writer) AddLaunch(command string, args ...string) error {
	if len(args) > 254 {
		return fmt.Errorf("launch supports at most 254 arguments, got %d", len(args))
	}
	payload := []byte{byte(1 + len(args))}
	commandRef, err := w.internPath(command)
	if err != nil {
		return err
	}
	payload = appendUint16(payload, commandRef)
	for _, arg := range args {
		argRef, err := w.internContent(arg)
		if err != nil {
			return err
		}
		payload = appendUint16(payload, argRef)
	}
	w.ops = append(w.ops, appendBlock(nil, BlockLaunch, payload))
	return nil
}

// AddCopy records copying source to targetDir/targetName.
func (w *Writer) AddCopy(source, targetDir, targetName string) error {
	return w.addTransferLike(BlockCopy, source, targetDir, targetName)
}

// AddMove records moving source to targetDir/targetName.
func (w *Writer) AddMove(source, targetDir, targetName string) error {
	return w.addTransferLike(BlockMove, source, targetDir, targetName)
}

func (w *Writer) addTransferLike(blockType BlockType, source, targetDir, targetName string) error {
	sourceRef, err := w.internPath(source)
	if err != nil {
		return err
	}
	dirRef, err := w.internPath(targetDir)
	if err != nil {
		return err
	}
	nameRef, err := w.internString(targetName)
	if err != nil {
		return err
	}
	payload := appendUint16(nil, sourceRef)
	payload = appendUint16(payload, dirRef)
	payload = appendUint16(payload, nameRef)
	w.ops = append(w.ops, appendBlock(nil, blockType, payload))
	return nil
}

// AddDelete records deleting the file at path.
func (w *Writer) AddDelete(path string) error {
	pathRef, err := w.internPath(path)
	if err != nil {
		return err
	}
	w.ops = append(w.ops, appendBlock(nil, BlockDelete, appendUint16(nil, pathRef)))
	return nil
}

func (w *Writer) refBlock(blockType BlockType, first, second string) ([]byte, error) {
	firstRef, err := w.internString(first)
	if err != nil {
		return nil, err
	}
	secondRef, err := w.internString(second)
	if err != nil {
		return nil, err
	}
	payload := appendUint16(nil, firstRef)
	payload = appendUint16(payload, secondRef)
	return appendBlock(nil, blockType, payload), nil
}

// Assemble produces the raw version-1 byte stream.
func (w *Writer) Assemble() []byte {
	header := appendUint16(nil, VersionPlain)
	header = appendUint16(header, 0)
	out := appendBlock(nil, BlockHeader, header)

	for _, def := range w.defs {
		out = append(out, def...)
	}
	folderPaths := make([]string, 0, len(w.folders))
	for path := range w.folders {
		folderPaths = append(folderPaths, path)
	}
	sort.Strings(folderPaths)
	for _, path := range folderPaths {
		out = append(out, w.folders[path]...)
	}
	for _, section := range [][][]byte{w.files, w.users, w.groups, w.ops} {
		for _, block := range section {
			out = append(out, block...)
		}
	}
	return out
}

// Archive produces the raw byte stream, optionally wrapping the
// version-1 stream inside a dictionary-compressed version-2 archive.
// Compression is only kept when it actually shrinks the output.
func (w *Writer) Archive(compress bool) ([]byte, error) {
	plain := w.Assemble()
	if !compress {
		return plain, nil
	}
	body, err := dict.Compress(plain)
	if err != nil {
		return nil, fmt.Errorf("compressing archive: %w", err)
	}
	header := appendUint16(nil, VersionCompressed)
	header = appendUint16(header, 0)
	compressed := appendBlock(nil, BlockHeader, header)
	compressed = append(compressed, body...)
	if len(compressed) >= len(plain) {
		return plain, nil
	}
	return compressed, nil
}

// Armored produces the final text form. wrap > 0 inserts a newline
// every wrap characters.
func (w *Writer) Armored(compress bool, wrap int) (string, error) {
	raw, err := w.Archive(compress)
	if err != nil {
		return "", err
	}
	return armor.Encode(raw, wrap), nil
}

func encodeString(index uint16, value string, asciiType, utf16Type BlockType) ([]byte, BlockType, error) {
	payload := appendUint16(nil, index)
	if isASCII(value) {
		if len(value) > 0xFFFF {
			return nil, 0, fmt.Errorf("string too long for a 16-bit length (%d)", len(value))
		}
		return appendASCIIString(payload, value), asciiType, nil
	}
	payload = appendUint16(payload, 0) // count patched below
	count := 0
	for _, r := range value {
		if r > 0xFFFF {
			return nil, 0, fmt.Errorf("rune %q cannot be encoded in a 16-bit character", r)
		}
		payload = appendUint16(payload, uint16(r))
		count++
	}
	if count > 0xFFFF {
		return nil, 0, fmt.Errorf("string too long for a 16-bit character count (%d)", count)
	}
	payload[2] = byte(count >> 8)
	payload[3] = byte(count)
	return payload, utf16Type, nil
}

func appendASCIIString(buf []byte, value string) []byte {
	buf = appendUint16(buf, uint16(len(value)))
	return append(buf, value...)
}

func isASCII(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] > 0x7F {
			return false
		}
	}
	return true
}

func flagByte(set bool) byte {
	if set {
		return 1
	}
	return 0
}

// normalizePath strips trailing slashes and collapses doubled
// separators.
func normalizePath(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// splitPath splits a normalized path into parent and name.
func splitPath(path string) (string, string) {
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		return "", path
	}
	if slash == 0 {
		return "/", path[1:]
	}
	return path[:slash], path[slash+1:]
}

// parentOrRoot maps the empty parent of a bare name to the
// filesystem root.
func parentOrRoot(parent string) string {
	if parent == "" {
		return "/"
	}
	return parent
}
