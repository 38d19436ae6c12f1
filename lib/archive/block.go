// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "fmt"

// BlockType identifies one block kind. These values are protocol
// constants — changing them breaks compatibility with deployed
// extractors.
type BlockType uint8

const (
	// BlockHeader opens every archive: format version plus the size
	// of any remaining header bytes (reserved, zero today).
	BlockHeader BlockType = 0

	// String table definitions. All textual content is interned
	// before being referenced by operation blocks.
	BlockASCIIString     BlockType = 1 // length-prefixed ASCII
	BlockUTF16String     BlockType = 2 // length-prefixed UTF-16, 2-byte units
	BlockRelHomePath     BlockType = 3 // home dir joined with an ASCII relative path
	BlockASCIIStringHome BlockType = 4 // ASCII with home placeholder substitution
	BlockUTF16StringHome BlockType = 5 // UTF-16 with home placeholder substitution

	// Filesystem operations.
	BlockCreateFolder BlockType = 20 // parent-ref, name-ref
	BlockCreateFile   BlockType = 21 // dir-ref, name-ref, content-ref
	BlockFilePart     BlockType = 22 // content-ref appended to the accumulator
	BlockFilePartLast BlockType = 23 // dir-ref, name-ref: flush the accumulator
	BlockChmod        BlockType = 24 // path-ref, perms-ref, recurse
	BlockChownUser    BlockType = 25 // path-ref, user-ref, recurse
	BlockChownGroup   BlockType = 26 // path-ref, group-ref, recurse

	// User and group management.
	BlockCreateUser  BlockType = 40 // user-ref, password-ref
	BlockCreateGroup BlockType = 41 // user-ref, group-ref
	BlockRemoveUser  BlockType = 42 // user-ref, remove-home
	BlockRemoveGroup BlockType = 43 // user-ref, group-ref

	// Build and execution.
	BlockBuild  BlockType = 80 // source-ref, target-dir-ref, target-name-ref
	BlockTest   BlockType = 81 // test index, name-ref, source-ref
	BlockLaunch BlockType = 82 // arg count, then that many refs
	BlockCopy   BlockType = 83 // source-ref, target-dir-ref, target-name-ref
	BlockMove   BlockType = 84 // source-ref, target-dir-ref, target-name-ref
	BlockDelete BlockType = 85 // path-ref
)

// String returns the stable block name.
func (t BlockType) String() string {
	switch t {
	case BlockHeader:
		return "header"
	case BlockASCIIString:
		return "ascii-string-def"
	case BlockUTF16String:
		return "utf16-string-def"
	case BlockRelHomePath:
		return "rel-home-path-def"
	case BlockASCIIStringHome:
		return "ascii-string-def-home"
	case BlockUTF16StringHome:
		return "utf16-string-def-home"
	case BlockCreateFolder:
		return "create-folder"
	case BlockCreateFile:
		return "create-file"
	case BlockFilePart:
		return "file-part"
	case BlockFilePartLast:
		return "file-part-last"
	case BlockChmod:
		return "chmod"
	case BlockChownUser:
		return "chown-user"
	case BlockChownGroup:
		return "chown-group"
	case BlockCreateUser:
		return "create-user"
	case BlockCreateGroup:
		return "create-group"
	case BlockRemoveUser:
		return "remove-user"
	case BlockRemoveGroup:
		return "remove-group"
	case BlockBuild:
		return "build"
	case BlockTest:
		return "test"
	case BlockLaunch:
		return "launch"
	case BlockCopy:
		return "copy"
	case BlockMove:
		return "move"
	case BlockDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Format versions carried in the header block.
const (
	// VersionPlain marks an uncompressed block stream.
	VersionPlain = 1

	// VersionCompressed marks a dictionary-compressed body that
	// decodes to a complete inner VersionPlain stream.
	VersionCompressed = 2

	// MaxVersion is the highest version this code decodes. Anything
	// above it is a fatal error before any operation runs.
	MaxVersion = VersionCompressed
)

// HomePlaceholder is the reserved literal token replaced with the
// resolved home directory at decode time. It lets one archive replay
// against different home directories without re-encoding.
const HomePlaceholder = "<[HOME]>"

// ScratchDir is the home-relative scratch location used for build
// staging and temporary sources. The decoder creates it on demand
// before the first operation that stages into it.
const ScratchDir = "~/.tmp"

// EditorSaveCeiling is the number of characters the in-game text
// editor can save. The encoder warns — never fails — when armored
// output exceeds it, since the archive would have to be pasted in
// pieces.
const EditorSaveCeiling = 160000

// FilePartSize is the content chunk size above which a file is split
// into file-part blocks. Each part is interned as its own string, so
// it must stay well under the 16-bit string length limit.
const FilePartSize = 32768

// appendUint16 appends a big-endian 16-bit value.
func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// appendBlock appends a framed block: type, payload size, payload.
func appendBlock(buf []byte, t BlockType, payload []byte) []byte {
	buf = append(buf, byte(t))
	buf = appendUint16(buf, uint16(len(payload)))
	return append(buf, payload...)
}
