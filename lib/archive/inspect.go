// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/greytar-foundation/greytar/lib/armor"
	"github.com/greytar-foundation/greytar/lib/bitio"
	"github.com/greytar-foundation/greytar/lib/dict"
)

// BlockInfo describes one block for display. Detail is a short
// human-readable rendering of the payload with string references
// resolved.
type BlockInfo struct {
	Type   BlockType
	Size   int
	Detail string
}

// Inspect lists the blocks of an armored archive without applying
// anything. The home directory of the eventual extracting user is
// unknown, so home-relative paths render with a "~" prefix and
// substituting strings keep their placeholder.
func Inspect(armored []byte) ([]BlockInfo, error) {
	return inspect(bitio.NewReader(armor.NewSource(armored)), false)
}

// InspectBytes is Inspect for a raw (unarmored) byte stream.
func InspectBytes(raw []byte) ([]BlockInfo, error) {
	return inspect(bitio.NewReader(bitio.NewByteSource(raw)), false)
}

func inspect(r *bitio.Reader, inner bool) ([]BlockInfo, error) {
	version, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	switch {
	case version == VersionPlain:
		infos := []BlockInfo{{Type: BlockHeader, Size: 4, Detail: "version 1"}}
		rest, err := inspectBlocks(r)
		return append(infos, rest...), err

	case version == VersionCompressed:
		if inner {
			return nil, fmt.Errorf("compressed archive nested inside a compressed archive")
		}
		body, err := dict.Decompress(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing archive body: %w", err)
		}
		infos := []BlockInfo{{
			Type:   BlockHeader,
			Size:   4,
			Detail: fmt.Sprintf("version 2, compressed body of %d bytes", len(body)),
		}}
		rest, err := inspect(bitio.NewReader(bitio.NewByteSource(body)), true)
		return append(infos, rest...), err

	default:
		return nil, fmt.Errorf("archive version %d is not supported (this code supports up to version %d)",
			version, MaxVersion)
	}
}

func inspectBlocks(r *bitio.Reader) ([]BlockInfo, error) {
	table := make(map[uint16]string)
	var infos []BlockInfo
	for {
		blockType, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, bitio.ErrEndOfStream) {
				return infos, nil
			}
			return infos, fmt.Errorf("reading block type: %w", err)
		}
		size, err := r.ReadUint16()
		if err != nil {
			if errors.Is(err, bitio.ErrEndOfStream) {
				return infos, nil
			}
			return infos, fmt.Errorf("reading block size: %w", err)
		}
		detail, err := describeBlock(r, BlockType(blockType), int(size), table)
		if err != nil {
			return infos, fmt.Errorf("%s block: %w", BlockType(blockType), err)
		}
		infos = append(infos, BlockInfo{
			Type:   BlockType(blockType),
			Size:   int(size),
			Detail: detail,
		})
	}
}

func describeBlock(r *bitio.Reader, blockType BlockType, size int, table map[uint16]string) (string, error) {
	ref := func() (string, error) {
		index, err := r.ReadUint16()
		if err != nil {
			return "", fmt.Errorf("reading string reference: %w", err)
		}
		value, ok := table[index]
		if !ok {
			return "", fmt.Errorf("string reference %d is not defined", index)
		}
		return value, nil
	}
	refs := func(n int) ([]string, error) {
		values := make([]string, n)
		for i := range values {
			value, err := ref()
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		return values, nil
	}

	switch blockType {
	case BlockASCIIString, BlockASCIIStringHome, BlockUTF16String, BlockUTF16StringHome, BlockRelHomePath:
		index, err := r.ReadUint16()
		if err != nil {
			return "", fmt.Errorf("reading string index: %w", err)
		}
		var value string
		switch blockType {
		case BlockUTF16String, BlockUTF16StringHome:
			value, err = r.ReadUTF16String()
		default:
			value, err = r.ReadASCIIString()
		}
		if err != nil {
			return "", err
		}
		if blockType == BlockRelHomePath {
			if value == "" {
				value = "~"
			} else {
				value = "~/" + value
			}
		}
		table[index] = value
		return fmt.Sprintf("%d = %s", index, truncate(value)), nil

	case BlockCreateFolder:
		parts, err := refs(2)
		if err != nil {
			return "", err
		}
		return joinDisplay(parts[0], parts[1]), nil

	case BlockCreateFile:
		parts, err := refs(3)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%d characters)",
			joinDisplay(parts[0], parts[1]), len(parts[2])), nil

	case BlockFilePart:
		content, err := ref()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d characters", len(content)), nil

	case BlockFilePartLast:
		parts, err := refs(2)
		if err != nil {
			return "", err
		}
		return joinDisplay(parts[0], parts[1]), nil

	case BlockChmod, BlockChownUser, BlockChownGroup:
		parts, err := refs(2)
		if err != nil {
			return "", err
		}
		recurse, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("reading recurse flag: %w", err)
		}
		detail := fmt.Sprintf("%s %s", parts[0], parts[1])
		if recurse != 0 {
			detail += " (recursive)"
		}
		return detail, nil

	case BlockCreateUser:
		user, err := ref()
		if err != nil {
			return "", err
		}
		if _, err := ref(); err != nil { // password, not displayed
			return "", err
		}
		return user, nil

	case BlockCreateGroup, BlockRemoveGroup:
		parts, err := refs(2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s in %s", parts[0], parts[1]), nil

	case BlockRemoveUser:
		user, err := ref()
		if err != nil {
			return "", err
		}
		removeHome, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("reading remove-home flag: %w", err)
		}
		if removeHome != 0 {
			return user + " (with home)", nil
		}
		return user, nil

	case BlockBuild, BlockCopy, BlockMove:
		parts, err := refs(3)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s -> %s", parts[0], joinDisplay(parts[1], parts[2])), nil

	case BlockTest:
		index, err := r.ReadUint16()
		if err != nil {
			return "", fmt.Errorf("reading test index: %w", err)
		}
		parts, err := refs(2)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("#%d %s (%s)", index, parts[0], parts[1]), nil

	case BlockLaunch:
		count, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("reading argument count: %w", err)
		}
		args, err := refs(int(count))
		if err != nil {
			return "", err
		}
		return strings.Join(args, " "), nil

	case BlockDelete:
		path, err := ref()
		if err != nil {
			return "", err
		}
		return path, nil

	default:
		if err := r.Skip(size); err != nil {
			return "", err
		}
		return "unknown, skipped", nil
	}
}

func joinDisplay(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}

func truncate(value string) string {
	const limit = 48
	runes := []rune(value)
	if len(runes) <= limit {
		return fmt.Sprintf("%q", value)
	}
	return fmt.Sprintf("%q... (%d characters)", string(runes[:limit]), len(runes))
}
