// Copyright 2026 The Greytar Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/greytar-foundation/greytar/lib/armor"
	"github.com/greytar-foundation/greytar/lib/bitio"
	"github.com/greytar-foundation/greytar/lib/dict"
	"github.com/greytar-foundation/greytar/lib/machine"
)

// Decoder replays an archive against a machine.System. All session
// state — the string table and the multi-part file accumulator — is
// scoped to the Decoder, so independent decodes never share anything.
//
// A fatal error anywhere aborts the remaining stream immediately;
// operations already applied stay applied. The only recoverable
// failures are user/group creation conflicts, and only when
// SetIgnoreConflicts is enabled.
type Decoder struct {
	system machine.System
	logger *slog.Logger

	// ignoreConflicts downgrades user/group already-exists failures
	// from fatal to informational.
	ignoreConflicts bool

	strings map[uint16]string
	parts   strings.Builder
}

// NewDecoder creates a decoder that applies operations to system.
func NewDecoder(system machine.System) *Decoder {
	return &Decoder{
		system: system,
		logger: slog.Default(),
	}
}

// SetLogger replaces the progress logger.
func (d *Decoder) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetIgnoreConflicts controls whether user/group creation conflicts
// abort the stream.
func (d *Decoder) SetIgnoreConflicts(ignore bool) {
	d.ignoreConflicts = ignore
}

// DecodeText decodes armored archive text and applies every
// operation in stream order.
func (d *Decoder) DecodeText(armored []byte) error {
	return d.decodeSession(bitio.NewReader(armor.NewSource(armored)))
}

// DecodeBytes decodes a raw (unarmored) archive byte stream.
func (d *Decoder) DecodeBytes(raw []byte) error {
	return d.decodeSession(bitio.NewReader(bitio.NewByteSource(raw)))
}

func (d *Decoder) decodeSession(r *bitio.Reader) error {
	d.strings = make(map[uint16]string)
	d.parts.Reset()
	return d.decode(r, false)
}

// decode reads the header block and runs the block loop. A
// version-2 header hands the remaining stream to the dictionary
// decompressor and recurses over the inner stream, which must itself
// be a plain version-1 archive.
func (d *Decoder) decode(r *bitio.Reader, inner bool) error {
	version, err := readHeader(r)
	if err != nil {
		return err
	}

	switch {
	case version == VersionPlain:
		return d.blockLoop(r)

	case version == VersionCompressed:
		if inner {
			return fmt.Errorf("compressed archive nested inside a compressed archive")
		}
		body, err := dict.Decompress(r)
		if err != nil {
			return fmt.Errorf("decompressing archive body: %w", err)
		}
		return d.decode(bitio.NewReader(bitio.NewByteSource(body)), true)

	default:
		return fmt.Errorf("archive version %d is not supported (this code supports up to version %d)",
			version, MaxVersion)
	}
}

// readHeader consumes the mandatory leading header block and returns
// the format version. Reserved trailing header bytes are skipped so
// future header growth stays decodable.
func readHeader(r *bitio.Reader) (int, error) {
	blockType, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("reading archive header: %w", err)
	}
	if BlockType(blockType) != BlockHeader {
		return 0, fmt.Errorf("archive does not start with a header block (found type %d)", blockType)
	}
	if _, err := r.ReadUint16(); err != nil {
		return 0, fmt.Errorf("reading header size: %w", err)
	}
	version, err := r.ReadUint16()
	if err != nil {
		return 0, fmt.Errorf("reading header version: %w", err)
	}
	remaining, err := r.ReadUint16()
	if err != nil {
		return 0, fmt.Errorf("reading reserved header size: %w", err)
	}
	if remaining > 0 {
		if err := r.Skip(int(remaining)); err != nil {
			return 0, fmt.Errorf("skipping reserved header bytes: %w", err)
		}
	}
	return int(version), nil
}

// blockLoop processes framed blocks until the stream ends. Running
// out of data at a block boundary is the normal end of archive.
func (d *Decoder) blockLoop(r *bitio.Reader) error {
	for {
		blockType, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, bitio.ErrEndOfStream) {
				return nil
			}
			return fmt.Errorf("reading block type: %w", err)
		}
		size, err := r.ReadUint16()
		if err != nil {
			if errors.Is(err, bitio.ErrEndOfStream) {
				return nil
			}
			return fmt.Errorf("reading block size: %w", err)
		}
		if err := d.apply(r, BlockType(blockType), int(size)); err != nil {
			return fmt.Errorf("%s block: %w", BlockType(blockType), err)
		}
	}
}

// apply dispatches one block to its handler. Each handler consumes
// exactly the block's payload through typed reads; unknown types are
// skipped by their declared size, which is the forward-compatibility
// contract of the format.
func (d *Decoder) apply(r *bitio.Reader, blockType BlockType, size int) error {
	switch blockType {
	case BlockHeader:
		// A stray header after the first: treat like any other
		// reserved payload.
		return r.Skip(size)

	case BlockASCIIString, BlockASCIIStringHome:
		return d.defineString(r, blockType == BlockASCIIStringHome, (*bitio.Reader).ReadASCIIString)

	case BlockUTF16String, BlockUTF16StringHome:
		return d.defineString(r, blockType == BlockUTF16StringHome, (*bitio.Reader).ReadUTF16String)

	case BlockRelHomePath:
		return d.defineRelHomePath(r)

	case BlockCreateFolder:
		return d.applyCreateFolder(r)

	case BlockCreateFile:
		return d.applyCreateFile(r)

	case BlockFilePart:
		return d.applyFilePart(r)

	case BlockFilePartLast:
		return d.applyFilePartLast(r)

	case BlockChmod, BlockChownUser, BlockChownGroup:
		return d.applyAttribute(r, blockType)

	case BlockCreateUser:
		return d.applyCreateUser(r)

	case BlockCreateGroup:
		return d.applyCreateGroup(r)

	case BlockRemoveUser:
		return d.applyRemoveUser(r)

	case BlockRemoveGroup:
		return d.applyRemoveGroup(r)

	case BlockBuild:
		return d.applyBuild(r)

	case BlockTest:
		return d.applyTest(r)

	case BlockLaunch:
		return d.applyLaunch(r)

	case BlockCopy, BlockMove:
		return d.applyTransfer(r, blockType == BlockMove)

	case BlockDelete:
		return d.applyDelete(r)

	default:
		d.logger.Info("skipping unknown block type",
			"type", uint8(blockType), "size", size)
		return r.Skip(size)
	}
}

// stringRef reads a 16-bit index and resolves it through the string
// table. An undefined index is fatal.
func (d *Decoder) stringRef(r *bitio.Reader) (string, error) {
	index, err := r.ReadUint16()
	if err != nil {
		return "", fmt.Errorf("reading string reference: %w", err)
	}
	value, ok := d.strings[index]
	if !ok {
		return "", fmt.Errorf("string reference %d is not defined", index)
	}
	return value, nil
}

func (d *Decoder) defineString(r *bitio.Reader, substituteHome bool, read func(*bitio.Reader) (string, error)) error {
	index, err := r.ReadUint16()
	if err != nil {
		return fmt.Errorf("reading string index: %w", err)
	}
	value, err := read(r)
	if err != nil {
		return err
	}
	if substituteHome {
		value = strings.ReplaceAll(value, HomePlaceholder, d.system.Home())
	}
	// Redefinition overwrites: last wins.
	d.strings[index] = value
	return nil
}

func (d *Decoder) defineRelHomePath(r *bitio.Reader) error {
	index, err := r.ReadUint16()
	if err != nil {
		return fmt.Errorf("reading string index: %w", err)
	}
	rel, err := r.ReadASCIIString()
	if err != nil {
		return err
	}
	path := d.system.Home()
	if rel != "" {
		path = path + "/" + rel
	}
	d.strings[index] = path
	return nil
}

func (d *Decoder) applyCreateFolder(r *bitio.Reader) error {
	parent, err := d.stringRef(r)
	if err != nil {
		return err
	}
	name, err := d.stringRef(r)
	if err != nil {
		return err
	}
	path := machine.Join(parent, name)
	if err := d.system.CreateFolder(parent, name); err != nil {
		if errors.Is(err, machine.ErrExists) {
			d.logger.Info("folder already exists", "path", path)
			return nil
		}
		return fmt.Errorf("creating folder %s: %w", path, err)
	}
	d.logger.Info("created folder", "path", path)
	return nil
}

func (d *Decoder) applyCreateFile(r *bitio.Reader) error {
	dir, err := d.stringRef(r)
	if err != nil {
		return err
	}
	name, err := d.stringRef(r)
	if err != nil {
		return err
	}
	content, err := d.stringRef(r)
	if err != nil {
		return err
	}
	return d.writeFile(dir, name, content)
}

func (d *Decoder) applyFilePart(r *bitio.Reader) error {
	content, err := d.stringRef(r)
	if err != nil {
		return err
	}
	d.parts.WriteString(content)
	return nil
}

func (d *Decoder) applyFilePartLast(r *bitio.Reader) error {
	dir, err := d.stringRef(r)
	if err != nil {
		return err
	}
	name, err := d.stringRef(r)
	if err != nil {
		return err
	}
	content := d.parts.String()
	d.parts.Reset()
	return d.writeFile(dir, name, content)
}

// writeFile creates the file if absent, overwrites its content, and
// verifies the round-trip length.
func (d *Decoder) writeFile(dir, name, content string) error {
	path := machine.Join(dir, name)
	if _, ok := d.system.File(path); !ok {
		if err := d.system.CreateFile(dir, name); err != nil {
			return fmt.Errorf("creating file %s: %w", path, err)
		}
	}
	file, ok := d.system.File(path)
	if !ok {
		return fmt.Errorf("file %s missing after creation", path)
	}
	if err := file.SetContent(content); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	written, err := file.Content()
	if err != nil {
		return fmt.Errorf("verifying file %s: %w", path, err)
	}
	if len(written) != len(content) {
		return fmt.Errorf("file %s content verification failed: wrote %d characters, read back %d",
			path, len(content), len(written))
	}
	d.logger.Info("wrote file", "path", path, "size", len(content))
	return nil
}

func (d *Decoder) applyAttribute(r *bitio.Reader, blockType BlockType) error {
	path, err := d.stringRef(r)
	if err != nil {
		return err
	}
	value, err := d.stringRef(r)
	if err != nil {
		return err
	}
	recurse, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading recurse flag: %w", err)
	}
	file, ok := d.system.File(path)
	if !ok {
		return fmt.Errorf("%s does not exist", path)
	}
	recursive := recurse != 0
	switch blockType {
	case BlockChmod:
		err = file.Chmod(value, recursive)
	case BlockChownUser:
		err = file.SetOwner(value, recursive)
	case BlockChownGroup:
		err = file.SetGroup(value, recursive)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	d.logger.Info("set attribute", "path", path, "value", value, "recursive", recursive)
	return nil
}

func (d *Decoder) applyCreateUser(r *bitio.Reader) error {
	user, err := d.stringRef(r)
	if err != nil {
		return err
	}
	password, err := d.stringRef(r)
	if err != nil {
		return err
	}
	if err := d.createWithConflictPolicy(
		func() error { return d.system.CreateUser(user, password) },
	); err != nil {
		return err
	}
	d.logger.Info("created user", "user", user)
	return nil
}

func (d *Decoder) applyCreateGroup(r *bitio.Reader) error {
	user, err := d.stringRef(r)
	if err != nil {
		return err
	}
	group, err := d.stringRef(r)
	if err != nil {
		return err
	}
	if err := d.createWithConflictPolicy(
		func() error { return d.system.CreateGroup(user, group) },
	); err != nil {
		return err
	}
	d.logger.Info("created group membership", "user", user, "group", group)
	return nil
}

// createWithConflictPolicy applies the global ignore flag to
// already-exists failures from user/group creation.
func (d *Decoder) createWithConflictPolicy(create func() error) error {
	err := create()
	if err == nil {
		return nil
	}
	if errors.Is(err, machine.ErrExists) {
		if d.ignoreConflicts {
			d.logger.Info("ignoring creation conflict", "detail", err.Error())
			return nil
		}
		return err
	}
	return err
}

func (d *Decoder) applyRemoveUser(r *bitio.Reader) error {
	user, err := d.stringRef(r)
	if err != nil {
		return err
	}
	removeHome, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading remove-home flag: %w", err)
	}
	if err := d.system.DeleteUser(user, removeHome != 0); err != nil {
		return err
	}
	d.logger.Info("removed user", "user", user)
	return nil
}

func (d *Decoder) applyRemoveGroup(r *bitio.Reader) error {
	user, err := d.stringRef(r)
	if err != nil {
		return err
	}
	group, err := d.stringRef(r)
	if err != nil {
		return err
	}
	if err := d.system.DeleteGroup(user, group); err != nil {
		return err
	}
	d.logger.Info("removed group membership", "user", user, "group", group)
	return nil
}

// applyBuild stages the source in the scratch folder, compiles it
// there, and moves the artifact to its target.
func (d *Decoder) applyBuild(r *bitio.Reader) error {
	source, err := d.stringRef(r)
	if err != nil {
		return err
	}
	targetDir, err := d.stringRef(r)
	if err != nil {
		return err
	}
	targetName, err := d.stringRef(r)
	if err != nil {
		return err
	}

	file, ok := d.system.File(source)
	if !ok {
		return fmt.Errorf("source %q does not exist", source)
	}
	scratch, err := d.ensureScratch()
	if err != nil {
		return err
	}

	name := lastSegment(source)
	staged := machine.Join(scratch, name)
	if staged != source {
		if err := file.Copy(scratch, name); err != nil {
			return fmt.Errorf("staging %s: %w", source, err)
		}
	}
	if err := d.system.Compile(staged, scratch); err != nil {
		return err
	}

	artifact := machine.Join(scratch, stripExt(name))
	built, ok := d.system.File(artifact)
	if !ok {
		return fmt.Errorf("compiled artifact %q missing", artifact)
	}
	target := machine.Join(targetDir, targetName)
	if err := built.Move(targetDir, targetName); err != nil {
		return fmt.Errorf("installing %s: %w", target, err)
	}
	if staged != source {
		if stagedFile, ok := d.system.File(staged); ok {
			if err := stagedFile.Delete(); err != nil {
				return fmt.Errorf("cleaning staged source %s: %w", staged, err)
			}
		}
	}
	d.logger.Info("built program", "source", source, "target", target)
	return nil
}

// applyTest compiles a test program in the scratch folder and runs
// it. A non-success exit is fatal for the whole stream.
func (d *Decoder) applyTest(r *bitio.Reader) error {
	index, err := r.ReadUint16()
	if err != nil {
		return fmt.Errorf("reading test index: %w", err)
	}
	name, err := d.stringRef(r)
	if err != nil {
		return err
	}
	source, err := d.stringRef(r)
	if err != nil {
		return err
	}

	if _, ok := d.system.File(source); !ok {
		return fmt.Errorf("test %q source %q does not exist", name, source)
	}
	scratch, err := d.ensureScratch()
	if err != nil {
		return err
	}
	if err := d.system.Compile(source, scratch); err != nil {
		return fmt.Errorf("test %q: %w", name, err)
	}
	binary := machine.Join(scratch, stripExt(lastSegment(source)))
	if err := d.system.Launch(binary, nil); err != nil {
		return fmt.Errorf("test %q failed: %w", name, err)
	}
	if file, ok := d.system.File(binary); ok {
		if err := file.Delete(); err != nil {
			return fmt.Errorf("cleaning test binary %s: %w", binary, err)
		}
	}
	d.logger.Info("test passed", "index", index, "name", name)
	return nil
}

func (d *Decoder) applyLaunch(r *bitio.Reader) error {
	count, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading argument count: %w", err)
	}
	if count < 1 {
		return fmt.Errorf("launch requires at least one argument")
	}
	args := make([]string, count)
	for i := range args {
		args[i], err = d.stringRef(r)
		if err != nil {
			return err
		}
	}
	if err := d.system.Launch(args[0], args[1:]); err != nil {
		return err
	}
	d.logger.Info("launched", "command", args[0], "args", args[1:])
	return nil
}

func (d *Decoder) applyTransfer(r *bitio.Reader, move bool) error {
	source, err := d.stringRef(r)
	if err != nil {
		return err
	}
	targetDir, err := d.stringRef(r)
	if err != nil {
		return err
	}
	targetName, err := d.stringRef(r)
	if err != nil {
		return err
	}
	file, ok := d.system.File(source)
	if !ok {
		return fmt.Errorf("source %q does not exist", source)
	}
	target := machine.Join(targetDir, targetName)
	if move {
		if err := file.Move(targetDir, targetName); err != nil {
			return fmt.Errorf("moving to %s: %w", target, err)
		}
		d.logger.Info("moved", "from", source, "to", target)
		return nil
	}
	if err := file.Copy(targetDir, targetName); err != nil {
		return fmt.Errorf("copying to %s: %w", target, err)
	}
	d.logger.Info("copied", "from", source, "to", target)
	return nil
}

func (d *Decoder) applyDelete(r *bitio.Reader) error {
	path, err := d.stringRef(r)
	if err != nil {
		return err
	}
	file, ok := d.system.File(path)
	if !ok {
		return fmt.Errorf("%s does not exist", path)
	}
	if file.IsDir() {
		return fmt.Errorf("%s is a folder", path)
	}
	if err := file.Delete(); err != nil {
		return err
	}
	d.logger.Info("deleted", "path", path)
	return nil
}

// ensureScratch makes sure the scratch folder exists and returns its
// resolved path.
func (d *Decoder) ensureScratch() (string, error) {
	home := d.system.Home()
	scratch := home + "/" + strings.TrimPrefix(ScratchDir, "~/")
	if _, ok := d.system.File(scratch); !ok {
		if err := d.system.CreateFolder(home, strings.TrimPrefix(ScratchDir, "~/")); err != nil &&
			!errors.Is(err, machine.ErrExists) {
			return "", fmt.Errorf("creating scratch folder %s: %w", scratch, err)
		}
	}
	return scratch, nil
}

func lastSegment(path string) string {
	if slash := strings.LastIndexByte(path, '/'); slash >= 0 {
		return path[slash+1:]
	}
	return path
}

func stripExt(name string) string {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		return name[:dot]
	}
	return name
}
