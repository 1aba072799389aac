// Package wasmbinary decodes the core WebAssembly binary format into an
// internal/wasm.Module and runs the module-level validation gate (index
// range checks, start-function signature, single-memory limit, immutable
// imported globals, operand-stack type simulation) before the module is
// handed to the engine for instantiation.
//
// Decoding never recurses per nested structure depth and never allocates
// unbounded slices: every section loop is driven by a declared count read
// from the section itself, and counts are checked against the Limits
// ceilings or the remaining section size before any allocation.
package wasmbinary

import (
	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/leb128"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const version1 = uint32(1)

// sectionID mirrors the core module binary format's section ids.
type sectionID byte

const (
	sectionCustom   sectionID = 0
	sectionType     sectionID = 1
	sectionImport   sectionID = 2
	sectionFunction sectionID = 3
	sectionTable    sectionID = 4
	sectionMemory   sectionID = 5
	sectionGlobal   sectionID = 6
	sectionExport   sectionID = 7
	sectionStart    sectionID = 8
	sectionElement  sectionID = 9
	sectionCode     sectionID = 10
	sectionData     sectionID = 11
	sectionDataCnt  sectionID = 12
)

// Limits bounds how large any single decoded quantity may be, so a crafted
// module cannot force an unbounded allocation before validation ever runs.
type Limits struct {
	MaxTypes     uint32
	MaxFunctions uint32
	MaxTables    uint32
	MaxMemories  uint32
	MaxGlobals   uint32
	MaxExports   uint32
	MaxElements  uint32
	MaxDataSegs  uint32
	MaxImports   uint32

	// Logger receives decode warnings (an unknown section skipped). nil
	// falls back to the logrus standard logger.
	Logger *logrus.Logger
}

func (l Limits) warnLogger() *logrus.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logrus.StandardLogger()
}

// DefaultLimits matches the WebAssembly core specification's implementation
// limits where it states one, and picks a conservative bound elsewhere.
var DefaultLimits = Limits{
	MaxTypes:     1_000_000,
	MaxFunctions: 1_000_000,
	MaxTables:    16,
	MaxMemories:  1,
	MaxGlobals:   1_000_000,
	MaxExports:   1_000_000,
	MaxElements:  1_000_000,
	MaxDataSegs:  1_000_000,
	MaxImports:   1_000_000,
}

type decoder struct {
	buf    []byte
	pos    int
	limits Limits
}

func (d *decoder) eof() bool { return d.pos >= len(d.buf) }

func (d *decoder) readByte() (byte, error) {
	if d.eof() {
		return 0, api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF, "unexpected EOF reading byte")
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readBytes(n uint32) ([]byte, error) {
	if uint64(d.pos)+uint64(n) > uint64(len(d.buf)) {
		return nil, api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF, "unexpected EOF reading %d bytes", n)
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *decoder) readU32() (uint32, error) {
	v, n, err := leb128.LoadUint32(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += int(n)
	return v, nil
}

func (d *decoder) readI32() (int32, error) {
	v, n, err := leb128.LoadInt32(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += int(n)
	return v, nil
}

func (d *decoder) readI64() (int64, error) {
	v, n, err := leb128.LoadInt64(d.buf[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += int(n)
	return v, nil
}

func (d *decoder) readF32() (uint32, error) {
	b, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (d *decoder) readF64() (uint64, error) {
	b, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

func (d *decoder) readName() (string, error) {
	n, err := d.readU32()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readValueType() (api.ValueType, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch api.ValueType(b) {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64, api.ValueTypeV128, api.ValueTypeFuncref, api.ValueTypeExternref:
		return api.ValueType(b), nil
	default:
		return 0, api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "invalid value type byte 0x%02x", b)
	}
}

// DecodeModule parses a complete core WebAssembly binary and runs the
// module-level validation gate, returning the decoded wasm.Module.
func DecodeModule(raw []byte, limits Limits) (*wasm.Module, error) {
	d := &decoder{buf: raw, limits: limits}
	if err := d.decodeHeader(); err != nil {
		return nil, err
	}
	m := &wasm.Module{}
	lastID := -1
	for !d.eof() {
		idByte, err := d.readByte()
		if err != nil {
			return nil, err
		}
		id := sectionID(idByte)
		size, err := d.readU32()
		if err != nil {
			return nil, err
		}
		payload, err := d.readBytes(size)
		if err != nil {
			return nil, err
		}
		if id > sectionDataCnt {
			// Section ids past the highest-defined one are skipped, not
			// fatal: a newer toolchain may emit sections this decoder has
			// no use for.
			limits.warnLogger().WithFields(logrus.Fields{
				"section": id,
				"size":    size,
			}).Warn("skipping unknown section")
			continue
		}
		if id != sectionCustom {
			if int(id) <= lastID {
				return nil, api.NewError(api.ErrorCategoryParse, api.CodeSectionOverflow, "section id %d out of order after %d", id, lastID)
			}
			lastID = int(id)
		}
		sd := &decoder{buf: payload, limits: limits}
		if err := decodeSection(sd, id, m); err != nil {
			return nil, err
		}
		if !sd.eof() {
			return nil, api.NewError(api.ErrorCategoryParse, api.CodeSectionOverflow, "section %d has %d trailing bytes", id, len(sd.buf)-sd.pos)
		}
	}
	m.ID = xxhash.Sum64(raw)
	cs := substrate.NewChecksum()
	cs.Write(raw)
	m.LoadChecksum = cs.Sum()
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *decoder) decodeHeader() error {
	b, err := d.readBytes(4)
	if err != nil {
		return err
	}
	if [4]byte(b[0:4]) != magic {
		return api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "bad magic bytes")
	}
	vb, err := d.readBytes(4)
	if err != nil {
		return err
	}
	v := uint32(vb[0]) | uint32(vb[1])<<8 | uint32(vb[2])<<16 | uint32(vb[3])<<24
	if v != version1 {
		return api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "unsupported module version %d", v)
	}
	return nil
}

func decodeSection(d *decoder, id sectionID, m *wasm.Module) error {
	switch id {
	case sectionCustom:
		return d.decodeCustomSection(m)
	case sectionType:
		return d.decodeTypeSection(m)
	case sectionImport:
		return d.decodeImportSection(m)
	case sectionFunction:
		return d.decodeFunctionSection(m)
	case sectionTable:
		return d.decodeTableSection(m)
	case sectionMemory:
		return d.decodeMemorySection(m)
	case sectionGlobal:
		return d.decodeGlobalSection(m)
	case sectionExport:
		return d.decodeExportSection(m)
	case sectionStart:
		return d.decodeStartSection(m)
	case sectionElement:
		return d.decodeElementSection(m)
	case sectionCode:
		return d.decodeCodeSection(m)
	case sectionData:
		return d.decodeDataSection(m)
	case sectionDataCnt:
		return d.decodeDataCountSection(m)
	default:
		return api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "unknown section id %d", id)
	}
}

func checkCount(n, max uint32, what string) error {
	if n > max {
		return api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded, "%s count %d exceeds limit %d", what, n, max)
	}
	return nil
}
