package wasmbinary

import (
	"github.com/avrabe/wrt/api"
)

// componentVersion follows the core \0asm magic with the preview-2
// component version word: `0D 00 01 00` where core modules instead carry
// `01 00 00 00`.
var componentVersion = [4]byte{0x0d, 0x00, 0x01, 0x00}

// componentSectionID mirrors the Component Model binary format's top-level
// section ids, in the order the canonical format defines them.
type componentSectionID byte

const (
	componentSectionCustom     componentSectionID = 0
	componentSectionCoreModule componentSectionID = 1
	componentSectionCoreInst   componentSectionID = 2
	componentSectionCoreType   componentSectionID = 3
	componentSectionComponent  componentSectionID = 4
	componentSectionInstance   componentSectionID = 5
	componentSectionAlias      componentSectionID = 6
	componentSectionType       componentSectionID = 7
	componentSectionCanon      componentSectionID = 8
	componentSectionStart      componentSectionID = 9
	componentSectionImport     componentSectionID = 10
	componentSectionExport     componentSectionID = 11
	componentSectionValue      componentSectionID = 12
)

// ComponentImportShell names one component-level import; the canonical
// ABI's full type grammar is not decoded here, only what is needed to wire
// inter-component calls.
type ComponentImportShell struct {
	Name string
}

// ComponentExportShell names one component-level export.
type ComponentExportShell struct {
	Name string
}

// ComponentSummary records counts and shells sufficient to wire
// inter-component calls, without exhaustive canonical-ABI decoding of
// records/variants/lists.
type ComponentSummary struct {
	CoreModuleCount int
	Imports         []ComponentImportShell
	Exports         []ComponentExportShell
}

// IsComponentBinary reports whether raw opens with the Component Model
// magic+version rather than the core module one.
func IsComponentBinary(raw []byte) bool {
	if len(raw) < 8 {
		return false
	}
	if [4]byte(raw[0:4]) != magic {
		return false
	}
	return [4]byte(raw[4:8]) == componentVersion
}

// DecodeComponent extracts embedded core modules and import/export shells
// from a Component Model binary. It does not decode the canonical ABI's
// record/variant/list type grammar; callers needing that operate on a
// higher layer than this engine.
func DecodeComponent(raw []byte) ([][]byte, *ComponentSummary, error) {
	if !IsComponentBinary(raw) {
		return nil, nil, api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "not a component binary")
	}
	d := &decoder{buf: raw[8:]}
	summary := &ComponentSummary{}
	var coreModules [][]byte

	for !d.eof() {
		idByte, err := d.readByte()
		if err != nil {
			return nil, nil, err
		}
		id := componentSectionID(idByte)
		size, err := d.readU32()
		if err != nil {
			return nil, nil, err
		}
		payload, err := d.readBytes(size)
		if err != nil {
			return nil, nil, err
		}
		sd := &decoder{buf: payload}
		switch id {
		case componentSectionCoreModule:
			mods, err := decodeCoreModuleSection(sd)
			if err != nil {
				return nil, nil, err
			}
			coreModules = append(coreModules, mods...)
			summary.CoreModuleCount += len(mods)
		case componentSectionImport:
			imports, err := decodeComponentNameShells(sd)
			if err != nil {
				return nil, nil, err
			}
			for _, name := range imports {
				summary.Imports = append(summary.Imports, ComponentImportShell{Name: name})
			}
		case componentSectionExport:
			exports, err := decodeComponentNameShells(sd)
			if err != nil {
				return nil, nil, err
			}
			for _, name := range exports {
				summary.Exports = append(summary.Exports, ComponentExportShell{Name: name})
			}
		default:
			// Unknown or not-yet-modeled component sections (type, canon,
			// alias, instance, start, value, nested component, custom) are
			// skipped, the same tolerance the core section loop applies to
			// unknown section ids.
		}
	}
	return coreModules, summary, nil
}

// decodeCoreModuleSection reads a count-prefixed list of (size:u32,
// bytes:size) embedded core module binaries.
func decodeCoreModuleSection(d *decoder) ([][]byte, error) {
	count, err := d.readU32()
	if err != nil {
		return nil, err
	}
	// Each entry is at least one byte (its size), so a count beyond that is a lie.
	if uint64(count) > uint64(len(d.buf)-d.pos) {
		return nil, api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF,
			"core module count %d exceeds section size", count)
	}
	mods := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := d.readU32()
		if err != nil {
			return nil, err
		}
		body, err := d.readBytes(size)
		if err != nil {
			return nil, err
		}
		mods = append(mods, body)
	}
	return mods, nil
}

// decodeComponentNameShells reads a count-prefixed list of LEB-length-
// prefixed UTF-8 names, used for both the import and export shell sections.
func decodeComponentNameShells(d *decoder) ([]string, error) {
	count, err := d.readU32()
	if err != nil {
		return nil, err
	}
	// Each name is at least one byte (its length), so a count beyond that is a lie.
	if uint64(count) > uint64(len(d.buf)-d.pos) {
		return nil, api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF,
			"name count %d exceeds section size", count)
	}
	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := d.readName()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
