package wasmbinary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/internal/leb128"
)

func u32(v uint32) []byte { return leb128.EncodeUint32(v) }

func section(id sectionID, payload []byte) []byte {
	out := []byte{byte(id)}
	out = append(out, u32(uint32(len(payload)))...)
	out = append(out, payload...)
	return out
}

// buildMinimalModule assembles a module with one type, one local function
// exporting "add", matching (i32, i32) -> i32, returning params[0]+params[1].
func buildMinimalModule(t *testing.T) []byte {
	t.Helper()
	m := append([]byte{}, magic[:]...)
	m = append(m, 1, 0, 0, 0)

	typeSec := append(u32(1), 0x60)
	typeSec = append(typeSec, u32(2)...)
	typeSec = append(typeSec, 0x7f, 0x7f) // i32 i32
	typeSec = append(typeSec, u32(1)...)
	typeSec = append(typeSec, 0x7f)
	m = append(m, section(sectionType, typeSec)...)

	funcSec := append(u32(1), u32(0)...)
	m = append(m, section(sectionFunction, funcSec)...)

	exportSec := u32(1)
	exportSec = append(exportSec, u32(3)...)
	exportSec = append(exportSec, []byte("add")...)
	exportSec = append(exportSec, 0x00) // func kind
	exportSec = append(exportSec, u32(0)...)
	m = append(m, section(sectionExport, exportSec)...)

	body := []byte{
		0x00,       // 0 local groups
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b, // end
	}
	codeSec := append(u32(1), u32(uint32(len(body)))...)
	codeSec = append(codeSec, body...)
	m = append(m, section(sectionCode, codeSec)...)

	return m
}

func TestDecodeModule_Minimal(t *testing.T) {
	raw := buildMinimalModule(t)
	mod, err := DecodeModule(raw, DefaultLimits)
	require.NoError(t, err)
	require.Len(t, mod.TypeSection, 1)
	require.Len(t, mod.FunctionSection, 1)
	require.Len(t, mod.CodeSection, 1)
	require.Equal(t, "add", mod.ExportSection[0].Name)
	require.NotZero(t, mod.ID)
}

func TestDecodeModule_RejectsBadMagic(t *testing.T) {
	_, err := DecodeModule([]byte{0, 0, 0, 0, 1, 0, 0, 0}, DefaultLimits)
	require.Error(t, err)
}

func TestDecodeModule_RejectsMultipleMemories(t *testing.T) {
	raw := append([]byte{}, magic[:]...)
	raw = append(raw, 1, 0, 0, 0)
	memSec := u32(2)
	memSec = append(memSec, 0x00, 0x01) // min=1, no max
	memSec = append(memSec, 0x00, 0x01)
	raw = append(raw, section(sectionMemory, memSec)...)

	_, err := DecodeModule(raw, DefaultLimits)
	require.Error(t, err)
}

func TestDecodeModule_SkipsUnknownSection(t *testing.T) {
	raw := buildMinimalModule(t)
	raw = append(raw, section(sectionID(42), []byte{0xde, 0xad})...)

	mod, err := DecodeModule(raw, DefaultLimits)
	require.NoError(t, err)
	require.Len(t, mod.CodeSection, 1)
}

func TestDecodeModule_StoresCustomSectionRaw(t *testing.T) {
	raw := buildMinimalModule(t)
	payload := append(u32(5), []byte("hello")...) // name "hello"
	payload = append(payload, 1, 2, 3)
	raw = append(raw, section(sectionCustom, payload)...)

	mod, err := DecodeModule(raw, DefaultLimits)
	require.NoError(t, err)
	require.Len(t, mod.CustomSections, 1)
	require.Equal(t, "hello", mod.CustomSections[0].Name)
	require.Equal(t, []byte{1, 2, 3}, mod.CustomSections[0].Data)
}

func TestDecodeModule_RejectsOutOfRangeStartFunction(t *testing.T) {
	raw := append([]byte{}, magic[:]...)
	raw = append(raw, 1, 0, 0, 0)
	raw = append(raw, section(sectionStart, u32(5))...)

	_, err := DecodeModule(raw, DefaultLimits)
	require.Error(t, err)
}
