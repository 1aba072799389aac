package wasmbinary

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/substrate"
	"github.com/avrabe/wrt/internal/wasm"
)

func (d *decoder) decodeLimits() (wasm.Limits, error) {
	flag, err := d.readByte()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := d.readU32()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min}
	if flag == 1 {
		max, err := d.readU32()
		if err != nil {
			return wasm.Limits{}, err
		}
		l.Max = &max
	}
	return l, nil
}

func (d *decoder) decodeFuncType() (api.FuncType, error) {
	tag, err := d.readByte()
	if err != nil {
		return api.FuncType{}, err
	}
	if tag != 0x60 {
		return api.FuncType{}, api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "func type tag 0x%02x, want 0x60", tag)
	}
	paramCount, err := d.readU32()
	if err != nil {
		return api.FuncType{}, err
	}
	if err := checkCount(paramCount, api.MaxParams, "func type params"); err != nil {
		return api.FuncType{}, err
	}
	params := make([]api.ValueType, paramCount)
	for i := range params {
		vt, err := d.readValueType()
		if err != nil {
			return api.FuncType{}, err
		}
		params[i] = vt
	}
	resultCount, err := d.readU32()
	if err != nil {
		return api.FuncType{}, err
	}
	if err := checkCount(resultCount, api.MaxResults, "func type results"); err != nil {
		return api.FuncType{}, err
	}
	results := make([]api.ValueType, resultCount)
	for i := range results {
		vt, err := d.readValueType()
		if err != nil {
			return api.FuncType{}, err
		}
		results[i] = vt
	}
	return api.FuncType{Params: params, Results: results}, nil
}

func (d *decoder) decodeTypeSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxTypes, "type section"); err != nil {
		return err
	}
	m.TypeSection = make([]api.FuncType, n)
	for i := range m.TypeSection {
		ft, err := d.decodeFuncType()
		if err != nil {
			return err
		}
		m.TypeSection[i] = ft
	}
	return nil
}

func (d *decoder) decodeImportSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxImports, "import section"); err != nil {
		return err
	}
	m.ImportSection = make([]wasm.Import, n)
	for i := range m.ImportSection {
		mod, err := d.readName()
		if err != nil {
			return err
		}
		name, err := d.readName()
		if err != nil {
			return err
		}
		kindByte, err := d.readByte()
		if err != nil {
			return err
		}
		imp := wasm.Import{Module: mod, Name: name, Kind: wasm.ImportKind(kindByte)}
		switch imp.Kind {
		case wasm.ImportKindFunc:
			idx, err := d.readU32()
			if err != nil {
				return err
			}
			imp.DescFuncTypeIndex = idx
		case wasm.ImportKindTable:
			rt, err := d.readValueType()
			if err != nil {
				return err
			}
			lim, err := d.decodeLimits()
			if err != nil {
				return err
			}
			imp.DescTable = wasm.Table{RefType: rt, Limits: lim}
		case wasm.ImportKindMemory:
			lim, err := d.decodeLimits()
			if err != nil {
				return err
			}
			imp.DescMemory = wasm.Memory{Limits: lim}
		case wasm.ImportKindGlobal:
			vt, err := d.readValueType()
			if err != nil {
				return err
			}
			mut, err := d.readByte()
			if err != nil {
				return err
			}
			imp.DescGlobalType = wasm.GlobalType{ValType: vt, Mutable: mut == 1}
		default:
			return api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "invalid import kind %d", kindByte)
		}
		m.ImportSection[i] = imp
	}
	return nil
}

func (d *decoder) decodeFunctionSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxFunctions, "function section"); err != nil {
		return err
	}
	m.FunctionSection = make([]wasm.Index, n)
	for i := range m.FunctionSection {
		idx, err := d.readU32()
		if err != nil {
			return err
		}
		m.FunctionSection[i] = idx
	}
	return nil
}

func (d *decoder) decodeTableSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxTables, "table section"); err != nil {
		return err
	}
	m.TableSection = make([]wasm.Table, n)
	for i := range m.TableSection {
		rt, err := d.readValueType()
		if err != nil {
			return err
		}
		lim, err := d.decodeLimits()
		if err != nil {
			return err
		}
		m.TableSection[i] = wasm.Table{RefType: rt, Limits: lim}
	}
	return nil
}

func (d *decoder) decodeMemorySection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxMemories, "memory section"); err != nil {
		return err
	}
	m.MemorySection = make([]wasm.Memory, n)
	for i := range m.MemorySection {
		lim, err := d.decodeLimits()
		if err != nil {
			return err
		}
		m.MemorySection[i] = wasm.Memory{Limits: lim}
	}
	return nil
}

func (d *decoder) decodeConstExpr() (wasm.ConstExpr, error) {
	op, err := d.readByte()
	if err != nil {
		return wasm.ConstExpr{}, err
	}
	ce := wasm.ConstExpr{Opcode: op}
	switch op {
	case 0x41: // i32.const
		v, err := d.readI32()
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.ValueLo = uint64(uint32(v))
	case 0x42: // i64.const
		v, err := d.readI64()
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.ValueLo = uint64(v)
	case 0x43: // f32.const
		v, err := d.readF32()
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.ValueLo = uint64(v)
	case 0x44: // f64.const
		v, err := d.readF64()
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.ValueLo = v
	case 0x23: // global.get
		idx, err := d.readU32()
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.GlobalIndex = idx
	case 0xd0: // ref.null
		if _, err := d.readValueType(); err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.ValueLo = ^uint64(0)
	case 0xd2: // ref.func
		idx, err := d.readU32()
		if err != nil {
			return wasm.ConstExpr{}, err
		}
		ce.ValueLo = uint64(idx)
	default:
		return wasm.ConstExpr{}, api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "unsupported const expr opcode 0x%02x", op)
	}
	end, err := d.readByte()
	if err != nil {
		return wasm.ConstExpr{}, err
	}
	if end != 0x0b {
		return wasm.ConstExpr{}, api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "const expr missing end opcode, got 0x%02x", end)
	}
	return ce, nil
}

func (d *decoder) decodeGlobalSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxGlobals, "global section"); err != nil {
		return err
	}
	m.GlobalSection = make([]wasm.Global, n)
	for i := range m.GlobalSection {
		vt, err := d.readValueType()
		if err != nil {
			return err
		}
		mut, err := d.readByte()
		if err != nil {
			return err
		}
		init, err := d.decodeConstExpr()
		if err != nil {
			return err
		}
		m.GlobalSection[i] = wasm.Global{Type: wasm.GlobalType{ValType: vt, Mutable: mut == 1}, Init: init}
	}
	return nil
}

func (d *decoder) decodeExportSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxExports, "export section"); err != nil {
		return err
	}
	m.ExportSection = make([]wasm.Export, n)
	for i := range m.ExportSection {
		name, err := d.readName()
		if err != nil {
			return err
		}
		kindByte, err := d.readByte()
		if err != nil {
			return err
		}
		idx, err := d.readU32()
		if err != nil {
			return err
		}
		m.ExportSection[i] = wasm.Export{Name: name, Kind: wasm.ImportKind(kindByte), Index: idx}
	}
	return nil
}

func (d *decoder) decodeStartSection(m *wasm.Module) error {
	idx, err := d.readU32()
	if err != nil {
		return err
	}
	m.StartSection = &idx
	return nil
}

func (d *decoder) decodeElementSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxElements, "element section"); err != nil {
		return err
	}
	m.ElementSection = make([]wasm.ElementSegment, n)
	for i := range m.ElementSection {
		flag, err := d.readU32()
		if err != nil {
			return err
		}
		seg := wasm.ElementSegment{RefType: api.ValueTypeFuncref}
		switch flag {
		case 0:
			seg.Mode = wasm.ElementModeActive
			off, err := d.decodeConstExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
			if err := d.decodeElemFuncIndexes(&seg); err != nil {
				return err
			}
		case 1:
			seg.Mode = wasm.ElementModePassive
			if _, err := d.readByte(); err != nil { // elemkind
				return err
			}
			if err := d.decodeElemFuncIndexes(&seg); err != nil {
				return err
			}
		case 2:
			seg.Mode = wasm.ElementModeActive
			tblIdx, err := d.readU32()
			if err != nil {
				return err
			}
			seg.TableIdx = tblIdx
			off, err := d.decodeConstExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
			if _, err := d.readByte(); err != nil {
				return err
			}
			if err := d.decodeElemFuncIndexes(&seg); err != nil {
				return err
			}
		case 3:
			seg.Mode = wasm.ElementModeDeclarative
			if _, err := d.readByte(); err != nil {
				return err
			}
			if err := d.decodeElemFuncIndexes(&seg); err != nil {
				return err
			}
		default:
			return api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "unsupported element segment flag %d", flag)
		}
		m.ElementSection[i] = seg
	}
	return nil
}

func (d *decoder) decodeElemFuncIndexes(seg *wasm.ElementSegment) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	// Each index is at least one byte, so a count beyond that is a lie.
	if uint64(n) > uint64(len(d.buf)-d.pos) {
		return api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF,
			"element index count %d exceeds section size", n)
	}
	seg.FuncIndexes = make([]wasm.Index, n)
	for i := range seg.FuncIndexes {
		idx, err := d.readU32()
		if err != nil {
			return err
		}
		seg.FuncIndexes[i] = idx
	}
	return nil
}

func (d *decoder) decodeCodeSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxFunctions, "code section"); err != nil {
		return err
	}
	m.CodeSection = make([]wasm.Code, n)
	for i := range m.CodeSection {
		size, err := d.readU32()
		if err != nil {
			return err
		}
		body, err := d.readBytes(size)
		if err != nil {
			return err
		}
		code, err := decodeFunctionBody(body)
		if err != nil {
			return err
		}
		m.CodeSection[i] = code
	}
	return nil
}

// maxLocalsPerFunction caps the expanded local count of one function, so a
// crafted run-length entry cannot force a multi-gigabyte allocation when
// locals are materialized for validation or a call frame.
const maxLocalsPerFunction = 50_000

func decodeFunctionBody(body []byte) (wasm.Code, error) {
	bd := &decoder{buf: body}
	localGroups, err := bd.readU32()
	if err != nil {
		return wasm.Code{}, err
	}
	// Each group is at least two bytes, so a count beyond that is a lie.
	if uint64(localGroups)*2 > uint64(len(bd.buf)-bd.pos) {
		return wasm.Code{}, api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF,
			"local group count %d exceeds body size", localGroups)
	}
	locals := make([]wasm.LocalEntry, localGroups)
	var total uint64
	for i := range locals {
		count, err := bd.readU32()
		if err != nil {
			return wasm.Code{}, err
		}
		vt, err := bd.readValueType()
		if err != nil {
			return wasm.Code{}, err
		}
		total += uint64(count)
		if total > maxLocalsPerFunction {
			return wasm.Code{}, api.NewError(api.ErrorCategoryCapacity, api.CodeCapacityExceeded,
				"function declares more than %d locals", maxLocalsPerFunction)
		}
		locals[i] = wasm.LocalEntry{Count: count, Type: vt}
	}
	return wasm.Code{Locals: locals, Body: bd.buf[bd.pos:]}, nil
}

func (d *decoder) decodeDataSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	if err := checkCount(n, d.limits.MaxDataSegs, "data section"); err != nil {
		return err
	}
	m.DataSection = make([]wasm.DataSegment, n)
	for i := range m.DataSection {
		flag, err := d.readU32()
		if err != nil {
			return err
		}
		seg := wasm.DataSegment{}
		switch flag {
		case 0:
			seg.Mode = wasm.DataModeActive
			off, err := d.decodeConstExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
		case 1:
			seg.Mode = wasm.DataModePassive
		case 2:
			seg.Mode = wasm.DataModeActive
			memIdx, err := d.readU32()
			if err != nil {
				return err
			}
			seg.MemIdx = memIdx
			off, err := d.decodeConstExpr()
			if err != nil {
				return err
			}
			seg.Offset = off
		default:
			return api.NewError(api.ErrorCategoryParse, api.CodeBadMagic, "unsupported data segment flag %d", flag)
		}
		size, err := d.readU32()
		if err != nil {
			return err
		}
		init, err := d.readBytes(size)
		if err != nil {
			return err
		}
		seg.Init = init
		m.DataSection[i] = seg
	}
	return nil
}

func (d *decoder) decodeDataCountSection(m *wasm.Module) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	m.DataCountSection = &n
	return nil
}

// maxCustomSectionName caps a stored custom-section name; longer names are
// truncated (rune-safe) rather than failing the whole decode.
const maxCustomSectionName = 256

func (d *decoder) decodeCustomSection(m *wasm.Module) error {
	rawName, err := d.readName()
	if err != nil {
		return err
	}
	name := substrate.NewBoundedStringTruncating(rawName, maxCustomSectionName).String()
	raw := append([]byte(nil), d.buf[d.pos:]...)
	m.CustomSections = append(m.CustomSections, wasm.CustomSection{Name: name, Data: raw})
	if name != "name" {
		d.pos = len(d.buf) // stored raw; contents are opaque to the runtime
		return nil
	}
	ns := &wasm.NameSection{FunctionNames: map[wasm.Index]string{}, LocalNames: map[wasm.Index]map[wasm.Index]string{}}
	for !d.eof() {
		subID, err := d.readByte()
		if err != nil {
			return err
		}
		size, err := d.readU32()
		if err != nil {
			return err
		}
		payload, err := d.readBytes(size)
		if err != nil {
			return err
		}
		sd := &decoder{buf: payload}
		switch subID {
		case 0:
			n, err := sd.readName()
			if err != nil {
				return err
			}
			ns.ModuleName = n
		case 1:
			if err := sd.decodeNameMap(ns.FunctionNames); err != nil {
				return err
			}
		}
	}
	m.NameSection = ns
	return nil
}

func (d *decoder) decodeNameMap(out map[wasm.Index]string) error {
	n, err := d.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		idx, err := d.readU32()
		if err != nil {
			return err
		}
		name, err := d.readName()
		if err != nil {
			return err
		}
		out[idx] = name
	}
	return nil
}
