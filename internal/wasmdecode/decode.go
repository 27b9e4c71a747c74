package wasmdecode

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/wasmtype"
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d}
var version = []byte{0x01, 0x00, 0x00, 0x00}

const (
	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionTable    = 4
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionStart    = 8
	sectionElement  = 9
	sectionCode     = 10
	sectionData     = 11
)

type cursor struct {
	r *bytes.Reader
}

func (c *cursor) byte() (byte, error) {
	return c.r.ReadByte()
}

func (c *cursor) u32() (uint32, error) {
	v, _, err := DecodeUint32(c.r)
	return v, err
}

func (c *cursor) s32() (int32, error) {
	v, _, err := DecodeInt32(c.r)
	return v, err
}

func (c *cursor) s64() (int64, error) {
	v, _, err := DecodeInt64(c.r)
	return v, err
}

func (c *cursor) bytes(n uint32) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *cursor) name() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	b, err := c.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) valueType() (wasmtype.ValueType, error) {
	b, err := c.byte()
	if err != nil {
		return 0, err
	}
	switch wasmtype.ValueType(b) {
	case wasmtype.ValueTypeI32, wasmtype.ValueTypeI64, wasmtype.ValueTypeF32, wasmtype.ValueTypeF64:
		return wasmtype.ValueType(b), nil
	default:
		return 0, fmt.Errorf("wasmdecode: unsupported value type 0x%x", b)
	}
}

func (c *cursor) limits() (wasmtype.Limits, error) {
	flag, err := c.byte()
	if err != nil {
		return wasmtype.Limits{}, err
	}
	min, err := c.u32()
	if err != nil {
		return wasmtype.Limits{}, err
	}
	l := wasmtype.Limits{Min: min}
	if flag == 1 {
		max, err := c.u32()
		if err != nil {
			return wasmtype.Limits{}, err
		}
		l.Max = max
		l.HasMax = true
	}
	return l, nil
}

// constExpr decodes a single constant instruction followed by the `end`
// opcode (0x0b), the only initializer-expression form spec.md §4.3
// requires support for.
func (c *cursor) constExpr() (ConstExpr, error) {
	op, err := c.byte()
	if err != nil {
		return ConstExpr{}, err
	}
	var ce ConstExpr
	switch op {
	case 0x41: // i32.const
		v, err := c.s32()
		if err != nil {
			return ConstExpr{}, err
		}
		ce = ConstExpr{Kind: ConstI32, I32: v}
	case 0x42: // i64.const
		v, err := c.s64()
		if err != nil {
			return ConstExpr{}, err
		}
		ce = ConstExpr{Kind: ConstI64, I64: v}
	case 0x43: // f32.const
		b, err := c.bytes(4)
		if err != nil {
			return ConstExpr{}, err
		}
		bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		ce = ConstExpr{Kind: ConstF32, F32: math.Float32frombits(bits)}
	case 0x44: // f64.const
		b, err := c.bytes(8)
		if err != nil {
			return ConstExpr{}, err
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(b[i]) << (8 * i)
		}
		ce = ConstExpr{Kind: ConstF64, F64: math.Float64frombits(bits)}
	default:
		return ConstExpr{}, fmt.Errorf("wasmdecode: unsupported const-expr opcode 0x%x", op)
	}
	end, err := c.byte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != 0x0b {
		return ConstExpr{}, fmt.Errorf("wasmdecode: const-expr missing end opcode")
	}
	return ce, nil
}

// Decode parses a WebAssembly binary module. It stops at the boundary
// between module structure and instruction encoding: function bodies are
// returned as raw bytes for the compiler to lower.
func Decode(r io.Reader) (*Module, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nabi.Internal("wasmdecode: read: %v", err)
	}
	if len(raw) < 8 || !bytes.Equal(raw[:4], magic) || !bytes.Equal(raw[4:8], version) {
		return nil, nabi.InvalidArgs("wasmdecode: not a WebAssembly MVP binary module")
	}
	c := &cursor{r: bytes.NewReader(raw[8:])}
	m := &Module{}

	for {
		id, err := c.byte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nabi.InvalidArgs("wasmdecode: section id: %v", err)
		}
		size, err := c.u32()
		if err != nil {
			return nil, nabi.InvalidArgs("wasmdecode: section size: %v", err)
		}
		payload, err := c.bytes(size)
		if err != nil {
			return nil, nabi.InvalidArgs("wasmdecode: section payload: %v", err)
		}
		sc := &cursor{r: bytes.NewReader(payload)}
		if err := decodeSection(m, id, sc); err != nil {
			return nil, nabi.InvalidArgs("wasmdecode: section 0x%x: %v", id, err)
		}
	}
	return m, nil
}

func decodeSection(m *Module, id byte, c *cursor) error {
	switch id {
	case sectionCustom:
		return nil // custom sections (names, producers, ...) carry no semantics we act on
	case sectionType:
		return decodeTypeSection(m, c)
	case sectionImport:
		return decodeImportSection(m, c)
	case sectionFunction:
		return decodeFunctionSection(m, c)
	case sectionTable:
		return decodeTableSection(m, c)
	case sectionMemory:
		return decodeMemorySection(m, c)
	case sectionGlobal:
		return decodeGlobalSection(m, c)
	case sectionExport:
		return decodeExportSection(m, c)
	case sectionStart:
		idx, err := c.u32()
		if err != nil {
			return err
		}
		m.StartFunc = &idx
		return nil
	case sectionElement:
		return decodeElementSection(m, c)
	case sectionCode:
		return decodeCodeSection(m, c)
	case sectionData:
		return decodeDataSection(m, c)
	default:
		return fmt.Errorf("unknown section id %d", id)
	}
}

func decodeTypeSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := c.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("unsupported type form 0x%x", form)
		}
		np, err := c.u32()
		if err != nil {
			return err
		}
		params := make([]wasmtype.ValueType, np)
		for j := range params {
			if params[j], err = c.valueType(); err != nil {
				return err
			}
		}
		nr, err := c.u32()
		if err != nil {
			return err
		}
		results := make([]wasmtype.ValueType, nr)
		for j := range results {
			if results[j], err = c.valueType(); err != nil {
				return err
			}
		}
		m.Types = append(m.Types, wasmtype.FuncType{Params: params, Results: results})
	}
	return nil
}

func decodeImportSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		mod, err := c.name()
		if err != nil {
			return err
		}
		field, err := c.name()
		if err != nil {
			return err
		}
		kind, err := c.byte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: field, Kind: wasmtype.ExternType(kind)}
		switch wasmtype.ExternType(kind) {
		case wasmtype.ExternTypeFunc:
			if imp.TypeIndex, err = c.u32(); err != nil {
				return err
			}
		case wasmtype.ExternTypeTable:
			if _, err := c.byte(); err != nil { // elemtype, always funcref (0x70)
				return err
			}
			if imp.TableLimits, err = c.limits(); err != nil {
				return err
			}
		case wasmtype.ExternTypeMemory:
			if imp.MemoryLimits, err = c.limits(); err != nil {
				return err
			}
		case wasmtype.ExternTypeGlobal:
			vt, err := c.valueType()
			if err != nil {
				return err
			}
			mut, err := c.byte()
			if err != nil {
				return err
			}
			imp.Global = wasmtype.GlobalType{Type: vt, Mutable: mut == 1}
		default:
			return fmt.Errorf("unsupported import kind 0x%x", kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func decodeFunctionSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		idx, err := c.u32()
		if err != nil {
			return err
		}
		m.Functions = append(m.Functions, idx)
	}
	return nil
}

func decodeTableSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := c.byte(); err != nil { // elemtype
			return err
		}
		l, err := c.limits()
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, l)
	}
	return nil
}

func decodeMemorySection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		l, err := c.limits()
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, l)
	}
	return nil
}

func decodeGlobalSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		vt, err := c.valueType()
		if err != nil {
			return err
		}
		mut, err := c.byte()
		if err != nil {
			return err
		}
		init, err := c.constExpr()
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{
			Type: wasmtype.GlobalType{Type: vt, Mutable: mut == 1},
			Init: init,
		})
	}
	return nil
}

func decodeExportSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := c.name()
		if err != nil {
			return err
		}
		kind, err := c.byte()
		if err != nil {
			return err
		}
		idx, err := c.u32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: wasmtype.ExternType(kind), Index: idx})
	}
	return nil
}

func decodeElementSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		tblIdx, err := c.u32()
		if err != nil {
			return err
		}
		offset, err := c.constExpr()
		if err != nil {
			return err
		}
		count, err := c.u32()
		if err != nil {
			return err
		}
		funcs := make([]uint32, count)
		for j := range funcs {
			if funcs[j], err = c.u32(); err != nil {
				return err
			}
		}
		m.Elements = append(m.Elements, ElementSegment{TableIndex: tblIdx, Offset: offset, FuncIndices: funcs})
	}
	return nil
}

func decodeCodeSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		bodySize, err := c.u32()
		if err != nil {
			return err
		}
		bodyBytes, err := c.bytes(bodySize)
		if err != nil {
			return err
		}
		bc := &cursor{r: bytes.NewReader(bodyBytes)}
		localGroups, err := bc.u32()
		if err != nil {
			return err
		}
		var locals []wasmtype.ValueType
		for g := uint32(0); g < localGroups; g++ {
			count, err := bc.u32()
			if err != nil {
				return err
			}
			vt, err := bc.valueType()
			if err != nil {
				return err
			}
			for k := uint32(0); k < count; k++ {
				locals = append(locals, vt)
			}
		}
		rest := make([]byte, bc.r.Len())
		if _, err := io.ReadFull(bc.r, rest); err != nil {
			return err
		}
		m.Code = append(m.Code, CodeBody{Locals: locals, Body: rest})
	}
	return nil
}

func decodeDataSection(m *Module, c *cursor) error {
	n, err := c.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		memIdx, err := c.u32()
		if err != nil {
			return err
		}
		offset, err := c.constExpr()
		if err != nil {
			return err
		}
		size, err := c.u32()
		if err != nil {
			return err
		}
		data, err := c.bytes(size)
		if err != nil {
			return err
		}
		m.Data = append(m.Data, DataSegment{MemoryIndex: memIdx, Offset: offset, Bytes: data})
	}
	return nil
}
