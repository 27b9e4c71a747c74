package wasmdecode

import (
	"fmt"
	"io"
)

// LEB128 varint codecs for the WebAssembly binary format. Grounded on the
// teacher's wasm/leb128 package contract (DecodeUint32/DecodeInt32/
// DecodeInt64/EncodeUint32 with a bytes-consumed count alongside the
// value), rewritten here since the binary decoder needs it directly.

// EncodeUint32 encodes v as an unsigned LEB128 varint.
func EncodeUint32(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// DecodeUint32 reads an unsigned LEB128 varint, returning the value, the
// number of bytes consumed, and an error if the encoding overflows 32 bits
// or the stream ends early.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	var result uint32
	var shift uint
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("wasmdecode: leb128 u32: %w", err)
		}
		n++
		if shift >= 32 {
			return 0, 0, fmt.Errorf("wasmdecode: leb128 u32: overflow")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift == 28 && b > 0xf {
				return 0, 0, fmt.Errorf("wasmdecode: leb128 u32: overflow")
			}
			return result, n, nil
		}
		shift += 7
	}
}

// DecodeInt32 reads a signed LEB128 varint into an int32.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128 varint into an int64.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

// DecodeInt33AsInt64 reads a signed 33-bit LEB128 varint (used for
// WebAssembly block types / s33 immediates) sign-extended into an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

func decodeSigned(r io.ByteReader, size uint) (int64, uint64, error) {
	var result int64
	var shift uint
	var n uint64
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("wasmdecode: leb128 signed: %w", err)
		}
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= size {
			return 0, 0, fmt.Errorf("wasmdecode: leb128 signed: overflow")
		}
	}
	if shift < size && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n, nil
}
