// Package leb128 encodes and decodes the LEB128 variable-length integers
// used throughout the WebAssembly binary format: unsigned LEB128 for indices
// and counts, signed LEB128 for immediates such as i32.const.
//
// Every decoder here enforces the two failure modes the binary format
// defines for a malformed varint: the byte sequence ends before the
// continuation bit clears (UnexpectedEof), or it runs past the maximum
// number of bytes a value of that width can need and still have the high
// bits disagree with the sign extension (LebOverflow). Neither condition
// allocates or recurses; both return api.Error values.
package leb128

import (
	"io"

	"github.com/avrabe/wrt/api"
)

func errUnexpectedEOF() error {
	return api.NewError(api.ErrorCategoryParse, api.CodeUnexpectedEOF, "unexpected EOF decoding LEB128 value")
}

func errOverflow(kind string) error {
	return api.NewError(api.ErrorCategoryParse, api.CodeLebOverflow, "LEB128 %s overflow", kind)
}

// LoadUint32 decodes an unsigned LEB128 u32 from buf, returning the value,
// the number of bytes consumed, and an error. A u32 needs at most 5 bytes;
// a 5th byte with any of its upper 3 data bits set cannot fit in 32 bits.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := loadUint(buf, 32)
	return uint32(v), n, err
}

// LoadUint64 decodes an unsigned LEB128 u64 from buf. A u64 needs at most 10
// bytes; the 10th byte may only carry a single data bit.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return loadUint(buf, 64)
}

func loadUint(buf []byte, width uint) (uint64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result uint64
	var shift uint
	for i := uint64(0); ; i++ {
		if i >= uint64(maxBytes) {
			return 0, 0, errOverflow("unsigned")
		}
		if i >= uint64(len(buf)) {
			return 0, 0, errUnexpectedEOF()
		}
		b := buf[i]
		chunk := uint64(b & 0x7f)
		if shift+7 > 64 && (chunk>>(64-shift)) != 0 {
			return 0, 0, errOverflow("unsigned")
		}
		result |= chunk << shift
		if b&0x80 == 0 {
			if shift+7 < width {
				// fewer significant bits than a full width would need: fine.
			} else if width < 64 {
				mask := uint64(1)<<width - 1
				if result&^mask != 0 {
					return 0, 0, errOverflow("unsigned")
				}
			}
			return result, i + 1, nil
		}
		shift += 7
	}
}

// LoadInt32 decodes a signed LEB128 i32 from buf, sign-extending the final
// byte's top data bit across the rest of the word.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadInt(buf, 32)
	return int32(v), n, err
}

// LoadInt64 decodes a signed LEB128 i64 from buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	v, n, err := loadInt(buf, 64)
	return v, n, err
}

func loadInt(buf []byte, width uint) (int64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result int64
	var shift uint
	var b byte
	var i uint64
	for {
		if i >= uint64(maxBytes) {
			return 0, 0, errOverflow("signed")
		}
		if i >= uint64(len(buf)) {
			return 0, 0, errUnexpectedEOF()
		}
		b = buf[i]
		result |= int64(b&0x7f) << shift
		shift += 7
		i++
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if width < 64 {
		// The sign-extended 64-bit result must round-trip through the
		// narrower width: re-truncating and re-extending must be a no-op.
		narrowed := result << (64 - width) >> (64 - width)
		if narrowed != result {
			return 0, 0, errOverflow("signed")
		}
	}
	return result, i, nil
}

// DecodeUint32 streams an unsigned LEB128 u32 from r, one byte at a time.
// Used by the decoder front-end when parsing directly from a bufio.Reader
// over a module image rather than from an in-memory byte slice.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUint(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 streams an unsigned LEB128 u64 from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUint(r, 64)
}

func decodeUint(r io.ByteReader, width uint) (uint64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result uint64
	var shift uint
	var n uint64
	for {
		if n >= uint64(maxBytes) {
			return 0, 0, errOverflow("unsigned")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, errUnexpectedEOF()
		}
		n++
		chunk := uint64(b & 0x7f)
		if shift+7 > 64 && (chunk>>(64-shift)) != 0 {
			return 0, 0, errOverflow("unsigned")
		}
		result |= chunk << shift
		if b&0x80 == 0 {
			if width < 64 {
				mask := uint64(1)<<width - 1
				if shift+7 >= width && result&^mask != 0 {
					return 0, 0, errOverflow("unsigned")
				}
			}
			return result, n, nil
		}
		shift += 7
	}
}

// DecodeInt32 streams a signed LEB128 i32 from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeInt(r, 32)
	return int32(v), n, err
}

// DecodeInt64 streams a signed LEB128 i64 from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeInt(r, 64)
}

func decodeInt(r io.ByteReader, width uint) (int64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result int64
	var shift uint
	var b byte
	var n uint64
	for {
		if n >= uint64(maxBytes) {
			return 0, 0, errOverflow("signed")
		}
		rb, err := r.ReadByte()
		if err != nil {
			return 0, 0, errUnexpectedEOF()
		}
		b = rb
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if width < 64 {
		narrowed := result << (64 - width) >> (64 - width)
		if narrowed != result {
			return 0, 0, errOverflow("signed")
		}
	}
	return result, n, nil
}

// EncodeUint32 returns the unsigned LEB128 encoding of v.
func EncodeUint32(v uint32) []byte { return encodeUint(uint64(v)) }

// EncodeUint64 returns the unsigned LEB128 encoding of v.
func EncodeUint64(v uint64) []byte { return encodeUint(v) }

func encodeUint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		out = append(out, b)
		return out
	}
}

// EncodeInt32 returns the signed LEB128 encoding of v.
func EncodeInt32(v int32) []byte { return encodeInt(int64(v)) }

// EncodeInt64 returns the signed LEB128 encoding of v.
func EncodeInt64(v int64) []byte {
	return encodeInt(v)
}

func encodeInt(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}
