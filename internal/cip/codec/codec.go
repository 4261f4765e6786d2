// Package codec provides byte-order helpers and fixed-point format
// descriptors shared by the wire parsers and producers.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire is the byte order of CIP and EtherNet/IP multi-byte integers.
var Wire binary.ByteOrder = binary.LittleEndian

// AppendUint16 appends a uint16 to dst using the provided byte order.
func AppendUint16(order binary.ByteOrder, dst []byte, value uint16) []byte {
	var buf [2]byte
	order.PutUint16(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendUint32 appends a uint32 to dst using the provided byte order.
func AppendUint32(order binary.ByteOrder, dst []byte, value uint32) []byte {
	var buf [4]byte
	order.PutUint32(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendUint64 appends a uint64 to dst using the provided byte order.
func AppendUint64(order binary.ByteOrder, dst []byte, value uint64) []byte {
	var buf [8]byte
	order.PutUint64(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendFloat32 appends an IEEE-754 single to dst using the provided order.
func AppendFloat32(order binary.ByteOrder, dst []byte, value float32) []byte {
	return AppendUint32(order, dst, math.Float32bits(value))
}

// AppendFloat64 appends an IEEE-754 double to dst using the provided order.
func AppendFloat64(order binary.ByteOrder, dst []byte, value float64) []byte {
	return AppendUint64(order, dst, math.Float64bits(value))
}

// Format describes a fixed-point or floating wire representation.
type Format struct {
	Width  int
	Signed bool
	Float  bool
}

// Decode reinterprets exactly f.Width raw bytes as a typed value.
func (f Format) Decode(order binary.ByteOrder, raw []byte) (any, error) {
	if len(raw) != f.Width {
		return nil, fmt.Errorf("codec: need %d bytes, got %d", f.Width, len(raw))
	}
	var u uint64
	switch f.Width {
	case 1:
		u = uint64(raw[0])
	case 2:
		u = uint64(order.Uint16(raw))
	case 4:
		u = uint64(order.Uint32(raw))
	case 8:
		u = order.Uint64(raw)
	default:
		return nil, fmt.Errorf("codec: unsupported width %d", f.Width)
	}
	if f.Float {
		switch f.Width {
		case 4:
			return float64(math.Float32frombits(uint32(u))), nil
		case 8:
			return math.Float64frombits(u), nil
		default:
			return nil, fmt.Errorf("codec: unsupported float width %d", f.Width)
		}
	}
	if f.Signed {
		shift := 64 - uint(f.Width)*8
		return int64(u<<shift) >> shift, nil
	}
	return u, nil
}

// Encode appends the wire representation of value to dst. Unsigned values
// are range-checked against the format width.
func (f Format) Encode(order binary.ByteOrder, dst []byte, value any) ([]byte, error) {
	var u uint64
	switch {
	case f.Float:
		v, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		if f.Width == 4 {
			u = uint64(math.Float32bits(float32(v)))
		} else {
			u = math.Float64bits(v)
		}
	case f.Signed:
		v, err := asInt(value)
		if err != nil {
			return nil, err
		}
		bits := uint(f.Width) * 8
		min, max := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if f.Width == 8 {
			min, max = math.MinInt64, math.MaxInt64
		}
		if v < min || v > max {
			return nil, fmt.Errorf("codec: value %d out of range for %d-bit signed", v, bits)
		}
		u = uint64(v)
	default:
		v, err := asUint(value)
		if err != nil {
			return nil, err
		}
		if f.Width < 8 && v >= uint64(1)<<(uint(f.Width)*8) {
			return nil, fmt.Errorf("codec: value %d out of range for %d-bit unsigned", v, f.Width*8)
		}
		u = v
	}
	switch f.Width {
	case 1:
		return append(dst, byte(u)), nil
	case 2:
		return AppendUint16(order, dst, uint16(u)), nil
	case 4:
		return AppendUint32(order, dst, uint32(u)), nil
	case 8:
		return AppendUint64(order, dst, u), nil
	default:
		return nil, fmt.Errorf("codec: unsupported width %d", f.Width)
	}
}

func asUint(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("codec: negative value %d for unsigned field", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("codec: negative value %d for unsigned field", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("codec: cannot encode %T as unsigned", v)
	}
}

func asInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("codec: value %d overflows signed field", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("codec: cannot encode %T as signed", v)
	}
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("codec: cannot encode %T as float", v)
	}
}
