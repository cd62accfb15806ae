// Package wirehdr frames the self-describing headers of the binary field
// files: an 8-byte little-endian length followed by a flat protobuf-wire
// message of varint and double fields.
package wirehdr

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builder accumulates header fields in wire order.
type Builder struct {
	b []byte
}

func (h *Builder) Uint(num protowire.Number, v uint64) {
	h.b = protowire.AppendTag(h.b, num, protowire.VarintType)
	h.b = protowire.AppendVarint(h.b, v)
}

func (h *Builder) Float(num protowire.Number, v float64) {
	h.b = protowire.AppendTag(h.b, num, protowire.Fixed64Type)
	h.b = protowire.AppendFixed64(h.b, math.Float64bits(v))
}

func (h *Builder) Bytes() []byte {
	return h.b
}

// Header is a parsed header.  Fields of unknown wire types are skipped; later
// occurrences of a field win.
type Header struct {
	uints  map[protowire.Number]uint64
	floats map[protowire.Number]float64
}

func Parse(b []byte) (*Header, error) {
	h := &Header{
		uints:  map[protowire.Number]uint64{},
		floats: map[protowire.Number]float64{},
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("while consuming tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("while consuming field %d: %w", num, protowire.ParseError(n))
			}
			h.uints[num] = v
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, fmt.Errorf("while consuming field %d: %w", num, protowire.ParseError(n))
			}
			h.floats[num] = math.Float64frombits(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("while skipping field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return h, nil
}

// Uint returns a varint field, or zero if absent.
func (h *Header) Uint(num protowire.Number) uint64 {
	return h.uints[num]
}

// Float returns a double field, or zero if absent.
func (h *Header) Float(num protowire.Number) float64 {
	return h.floats[num]
}

func Write(w io.Writer, hdr []byte) error {
	headerLengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(headerLengthBytes, uint64(len(hdr)))
	if _, err := w.Write(headerLengthBytes); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}
	return nil
}

// maxHeaderLength bounds the allocation made for a corrupt length prefix.
const maxHeaderLength = 1 << 20

func Read(in io.Reader) (*Header, error) {
	var headerLength uint64
	if err := binary.Read(in, binary.LittleEndian, &headerLength); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}
	if headerLength > maxHeaderLength {
		return nil, fmt.Errorf("header length %d is implausible", headerLength)
	}

	headerBytes := make([]byte, int(headerLength))
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header bytes: %w", err)
	}

	hdr, err := Parse(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("while parsing header: %w", err)
	}
	return hdr, nil
}
