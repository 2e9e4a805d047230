package pcd

import (
	"fmt"
	"strings"
)

// FieldKind is the numeric kind of a PCD field as declared by the TYPE header.
type FieldKind byte

const (
	FieldFloat    FieldKind = 'F'
	FieldUnsigned FieldKind = 'U'
	FieldSigned   FieldKind = 'I'
)

func (k FieldKind) String() string {
	return string(k)
}

func parseFieldKind(s string) (FieldKind, error) {
	switch s {
	case "F":
		return FieldFloat, nil
	case "U":
		return FieldUnsigned, nil
	case "I":
		return FieldSigned, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// Encoding is the payload encoding announced by the DATA header line.
type Encoding int

const (
	EncodingASCII Encoding = iota
	EncodingBinary
)

func (e Encoding) String() string {
	if e == EncodingASCII {
		return "ascii"
	}
	return "binary"
}

func parseEncoding(s string) Encoding {
	if strings.ToLower(s) == "ascii" {
		return EncodingASCII
	}
	return EncodingBinary
}

// Field describes one entry of a binary point record.
type Field struct {
	Name  string
	Size  int
	Count int
	Kind  FieldKind
}

// Width is the number of bytes the field occupies in a record.
func (f Field) Width() int {
	return f.Size * f.Count
}

// Header holds the parsed PCD header.
type Header struct {
	Fields []Field
	Width  int
	Height int
	Points int
	Data   Encoding
	// RawData is the DATA token as written in the file, e.g. "binary_compressed".
	RawData string
}

// PointStep returns the binary record stride in bytes.
func (h Header) PointStep() int {
	var w int
	for _, f := range h.Fields {
		w += f.Width()
	}
	return w
}

// Offset returns the byte offset of the named field inside a record, or -1.
func (h Header) Offset(name string) int {
	var off int
	for _, f := range h.Fields {
		if f.Name == name {
			return off
		}
		off += f.Width()
	}
	return -1
}

// Compressed reports whether the file declared binary_compressed data.
func (h Header) Compressed() bool {
	return strings.ToLower(h.RawData) == "binary_compressed"
}
