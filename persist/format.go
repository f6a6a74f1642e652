// Package persist reads and writes the binary module format and renders
// decoded modules into a graph through the module compiler.
//
// A stream is a little-endian int32 format version followed by records.
// Each record is a uvarint-prefixed type tag and a uvarint-prefixed CBOR
// body. The first record is always the header.
package persist

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FormatVersion is the only version Read accepts.
const FormatVersion int32 = 1

// maxRecordSize bounds a single tag or body.
const maxRecordSize = 16 << 20

var (
	ErrVersionMismatch = errors.New("persist: format version mismatch")
	ErrUnknownNodeType = errors.New("persist: unknown node type")
	ErrMissingHeader   = errors.New("persist: missing header record")
	ErrCorruptData     = errors.New("persist: corrupt data")
	ErrUnexpectedEOF   = errors.New("persist: unexpected end of data")
)

// Source is a decoded module.
type Source struct {
	Header Header
	Nodes  []Node
}

// Add appends nodes to the source.
func (s *Source) Add(nodes ...Node) *Source {
	s.Nodes = append(s.Nodes, nodes...)
	return s
}

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Write encodes src to w.
func Write(w io.Writer, src *Source) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, FormatVersion); err != nil {
		return fmt.Errorf("persist: write version: %w", err)
	}
	if err := writeRecord(bw, headerTag, &src.Header); err != nil {
		return err
	}
	for i, n := range src.Nodes {
		if n == nil {
			return fmt.Errorf("persist: node %d is nil", i)
		}
		if err := writeRecord(bw, n.NodeType(), n); err != nil {
			return fmt.Errorf("persist: node %d: %w", i, err)
		}
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, tag string, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("persist: encode %s: %w", tag, err)
	}
	if err := writeBytes(w, []byte(tag)); err != nil {
		return err
	}
	return writeBytes(w, data)
}

func writeBytes(w *bufio.Writer, b []byte) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(b)))
	if _, err := w.Write(buf[:n]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// Read decodes a stream written by Write. Version mismatches and unknown
// node types are errors; nothing is skipped.
func Read(r io.Reader) (*Source, error) {
	br := bufio.NewReader(r)

	var version int32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: version", ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("persist: read version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, FormatVersion, version)
	}

	tag, data, err := readRecord(br)
	if errors.Is(err, io.EOF) || (err == nil && tag != headerTag) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, err
	}
	src := &Source{}
	if err := unmarshal(data, &src.Header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptData, err)
	}

	for i := 0; ; i++ {
		tag, data, err := readRecord(br)
		if errors.Is(err, io.EOF) {
			return src, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		n, err := newNode(tag)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if err := unmarshal(data, n); err != nil {
			return nil, fmt.Errorf("%w: record %d (%s): %v", ErrCorruptData, i, tag, err)
		}
		src.Nodes = append(src.Nodes, n)
	}
}

// readRecord returns io.EOF only when the stream ends between records.
func readRecord(r *bufio.Reader) (string, []byte, error) {
	tag, err := readBytes(r)
	if err != nil {
		return "", nil, err
	}
	data, err := readBytes(r)
	if errors.Is(err, io.EOF) {
		return "", nil, ErrUnexpectedEOF
	}
	if err != nil {
		return "", nil, err
	}
	return string(tag), data, nil
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if size > maxRecordSize {
		return nil, fmt.Errorf("%w: record of %d bytes", ErrCorruptData, size)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrUnexpectedEOF
	}
	return b, nil
}
