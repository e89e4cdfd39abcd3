package resp

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

var (
	// ErrIncomplete is returned by Parse when buf holds only part of a reply
	ErrIncomplete = errors.New("incomplete reply")

	// ErrTooLarge is returned when a reply does not fit into the reader's buffer limit
	ErrTooLarge = errors.New("reply exceeds buffer limit")
)

// Type is the prefix byte of a RESP frame
type Type byte

// RESP2 and RESP3 frame types
const (
	TypeSimpleString Type = '+'
	TypeError        Type = '-'
	TypeInteger      Type = ':'
	TypeBulkString   Type = '$'
	TypeArray        Type = '*'
	TypeNull         Type = '_'
	TypeDouble       Type = ','
	TypeBoolean      Type = '#'
	TypeBlobError    Type = '!'
	TypeVerbatim     Type = '='
	TypeBigNumber    Type = '('
	TypeMap          Type = '%'
	TypeSet          Type = '~'
	TypeAttribute    Type = '|'
	TypePush         Type = '>'
)

// String implements the fmt.Stringer interface.
func (t Type) String() string {
	return string(t)
}

// MaxBulkLen is the largest bulk payload accepted, the same as redis' proto-max-bulk-len
const MaxBulkLen = 512 << 20

// MaxAggregateLen caps the element count an aggregate header may announce
const MaxAggregateLen = MaxBulkLen

// MaxDepth caps how deeply aggregates may nest
const MaxDepth = 128

// Node is one parsed frame. Str aliases the parse buffer and is only valid until
// the buffer is reused, Decode copies it out.
type Node struct {
	Type  Type
	Null  bool
	Str   []byte
	Elems []*Node
}

// Parse parses one frame from the front of buf and returns it with the number of
// bytes consumed. ErrIncomplete means buf ends before the frame does.
func Parse(buf []byte) (*Node, int, error) {
	return parse(buf, 0, 0)
}

func parse(buf []byte, pos, depth int) (*Node, int, error) {
	if depth > MaxDepth {
		return nil, 0, ErrInvalidProtocol
	}
	if pos >= len(buf) {
		return nil, 0, ErrIncomplete
	}
	t := Type(buf[pos])
	line, next, err := readLine(buf, pos+1)
	if err != nil {
		return nil, 0, err
	}

	switch t {
	case TypeSimpleString, TypeError, TypeBigNumber:
		return &Node{Type: t, Str: line}, next, nil
	case TypeInteger:
		if !isInteger(line) {
			return nil, 0, ErrInvalidProtocol
		}
		return &Node{Type: t, Str: line}, next, nil
	case TypeDouble:
		if len(line) == 0 {
			return nil, 0, ErrInvalidProtocol
		}
		return &Node{Type: t, Str: line}, next, nil
	case TypeNull:
		if len(line) != 0 {
			return nil, 0, ErrInvalidProtocol
		}
		return &Node{Type: t, Null: true}, next, nil
	case TypeBoolean:
		if len(line) != 1 || (line[0] != 't' && line[0] != 'f') {
			return nil, 0, ErrInvalidProtocol
		}
		return &Node{Type: t, Str: line}, next, nil
	case TypeBulkString, TypeBlobError, TypeVerbatim:
		n, err := parseLength(line)
		if err != nil {
			return nil, 0, err
		}
		if n == -1 {
			return &Node{Type: t, Null: true}, next, nil
		}
		if n > MaxBulkLen {
			return nil, 0, ErrInvalidProtocol
		}
		end := next + n
		if end+2 > len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, ErrInvalidProtocol
		}
		return &Node{Type: t, Str: buf[next:end]}, end + 2, nil
	case TypeArray, TypeSet, TypePush, TypeMap, TypeAttribute:
		n, err := parseLength(line)
		if err != nil {
			return nil, 0, err
		}
		if n == -1 {
			return &Node{Type: t, Null: true}, next, nil
		}
		if n > MaxAggregateLen {
			return nil, 0, ErrInvalidProtocol
		}
		if t == TypeMap || t == TypeAttribute {
			n *= 2
		}
		// every element takes at least three bytes, do not trust the header further
		capacity := n
		if remain := (len(buf) - next) / 3; capacity > remain {
			capacity = remain
		}
		if capacity < 0 {
			capacity = 0
		}
		node := &Node{Type: t, Elems: make([]*Node, 0, capacity)}
		for i := 0; i < n; i++ {
			elem, after, err := parse(buf, next, depth+1)
			if err != nil {
				return nil, 0, err
			}
			node.Elems = append(node.Elems, elem)
			next = after
		}
		return node, next, nil
	}
	return nil, 0, ErrInvalidProtocol
}

func readLine(buf []byte, pos int) ([]byte, int, error) {
	i := bytes.IndexByte(buf[pos:], '\n')
	if i < 0 {
		return nil, 0, ErrIncomplete
	}
	end := pos + i
	if end == pos || buf[end-1] != '\r' {
		return nil, 0, ErrInvalidProtocol
	}
	return buf[pos : end-1], end + 1, nil
}

func isInteger(b []byte) bool {
	if len(b) > 0 && (b[0] == '-' || b[0] == '+') {
		b = b[1:]
	}
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func parseLength(b []byte) (int, error) {
	n, err := strconv.Atoi(string(b))
	if err != nil || n < -1 {
		return 0, ErrInvalidProtocol
	}
	return n, nil
}

// Reader reads frames from an io.Reader, buffering partial frames between reads
type Reader struct {
	rd    io.Reader
	buf   []byte
	start int
	end   int
	limit int
}

const defaultReaderSize = 16 * 1024

// NewReader creates a Reader, limit caps the buffer size and 0 means unlimited
func NewReader(rd io.Reader, limit int) *Reader {
	return &Reader{rd: rd, buf: make([]byte, defaultReaderSize), limit: limit}
}

// Buffered returns the number of bytes waiting to be parsed
func (r *Reader) Buffered() int {
	return r.end - r.start
}

// Next parses a frame from the buffered bytes only, it never reads.
// The returned node is valid until the next call on r.
func (r *Reader) Next() (*Node, error) {
	if r.start == r.end {
		return nil, ErrIncomplete
	}
	node, n, err := Parse(r.buf[r.start:r.end])
	if err != nil {
		return nil, err
	}
	r.start += n
	return node, nil
}

// ReadNode returns the next frame, reading from the underlying reader until a
// whole frame is buffered
func (r *Reader) ReadNode() (*Node, error) {
	for {
		node, err := r.Next()
		if err != ErrIncomplete {
			return node, err
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// Feed appends p to the buffer, used when bytes come from somewhere other than rd
func (r *Reader) Feed(p []byte) error {
	if err := r.reserve(len(p)); err != nil {
		return err
	}
	r.end += copy(r.buf[r.end:], p)
	return nil
}

// Space returns writable free space of at least min bytes at the end of the buffer.
// The caller reports how much it filled with Commit.
func (r *Reader) Space(min int) ([]byte, error) {
	if err := r.reserve(min); err != nil {
		return nil, err
	}
	return r.buf[r.end:], nil
}

// Commit marks n bytes returned by Space as filled
func (r *Reader) Commit(n int) {
	r.end += n
}

func (r *Reader) fill() error {
	p, err := r.Space(1)
	if err != nil {
		return err
	}
	n, err := r.rd.Read(p)
	r.end += n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

func (r *Reader) reserve(n int) error {
	if r.start > 0 {
		copy(r.buf, r.buf[r.start:r.end])
		r.end -= r.start
		r.start = 0
	}
	if len(r.buf)-r.end >= n {
		return nil
	}
	size := 2 * len(r.buf)
	if size < r.end+n {
		size = r.end + n
	}
	if r.limit > 0 && size > r.limit {
		size = r.limit
		if size-r.end < n {
			return ErrTooLarge
		}
	}
	buf := make([]byte, size)
	copy(buf, r.buf[:r.end])
	r.buf = buf
	return nil
}
