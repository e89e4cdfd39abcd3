package resp

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

var (
	// ErrInvalidProtocol indicates a wrong protocol format
	ErrInvalidProtocol = errors.New("invalid protocol")

	// ErrEmptyCommand is returned when a command has no name
	ErrEmptyCommand = errors.New("empty command name")

	// ErrTooManyArgs is returned when the argument vector can not be represented on the wire
	ErrTooManyArgs = errors.New("too many arguments")
)

// CoerceError reports an argument that has no byte representation
type CoerceError struct {
	Index int
	Value interface{}
}

func (e *CoerceError) Error() string {
	return fmt.Sprintf("argument %d: can not convert %T to bytes", e.Index, e.Value)
}

// ReplyError replies an error
func ReplyError(w io.Writer, msg string) error {
	return NewEncoder(w).Error(msg)
}

// ReplySimpleString replies a simplestring
func ReplySimpleString(w io.Writer, msg string) error {
	return NewEncoder(w).SimpleString(msg)
}

// ReplyBulkString replies a bulkstring
func ReplyBulkString(w io.Writer, msg string) error {
	return NewEncoder(w).BulkString(msg)
}

// ReplyNullBulkString replies a null bulkstring
func ReplyNullBulkString(w io.Writer) error {
	return NewEncoder(w).NullBulkString()
}

// ReplyInteger replies an integer
func ReplyInteger(w io.Writer, val int64) error {
	return NewEncoder(w).Integer(val)
}

// ReplyArray replies an array header, the caller writes size elements after it
func ReplyArray(w io.Writer, size int) (*Encoder, error) {
	r := NewEncoder(w)
	if err := r.Array(size); err != nil {
		return nil, err
	}
	return r, nil
}

// Encoder writes RESP frames to an io.Writer
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder creates a RESP encoder
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (r *Encoder) write(prefix byte, s string) error {
	r.buf = append(r.buf[:0], prefix)
	r.buf = append(r.buf, s...)
	r.buf = append(r.buf, '\r', '\n')
	_, err := r.w.Write(r.buf)
	return err
}

//Error builds a RESP error
func (r *Encoder) Error(s string) error {
	return r.write('-', s)
}

//SimpleString builds a RESP simplestring
func (r *Encoder) SimpleString(s string) error {
	return r.write('+', s)
}

//BulkString builds a RESP bulkstring
func (r *Encoder) BulkString(s string) error {
	r.buf = appendBulk(r.buf[:0], []byte(s))
	_, err := r.w.Write(r.buf)
	return err
}

// NullBulkString builds a RESP null bulkstring
func (r *Encoder) NullBulkString() error {
	_, err := r.w.Write([]byte("$-1\r\n"))
	return err
}

// Integer builds a RESP integer
func (r *Encoder) Integer(v int64) error {
	return r.write(':', strconv.FormatInt(v, 10))
}

// Array builds a RESP array header
func (r *Encoder) Array(size int) error {
	return r.write('*', strconv.Itoa(size))
}

// Command writes argv as a single request frame
func (r *Encoder) Command(argv [][]byte) error {
	r.buf = AppendCommand(r.buf[:0], argv)
	_, err := r.w.Write(r.buf)
	return err
}

func appendBulk(dst, s []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

// AppendCommand appends the wire form of argv, an array of bulk strings, to dst
func AppendCommand(dst []byte, argv [][]byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(argv)), 10)
	dst = append(dst, '\r', '\n')
	for _, arg := range argv {
		dst = appendBulk(dst, arg)
	}
	return dst
}

// EncodeCommand builds the argument vector of a command. No vector is returned
// if any argument fails to convert.
func EncodeCommand(name string, args ...interface{}) ([][]byte, error) {
	if name == "" {
		return nil, ErrEmptyCommand
	}
	if len(args) >= math.MaxInt32 {
		return nil, ErrTooManyArgs
	}
	argv := make([][]byte, 0, len(args)+1)
	argv = append(argv, []byte(name))
	for i, arg := range args {
		b, err := Coerce(arg)
		if err != nil {
			return nil, &CoerceError{Index: i, Value: arg}
		}
		argv = append(argv, b)
	}
	return argv, nil
}

// Coerce converts a command argument to its raw bytes
func Coerce(v interface{}) ([]byte, error) {
	switch arg := v.(type) {
	case string:
		return []byte(arg), nil
	case []byte:
		return arg, nil
	case nil:
		return []byte{}, nil
	case int:
		return strconv.AppendInt(nil, int64(arg), 10), nil
	case int8:
		return strconv.AppendInt(nil, int64(arg), 10), nil
	case int16:
		return strconv.AppendInt(nil, int64(arg), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(arg), 10), nil
	case int64:
		return strconv.AppendInt(nil, arg, 10), nil
	case uint:
		return strconv.AppendUint(nil, uint64(arg), 10), nil
	case uint8:
		return strconv.AppendUint(nil, uint64(arg), 10), nil
	case uint16:
		return strconv.AppendUint(nil, uint64(arg), 10), nil
	case uint32:
		return strconv.AppendUint(nil, uint64(arg), 10), nil
	case uint64:
		return strconv.AppendUint(nil, arg, 10), nil
	case float32:
		return strconv.AppendFloat(nil, float64(arg), 'g', -1, 32), nil
	case float64:
		return strconv.AppendFloat(nil, arg, 'g', -1, 64), nil
	case bool:
		if arg {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	case fmt.Stringer:
		return []byte(arg.String()), nil
	}
	return nil, fmt.Errorf("unsupported argument type %T", v)
}
