package bencode

import (
	"github.com/pkg/errors"
)

// maxRecursionDepth bounds nested list/dict recursion to protect the stack
// against adversarial input (spec §4.1).
const maxRecursionDepth = 256

// Decode parses a complete bencoded value from data. The entire input must
// be consumed; any trailing bytes are an error.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, ErrEmptyInput
	}
	d := &decoder{data: data}
	v, err := d.decodeValue(0)
	if err != nil {
		return Value{}, err
	}
	if d.pos != len(d.data) {
		return Value{}, errors.Wrapf(ErrTrailingData, "consumed %d of %d bytes", d.pos, len(d.data))
	}
	return v, nil
}

// decoder walks data left to right, tracking a single cursor. It never
// backtracks; span information is produced opportunistically by recording
// d.pos before and after a decodeValue call.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) decodeValue(depth int) (Value, error) {
	if depth > maxRecursionDepth {
		return Value{}, ErrRecursionLimit
	}
	if d.pos >= len(d.data) {
		return Value{}, ErrTruncated
	}
	switch b := d.data[d.pos]; {
	case b == 'i':
		return d.decodeInteger()
	case b == 'l':
		return d.decodeList(depth)
	case b == 'd':
		return d.decodeDict(depth)
	case b >= '0' && b <= '9', b == '-':
		// a leading '-' can only be a negative string length, which
		// parseStringLength rejects as ErrBadStringLength
		return d.decodeString()
	default:
		return Value{}, errors.Wrapf(ErrUnexpectedByte, "byte %q at offset %d", b, d.pos)
	}
}

// decodeInteger parses "i<digits>e". -0, leading zeros (other than the
// literal "0"), a bare "-", and overflow beyond int64 are all rejected.
func (d *decoder) decodeInteger() (Value, error) {
	d.pos++ // consume 'i'
	end := indexByte(d.data, d.pos, 'e')
	if end < 0 {
		return Value{}, ErrUnterminatedContainer
	}
	digits := d.data[d.pos:end]
	n, err := parseSignedDecimal(digits)
	if err != nil {
		d.pos = end + 1
		return Value{}, err
	}
	d.pos = end + 1
	return Integer(n), nil
}

func parseSignedDecimal(digits []byte) (int64, error) {
	if len(digits) == 0 {
		return 0, ErrBadInteger
	}
	neg := false
	i := 0
	if digits[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(digits) {
		return 0, ErrBadInteger // bare "-"
	}
	for _, c := range digits[i:] {
		if c < '0' || c > '9' {
			return 0, ErrBadInteger
		}
	}
	if neg && digits[i] == '0' {
		// "-0" is invalid outright, as is any "-0..." leading zero form.
		return 0, ErrBadInteger
	}
	if !neg && digits[0] == '0' && len(digits) > 1 {
		// leading zeros invalid except the literal "0"
		return 0, ErrBadInteger
	}

	var magnitude uint64
	for _, c := range digits[i:] {
		digit := uint64(c - '0')
		if magnitude > (maxUint64-digit)/10 {
			return 0, ErrIntOutOfRange
		}
		magnitude = magnitude*10 + digit
	}

	if neg {
		if magnitude > maxNegInt64Magnitude {
			return 0, ErrIntOutOfRange
		}
		return -int64(magnitude), nil
	}
	if magnitude > maxInt64 {
		return 0, ErrIntOutOfRange
	}
	return int64(magnitude), nil
}

const (
	maxUint64            = 1<<64 - 1
	maxInt64             = 1<<63 - 1
	maxNegInt64Magnitude  = 1 << 63
)

// decodeString parses "<len>:<bytes>".
func (d *decoder) decodeString() (Value, error) {
	colon := indexByte(d.data, d.pos, ':')
	if colon < 0 {
		return Value{}, ErrBadStringLength
	}
	lenDigits := d.data[d.pos:colon]
	length, err := parseStringLength(lenDigits)
	if err != nil {
		return Value{}, err
	}
	start := colon + 1
	end := start + length
	if end < start || end > len(d.data) {
		return Value{}, ErrTruncated
	}
	d.pos = end
	return String(d.data[start:end]), nil
}

func parseStringLength(digits []byte) (int, error) {
	if len(digits) == 0 {
		return 0, ErrBadStringLength
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, ErrBadStringLength
		}
	}
	if digits[0] == '0' && len(digits) > 1 {
		return 0, ErrBadStringLength
	}
	var n int
	for _, c := range digits {
		n = n*10 + int(c-'0')
		if n < 0 {
			return 0, ErrBadStringLength
		}
	}
	return n, nil
}

func (d *decoder) decodeList(depth int) (Value, error) {
	d.pos++ // consume 'l'
	var items []Value
	for {
		if d.pos >= len(d.data) {
			return Value{}, ErrUnterminatedContainer
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return List(items), nil
		}
		v, err := d.decodeValue(depth + 1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
}

func (d *decoder) decodeDict(depth int) (Value, error) {
	d.pos++ // consume 'd'
	m := make(map[string]Value)
	for {
		if d.pos >= len(d.data) {
			return Value{}, ErrUnterminatedContainer
		}
		if d.data[d.pos] == 'e' {
			d.pos++
			return Dict(m), nil
		}
		if d.data[d.pos] < '0' || d.data[d.pos] > '9' {
			return Value{}, ErrNonStringDictKey
		}
		keyVal, err := d.decodeString()
		if err != nil {
			return Value{}, err
		}
		key, _ := keyVal.Str()
		if _, dup := m[key]; dup {
			return Value{}, errors.Wrapf(ErrDuplicateDictKey, "key %q", key)
		}
		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return Value{}, err
		}
		m[key] = val
	}
}

// dictValueSpan scans a top-level bencoded dict for key and returns the
// byte range of its value within data. Each value is decoded only to find
// where it ends, and the decoded result is discarded. Used by the metainfo loader to
// hash the raw "info" span directly rather than re-encode a parsed copy
// (spec §4.1's preferred approach — avoids canonicalization divergence).
func dictValueSpan(data []byte, key string) (start, end int, err error) {
	d := &decoder{data: data}
	if d.pos >= len(d.data) || d.data[d.pos] != 'd' {
		return 0, 0, errors.Wrap(ErrUnexpectedByte, "top-level value is not a dict")
	}
	d.pos++
	for {
		if d.pos >= len(d.data) {
			return 0, 0, ErrUnterminatedContainer
		}
		if d.data[d.pos] == 'e' {
			return 0, 0, errors.Errorf("bencode: key %q not found in top-level dict", key)
		}
		keyVal, err := d.decodeString()
		if err != nil {
			return 0, 0, err
		}
		k, _ := keyVal.Str()
		valStart := d.pos
		if _, err := d.decodeValue(1); err != nil {
			return 0, 0, err
		}
		if k == key {
			return valStart, d.pos, nil
		}
	}
}

// DictValueSpan is the exported form of dictValueSpan, used by metainfo to
// locate the exact byte range of the info dict for info-hash computation.
func DictValueSpan(data []byte, key string) (start, end int, err error) {
	return dictValueSpan(data, key)
}

func indexByte(data []byte, from int, b byte) int {
	for i := from; i < len(data); i++ {
		if data[i] == b {
			return i
		}
	}
	return -1
}
