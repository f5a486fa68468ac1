package bencode

import "errors"

// Decode error taxonomy. Each decode failure is one of these, optionally
// wrapped with positional context by the caller via pkg/errors.
var (
	ErrEmptyInput            = errors.New("bencode: empty input")
	ErrUnexpectedByte        = errors.New("bencode: unexpected byte")
	ErrBadInteger            = errors.New("bencode: malformed integer")
	ErrIntOutOfRange         = errors.New("bencode: integer out of int64 range")
	ErrBadStringLength       = errors.New("bencode: malformed string length")
	ErrTruncated             = errors.New("bencode: truncated input")
	ErrUnterminatedContainer = errors.New("bencode: unterminated list or dict")
	ErrNonStringDictKey      = errors.New("bencode: dict key is not a string")
	ErrDuplicateDictKey      = errors.New("bencode: duplicate dict key")
	ErrRecursionLimit        = errors.New("bencode: recursion depth limit exceeded")
	ErrTrailingData          = errors.New("bencode: trailing data after top-level value")
)
