package bencode

import (
	"strconv"
)

// Encode serializes a Value to its canonical bencode representation.
// Encoding is total: there is no failure mode. Dict keys are emitted in
// ascending byte-wise order; integers are emitted as minimal decimal.
func Encode(v Value) []byte {
	buf := make([]byte, 0, 64)
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.kind {
	case KindInteger:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, v.i, 10)
		buf = append(buf, 'e')
		return buf
	case KindString:
		buf = strconv.AppendInt(buf, int64(len(v.s)), 10)
		buf = append(buf, ':')
		buf = append(buf, v.s...)
		return buf
	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.list {
			buf = appendValue(buf, item)
		}
		buf = append(buf, 'e')
		return buf
	case KindDict:
		buf = append(buf, 'd')
		for _, k := range sortedKeys(v.dict) {
			buf = appendValue(buf, StringFrom(k))
			buf = appendValue(buf, v.dict[k])
		}
		buf = append(buf, 'e')
		return buf
	default:
		return buf
	}
}
