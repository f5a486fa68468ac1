package bencode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDictCanonicalKeyOrder(t *testing.T) {
	v := Dict(map[string]Value{
		"zeta":  StringFrom("last"),
		"alpha": Integer(10),
	})
	assert.Equal(t, "d5:alphai10e4:zeta4:laste", string(Encode(v)))
}

func TestEncodeInteger(t *testing.T) {
	assert.Equal(t, "i0e", string(Encode(Integer(0))))
	assert.Equal(t, "i-42e", string(Encode(Integer(-42))))
}

func TestEncodeString(t *testing.T) {
	assert.Equal(t, "4:spam", string(Encode(StringFrom("spam"))))
	assert.Equal(t, "0:", string(Encode(StringFrom(""))))
}

func TestEncodeList(t *testing.T) {
	v := List([]Value{StringFrom("spam"), StringFrom("eggs")})
	assert.Equal(t, "l4:spam4:eggse", string(Encode(v)))
}

func TestRoundTripProperty(t *testing.T) {
	cases := []Value{
		Integer(0),
		Integer(-123456),
		StringFrom(""),
		StringFrom("hello world"),
		List([]Value{Integer(1), Integer(2), StringFrom("three")}),
		Dict(map[string]Value{
			"a": Integer(1),
			"b": List([]Value{StringFrom("x"), StringFrom("y")}),
			"c": Dict(map[string]Value{"nested": Integer(7)}),
		}),
	}
	for _, v := range cases {
		encoded := Encode(v)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.True(t, Equal(v, decoded), "round trip mismatch for %v", v)
	}
}
