package cache

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestValueCoercion(t *testing.T) {
	t.Run("int from int", func(t *testing.T) {
		n, err := Int(123).AsInt()
		assert.NoError(t, err)
		assert.Equal(t, int64(123), n)
	})

	t.Run("int from numeric text", func(t *testing.T) {
		n, err := Text("42").AsInt()
		assert.NoError(t, err)
		assert.Equal(t, int64(42), n)
	})

	t.Run("int from text", func(t *testing.T) {
		_, err := Text("abc").AsInt()
		assert.True(t, errors.Is(err, ErrCoercion))
	})

	t.Run("int from float", func(t *testing.T) {
		_, err := Float(1.5).AsInt()
		assert.True(t, errors.Is(err, ErrCoercion))
	})

	t.Run("float from int", func(t *testing.T) {
		f, err := Int(7).AsFloat()
		assert.NoError(t, err)
		assert.Equal(t, 7.0, f)
	})

	t.Run("text from bytes", func(t *testing.T) {
		s, err := Bytes([]byte("hi")).AsText()
		assert.NoError(t, err)
		assert.Equal(t, "hi", s)
	})

	t.Run("text from invalid utf-8", func(t *testing.T) {
		_, err := Bytes([]byte{0xff, 0xfe}).AsText()
		assert.True(t, errors.Is(err, ErrCoercion))
	})

	t.Run("zero value", func(t *testing.T) {
		var v Value
		_, err := v.AsBytes()
		assert.True(t, errors.Is(err, ErrCoercion))
		assert.Equal(t, "<nil>", v.String())
	})
}

func TestValueDisplay(t *testing.T) {
	assert.Equal(t, `"hello"`, Text("hello").String())
	assert.Equal(t, `b"\x00a"`, Bytes([]byte{0, 'a'}).String())
	assert.Equal(t, "-5", Int(-5).String())
	assert.Equal(t, "0.1", Float(0.1).String())
	assert.Equal(t, "float", Float(0.1).Kind().String())
}

func TestValueIsImmutable(t *testing.T) {
	b := []byte("abc")
	v := Bytes(b)
	b[0] = 'x'
	raw := v.Raw()
	assert.Equal(t, "abc", string(raw))
	raw[0] = 'y'
	assert.Equal(t, "abc", string(v.Raw()))
	assert.Equal(t, 3, v.Len())
}
