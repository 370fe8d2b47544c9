package tui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTTY(t *testing.T) {
	assert.Contains(t, []bool{true, false}, HasTTY)
}

func withoutTTY(t *testing.T) {
	old := HasTTY
	HasTTY = false
	t.Cleanup(func() { HasTTY = old })
}

func TestTablePlain(t *testing.T) {
	withoutTTY(t)
	out := Table([]string{"#", "input", "output"}, [][]string{
		{"1", `"a"`, `"b"`},
		{"2", `"c"`, "error: boom"},
	})
	assert.Equal(t, "#\tinput\toutput\n1\t\"a\"\t\"b\"\n2\t\"c\"\terror: boom", out)
}

func TestTableStyled(t *testing.T) {
	old := HasTTY
	HasTTY = true
	t.Cleanup(func() { HasTTY = old })
	out := Table([]string{"input", "output"}, [][]string{{"x", "error: boom"}})
	assert.Contains(t, out, "input")
	assert.Contains(t, out, "error: boom")
}

func TestTextWithoutTTY(t *testing.T) {
	withoutTTY(t)
	assert.Equal(t, "hello", Title("hello"))
	assert.Equal(t, "hello", Muted("hello"))
	assert.Equal(t, "hello", Warning("hello"))
}

func TestMaxWidth(t *testing.T) {
	assert.Equal(t, "short", MaxWidth("short", 10))
	assert.Equal(t, "abcdefg...", MaxWidth("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", MaxWidth("héllo wörld!", 10))
}

func TestShowSpinnerWithoutTTY(t *testing.T) {
	withoutTTY(t)
	ran := false
	err := ShowSpinner(context.Background(), "working", func() error {
		ran = true
		return errors.New("boom")
	})
	assert.True(t, ran)
	assert.EqualError(t, err, "boom")
}
