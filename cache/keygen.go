package cache

import "github.com/google/uuid"

// KeyGenerator produces opaque keys for stored values.
type KeyGenerator interface {
	Generate() string
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func() string

func (f KeyGeneratorFunc) Generate() string { return f() }

// UUIDKeys generates random (version 4) UUIDs.
var UUIDKeys KeyGenerator = KeyGeneratorFunc(uuid.NewString)
