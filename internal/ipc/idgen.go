package ipc

import "github.com/google/uuid"

// IDGenerator mints correlation ids for request messages. Injected so tests
// can use deterministic ids.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

// UUIDGenerator returns the production id generator.
func UUIDGenerator() IDGenerator {
	return uuidGenerator{}
}
