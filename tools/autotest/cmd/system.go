package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type ExampleSystem struct {
	*Pair
}

func NewExampleSystem(p *Pair) *ExampleSystem {
	return &ExampleSystem{Pair: p}
}

func (es *ExampleSystem) PingEqual(t *testing.T) {
	assert.Equal(t, "hello", es.Do(t, "ping", "hello"))
	assert.Equal(t, "PONG", es.Do(t, "ping"))
}

func (es *ExampleSystem) PingEqualErr(t *testing.T, errValue string, args ...interface{}) {
	assert.Equal(t, "ERR:"+errValue, es.Do(t, "ping", args...))
}

func (es *ExampleSystem) EchoEqual(t *testing.T, msg string) {
	assert.Equal(t, msg, es.Do(t, "echo", msg))
}

// ProtocolEqual checks both clients decode the RESP2 samples served by DEBUG PROTOCOL alike
func (es *ExampleSystem) ProtocolEqual(t *testing.T, types ...string) {
	for _, typ := range types {
		es.Do(t, "debug", "protocol", typ)
	}
}
