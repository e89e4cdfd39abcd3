package cmd

import (
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"

	"github.com/distributedio/hiredis"
)

type ExampleMulti struct {
	*Pair
	cmds  []hiredis.Cmd
	value []interface{}
}

func NewExampleMulti(p *Pair) *ExampleMulti {
	return &ExampleMulti{Pair: p}
}

func (ms *ExampleMulti) MultiEqual(t *testing.T) {
	reply, err := redis.String(ms.Conn.Do("multi"))
	assert.NoError(t, err)
	assert.Equal(t, "OK", reply)
	ms.cmds, ms.value = nil, nil
}

func (ms *ExampleMulti) ExecEqual(t *testing.T) {
	reply, err := redis.Values(ms.Conn.Do("exec"))
	assert.NoError(t, err)
	assert.Equal(t, ms.value, normalizeRedigo(reply))

	// the same block through hiredis
	replies, err := ms.Cli.Transaction(ms.cmds...)
	assert.NoError(t, err)
	if assert.Len(t, replies, len(ms.cmds)+2) {
		assert.Equal(t, "OK", Normalize(replies[0]))
		for _, v := range replies[1 : len(replies)-1] {
			assert.Equal(t, "QUEUED", Normalize(v))
		}
		assert.Equal(t, ms.value, Normalize(replies[len(replies)-1]))
	}
}

func (ms *ExampleMulti) ExecEqualErr(t *testing.T, errValue string, args ...interface{}) {
	_, err := ms.Conn.Do("exec", args...)
	if errValue != "" {
		assert.EqualError(t, err, errValue)
	}
}

// Cmd queues commands whose results do not depend on being run twice
func (ms *ExampleMulti) Cmd(t *testing.T) {
	reply, err := redis.String(ms.Conn.Do("SET", "key-multi-string", "value"))
	assert.Equal(t, "QUEUED", reply)
	assert.NoError(t, err)
	ms.cmds = append(ms.cmds, hiredis.NewCmd("SET", "key-multi-string", "value"))
	ms.value = append(ms.value, "OK")

	reply, err = redis.String(ms.Conn.Do("GET", "key-multi-string"))
	assert.Equal(t, "QUEUED", reply)
	assert.NoError(t, err)
	ms.cmds = append(ms.cmds, hiredis.NewCmd("GET", "key-multi-string"))
	ms.value = append(ms.value, "value")

	reply, err = redis.String(ms.Conn.Do("ECHO", "multi"))
	assert.Equal(t, "QUEUED", reply)
	assert.Nil(t, err)
	ms.cmds = append(ms.cmds, hiredis.NewCmd("ECHO", "multi"))
	ms.value = append(ms.value, "multi")
}
