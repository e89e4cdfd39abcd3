package cmd

import (
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/encoding/resp"
)

// Pair sends every command through redigo and hiredis and checks both clients
// understood the server the same way
type Pair struct {
	Conn redis.Conn
	Cli  *hiredis.Client
}

// Do runs a command on both clients and returns the normalized reply
func (p *Pair) Do(t *testing.T, name string, args ...interface{}) interface{} {
	want, err := p.Conn.Do(name, args...)
	if rerr, ok := err.(redis.Error); ok {
		want = rerr
	} else {
		assert.NoError(t, err, name)
	}
	v, err := p.Cli.Call(name, args...)
	if _, ok := err.(*hiredis.ReplyError); !ok {
		assert.NoError(t, err, name)
	}
	got := Normalize(v)
	assert.Equal(t, normalizeRedigo(want), got, name)
	return got
}

// Normalize turns a hiredis reply into the shape normalizeRedigo produces
func Normalize(v resp.Value) interface{} {
	switch v.Kind {
	case resp.KindError:
		return "ERR:" + string(v.Bytes)
	case resp.KindArray:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = Normalize(e)
		}
		return out
	}
	return v.Interface()
}

// normalizeRedigo maps bulk bytes to strings and error replies to "ERR:" strings
func normalizeRedigo(v interface{}) interface{} {
	switch r := v.(type) {
	case []byte:
		return string(r)
	case redis.Error:
		return "ERR:" + string(r)
	case []interface{}:
		out := make([]interface{}, len(r))
		for i, e := range r {
			out[i] = normalizeRedigo(e)
		}
		return out
	}
	return v
}
