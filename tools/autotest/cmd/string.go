package cmd

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

//ExampleString verify the string command
type ExampleString struct {
	values map[string]string
	*Pair
}

//NewExampleString create new string object
func NewExampleString(p *Pair) *ExampleString {
	return &ExampleString{
		values: make(map[string]string),
		Pair:   p,
	}
}

//SetEqual verify that the return value of the set operation is correct
func (es *ExampleString) SetEqual(t *testing.T, key string, value string) {
	es.values[key] = value
	assert.Equal(t, "OK", es.Do(t, "SET", key, value))
	assert.Equal(t, value, es.Do(t, "GET", key))
}

//GetEqual verify that the return value of the get operation is correct
func (es *ExampleString) GetEqual(t *testing.T, key string) {
	reply := es.Do(t, "GET", key)
	if v, ok := es.values[key]; ok {
		assert.Equal(t, v, reply)
		return
	}
	assert.Nil(t, reply)
}

//SetEqualErr verify that the error of the set operation is correct
func (es *ExampleString) SetEqualErr(t *testing.T, errValue string, args ...interface{}) {
	assert.Equal(t, "ERR:"+errValue, es.Do(t, "set", args...))
}

//GetEqualErr verify that the error of the get operation is correct
func (es *ExampleString) GetEqualErr(t *testing.T, errValue string, args ...interface{}) {
	assert.Equal(t, "ERR:"+errValue, es.Do(t, "get", args...))
}

//IncrEqual verify that the return value of the incr operation is correct
func (es *ExampleString) IncrEqual(t *testing.T, key string) {
	vi := 1
	if v, ok := es.values[key]; ok {
		vi, _ = strconv.Atoi(v)
		vi++
	}
	// each client increments once
	es.values[key] = strconv.Itoa(vi + 1)
	reply, err := es.Conn.Do("incr", key)
	assert.NoError(t, err)
	assert.Equal(t, int64(vi), reply)
	v, err := es.Cli.Call("incr", key)
	assert.NoError(t, err)
	assert.Equal(t, int64(vi+1), v.Int)
}

//IncrEqualErr verify that the error of the incr operation is correct
func (es *ExampleString) IncrEqualErr(t *testing.T, errValue string, args ...interface{}) {
	assert.Equal(t, "ERR:"+errValue, es.Do(t, "incr", args...))
}

//DelEqual verify that the return value of the del operation is correct
func (es *ExampleString) DelEqual(t *testing.T, keys ...string) {
	args := make([]interface{}, len(keys))
	expect := int64(0)
	for i, key := range keys {
		args[i] = key
		if _, ok := es.values[key]; ok {
			expect++
			delete(es.values, key)
		}
	}
	reply, err := es.Conn.Do("DEL", args...)
	assert.NoError(t, err)
	assert.Equal(t, expect, reply)
	// the keys are gone for the second client
	v, err := es.Cli.Call("DEL", args...)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), v.Int)
}
