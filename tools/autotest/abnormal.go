package autotest

import (
	"testing"

	"github.com/distributedio/hiredis/tools/autotest/cmd"
)

//Abnormal check error message
type Abnormal struct {
	es   *cmd.ExampleString
	ess  *cmd.ExampleSystem
	em   *cmd.ExampleMulti
	pair *cmd.Pair
}

//NewAbnormal create object
func NewAbnormal() *Abnormal {
	return &Abnormal{}
}

//Start  create abnormal client
func (an *Abnormal) Start(addr string) {
	an.pair = dialPair(addr)
	an.es = cmd.NewExampleString(an.pair)
	an.ess = cmd.NewExampleSystem(an.pair)
	an.em = cmd.NewExampleMulti(an.pair)
}

//Close close annormal client
func (an *Abnormal) Close() {
	an.pair.Conn.Close()
	an.pair.Cli.Close()
}

//StringCase check string case
func (an *Abnormal) StringCase(t *testing.T) {
	an.es.SetEqual(t, "not-number", "v")

	an.es.SetEqualErr(t, "ERR wrong number of arguments for 'set' command", "key")
	an.es.SetEqualErr(t, "ERR wrong number of arguments for 'set' command", "key", "v", "ex", "1")

	an.es.GetEqualErr(t, "ERR wrong number of arguments for 'get' command", "hello", "world")
	an.es.GetEqualErr(t, "ERR wrong number of arguments for 'get' command")

	an.es.IncrEqualErr(t, "ERR wrong number of arguments for 'incr' command", "1", "m")
	an.es.IncrEqualErr(t, "ERR value is not an integer or out of range", "not-number")

	an.es.DelEqual(t, "not-number")
}

//SystemCase check system case
func (an *Abnormal) SystemCase(t *testing.T) {
	an.ess.PingEqualErr(t, "ERR wrong number of arguments for 'ping' command", "a", "b")
	an.pair.Do(t, "nosuch")
	an.pair.Do(t, "exec")
	an.pair.Do(t, "discard")
	an.pair.Do(t, "debug", "protocol", "nosuch")
}

//MultiCase check an aborted transaction
func (an *Abnormal) MultiCase(t *testing.T) {
	_, err := an.pair.Conn.Do("multi")
	if err != nil {
		t.Fatal(err)
	}
	an.pair.Conn.Do("get")
	an.em.ExecEqualErr(t, "EXECABORT Transaction discarded because of previous errors.")
}
