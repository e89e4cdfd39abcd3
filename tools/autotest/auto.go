package autotest

import (
	"net"
	"strconv"
	"testing"

	"github.com/gomodule/redigo/redis"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/tools/autotest/cmd"
)

//AutoClient check that hiredis and redigo read the same replies
type AutoClient struct {
	es *cmd.ExampleString
	*cmd.ExampleSystem
	em   *cmd.ExampleMulti
	ep   *cmd.ExamplePipeline
	pair *cmd.Pair
}

//NewAutoClient creat auto client
func NewAutoClient() *AutoClient {
	return &AutoClient{}
}

// dialPair connects both clients to addr
func dialPair(addr string) *cmd.Pair {
	conn, err := redis.Dial("tcp", addr)
	if err != nil {
		panic(err)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		panic(err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		panic(err)
	}
	cli, err := hiredis.Connect(host, p)
	if err != nil {
		panic(err)
	}
	return &cmd.Pair{Conn: conn, Cli: cli}
}

//Start run client
func (ac *AutoClient) Start(addr string) {
	ac.pair = dialPair(addr)
	ac.es = cmd.NewExampleString(ac.pair)
	ac.ExampleSystem = cmd.NewExampleSystem(ac.pair)
	ac.em = cmd.NewExampleMulti(ac.pair)
	ac.ep = cmd.NewExamplePipeline(ac.pair)
}

//Close shut client
func (ac *AutoClient) Close() {
	ac.pair.Conn.Close()
	ac.pair.Cli.Close()
}

//StringCase check string case
func (ac *AutoClient) StringCase(t *testing.T) {
	ac.es.GetEqual(t, "key-set")
	ac.es.SetEqual(t, "key-set", "value")
	ac.es.GetEqual(t, "key-set")
	ac.es.SetEqual(t, "key-set", "")
	ac.es.SetEqual(t, "key-binary", "a\r\nb\x00c")
	ac.es.IncrEqual(t, "incr")
	ac.es.IncrEqual(t, "incr")
	ac.es.GetEqual(t, "incr")
	ac.es.DelEqual(t, "key-set", "incr", "key-not-exist")
	ac.es.GetEqual(t, "key-set")
}

//SystemCase check system case
func (ac *AutoClient) SystemCase(t *testing.T) {
	ac.PingEqual(t)
	ac.EchoEqual(t, "hello world")
	ac.EchoEqual(t, "")
}

//ProtocolCase check the frames both clients understand
func (ac *AutoClient) ProtocolCase(t *testing.T) {
	ac.ProtocolEqual(t, "string", "integer", "nested", "emptyarr", "nullarray")
}

//PipelineCase check pipelined replies
func (ac *AutoClient) PipelineCase(t *testing.T) {
	ac.ep.PipelineEqual(t, "a", "b", "c")
	var msgs []string
	for i := 0; i < 1000; i++ {
		msgs = append(msgs, "v"+strconv.Itoa(i))
	}
	ac.ep.PipelineEqual(t, msgs...)
}

//MultiCase check the replies of a transaction
func (ac *AutoClient) MultiCase(t *testing.T) {
	//multi
	ac.em.MultiEqual(t)
	ac.em.Cmd(t)
	// exec
	ac.em.ExecEqual(t)
}
