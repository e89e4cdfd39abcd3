package integration

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/distributedio/hiredis/context"
	"github.com/distributedio/hiredis/encoding/resp"
)

// Context is the runtime context of a command
type Context struct {
	Name string
	Args [][]byte
	Out  io.Writer
	Conn *conn
	*context.Context
}

// Command is a redis command implementation
type Command func(ctx *Context)

// Constraint is the rule of command
type Constraint struct {
	Arity  int  // number of arguments, it is possible to use -N to say >= N
	PubSub bool // allowed in subscribed mode
	Skip   bool // not fed to monitors
}

// Desc describes a command
type Desc struct {
	Proc Command
	Cons Constraint
}

var commands map[string]Desc

func init() {
	commands = map[string]Desc{
		"ping":         {Ping, Constraint{Arity: -1, PubSub: true}},
		"echo":         {Echo, Constraint{Arity: 2}},
		"quit":         {Quit, Constraint{Arity: 1, PubSub: true, Skip: true}},
		"get":          {Get, Constraint{Arity: 2}},
		"set":          {Set, Constraint{Arity: 3}},
		"del":          {Delete, Constraint{Arity: -2}},
		"incr":         {Incr, Constraint{Arity: 2}},
		"multi":        {Multi, Constraint{Arity: 1}},
		"exec":         {Exec, Constraint{Arity: 1}},
		"discard":      {Discard, Constraint{Arity: 1}},
		"subscribe":    {Subscribe, Constraint{Arity: -2, PubSub: true}},
		"psubscribe":   {PSubscribe, Constraint{Arity: -2, PubSub: true}},
		"unsubscribe":  {Unsubscribe, Constraint{Arity: -1, PubSub: true}},
		"punsubscribe": {PUnsubscribe, Constraint{Arity: -1, PubSub: true}},
		"publish":      {Publish, Constraint{Arity: 3}},
		"monitor":      {Monitor, Constraint{Arity: 1, Skip: true}},
		"command":      {RedisCommand, Constraint{Arity: -1, Skip: true}},
		"debug":        {Debug, Constraint{Arity: -2, Skip: true}},
	}
}

// ErrWrongArgs is the error message of a wrong arity
func ErrWrongArgs(name string) string {
	return "ERR wrong number of arguments for '" + name + "' command"
}

// ErrUnKnownCommand is the error message of an unknown command
func ErrUnKnownCommand(name string) string {
	return "ERR unknown command '" + name + "'"
}

// Call a command, it returns true when the connection should be closed
func Call(ctx *Context) bool {
	desc, ok := commands[ctx.Name]
	if !ok {
		resp.ReplyError(ctx.Out, ErrUnKnownCommand(ctx.Name))
		return false
	}
	argc := len(ctx.Args) + 1 // include the command name
	arity := desc.Cons.Arity
	if (arity > 0 && argc != arity) || (arity < 0 && argc < -arity) {
		if ctx.Conn.multi {
			ctx.Conn.dirty = true
		}
		resp.ReplyError(ctx.Out, ErrWrongArgs(ctx.Name))
		return false
	}

	if ctx.Conn.subscriptions() > 0 && !desc.Cons.PubSub {
		resp.ReplyError(ctx.Out, "ERR Can't execute '"+ctx.Name+
			"': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context")
		return false
	}

	// We now in a multi block, queue the command and return
	if ctx.Conn.multi && ctx.Name != "exec" && ctx.Name != "discard" {
		if ctx.Name == "multi" {
			resp.ReplyError(ctx.Out, "ERR MULTI calls can not be nested")
			return false
		}
		argv := append([][]byte{[]byte(ctx.Name)}, ctx.Args...)
		ctx.Conn.queued = append(ctx.Conn.queued, argv)
		resp.ReplySimpleString(ctx.Out, "QUEUED")
		return false
	}

	if !desc.Cons.Skip {
		ctx.Conn.srv.feedMonitors(ctx.Conn, append([][]byte{[]byte(ctx.Name)}, ctx.Args...))
	}
	desc.Proc(ctx)
	return ctx.Name == "quit"
}

// Ping replies PONG, or the message given. Subscribed connections get an array.
func Ping(ctx *Context) {
	msg := ""
	if len(ctx.Args) > 1 {
		resp.ReplyError(ctx.Out, ErrWrongArgs(ctx.Name))
		return
	}
	if len(ctx.Args) == 1 {
		msg = string(ctx.Args[0])
	}
	if ctx.Conn.subscriptions() > 0 {
		resp.ReplyArray(ctx.Out, 2)
		resp.ReplyBulkString(ctx.Out, "pong")
		resp.ReplyBulkString(ctx.Out, msg)
		return
	}
	if len(ctx.Args) == 1 {
		resp.ReplyBulkString(ctx.Out, msg)
		return
	}
	resp.ReplySimpleString(ctx.Out, "PONG")
}

// Echo replies its argument
func Echo(ctx *Context) {
	resp.ReplyBulkString(ctx.Out, string(ctx.Args[0]))
}

// Quit replies OK, the connection is closed afterwards
func Quit(ctx *Context) {
	resp.ReplySimpleString(ctx.Out, "OK")
}

// Get the value of key
func Get(ctx *Context) {
	s := ctx.Conn.srv
	s.mu.Lock()
	val, ok := s.store[string(ctx.Args[0])]
	s.mu.Unlock()
	if !ok {
		resp.ReplyNullBulkString(ctx.Out)
		return
	}
	resp.ReplyBulkString(ctx.Out, string(val))
}

// Set the string value of a key
func Set(ctx *Context) {
	s := ctx.Conn.srv
	s.mu.Lock()
	s.store[string(ctx.Args[0])] = append([]byte(nil), ctx.Args[1]...)
	s.mu.Unlock()
	resp.ReplySimpleString(ctx.Out, "OK")
}

// Delete keys and reply the number removed
func Delete(ctx *Context) {
	s := ctx.Conn.srv
	s.mu.Lock()
	var n int64
	for _, key := range ctx.Args {
		if _, ok := s.store[string(key)]; ok {
			delete(s.store, string(key))
			n++
		}
	}
	s.mu.Unlock()
	resp.ReplyInteger(ctx.Out, n)
}

// Incr increments the integer value of a key by one
func Incr(ctx *Context) {
	s := ctx.Conn.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(ctx.Args[0])
	var n int64
	if val, ok := s.store[key]; ok {
		var err error
		n, err = strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			resp.ReplyError(ctx.Out, "ERR value is not an integer or out of range")
			return
		}
	}
	n++
	s.store[key] = []byte(strconv.FormatInt(n, 10))
	resp.ReplyInteger(ctx.Out, n)
}

// Multi starts a transaction
func Multi(ctx *Context) {
	ctx.Conn.multi = true
	ctx.Conn.dirty = false
	ctx.Conn.queued = nil
	resp.ReplySimpleString(ctx.Out, "OK")
}

// Exec runs the queued commands and replies their results in an array
func Exec(ctx *Context) {
	c := ctx.Conn
	if !c.multi {
		resp.ReplyError(ctx.Out, "ERR EXEC without MULTI")
		return
	}
	queued, dirty := c.queued, c.dirty
	c.multi, c.dirty, c.queued = false, false, nil
	if dirty {
		resp.ReplyError(ctx.Out, "EXECABORT Transaction discarded because of previous errors.")
		return
	}
	resp.ReplyArray(ctx.Out, len(queued))
	for _, argv := range queued {
		sub := &Context{Name: string(argv[0]), Args: argv[1:], Out: ctx.Out, Conn: c, Context: ctx.Context}
		commands[sub.Name].Proc(sub)
	}
}

// Discard drops the queued commands
func Discard(ctx *Context) {
	c := ctx.Conn
	if !c.multi {
		resp.ReplyError(ctx.Out, "ERR DISCARD without MULTI")
		return
	}
	c.multi, c.dirty, c.queued = false, false, nil
	resp.ReplySimpleString(ctx.Out, "OK")
}

// Subscribe to channels
func Subscribe(ctx *Context) {
	subscribe(ctx, "subscribe", ctx.Conn.channels, ctx.Conn.srv.channels)
}

// PSubscribe subscribes to patterns
func PSubscribe(ctx *Context) {
	subscribe(ctx, "psubscribe", ctx.Conn.patterns, ctx.Conn.srv.patterns)
}

func subscribe(ctx *Context, kind string, local map[string]bool, global map[string]map[*conn]struct{}) {
	c := ctx.Conn
	for _, name := range ctx.Args {
		c.srv.mu.Lock()
		c.srv.subscribe(global, string(name), c)
		c.srv.mu.Unlock()
		local[string(name)] = true
		resp.ReplyArray(ctx.Out, 3)
		resp.ReplyBulkString(ctx.Out, kind)
		resp.ReplyBulkString(ctx.Out, string(name))
		resp.ReplyInteger(ctx.Out, int64(c.subscriptions()))
	}
}

// Unsubscribe from channels, all of them without arguments
func Unsubscribe(ctx *Context) {
	unsubscribe(ctx, "unsubscribe", ctx.Conn.channels, ctx.Conn.srv.channels)
}

// PUnsubscribe unsubscribes from patterns, all of them without arguments
func PUnsubscribe(ctx *Context) {
	unsubscribe(ctx, "punsubscribe", ctx.Conn.patterns, ctx.Conn.srv.patterns)
}

func unsubscribe(ctx *Context, kind string, local map[string]bool, global map[string]map[*conn]struct{}) {
	c := ctx.Conn
	names := ctx.Args
	if len(names) == 0 {
		for name := range local {
			names = append(names, []byte(name))
		}
	}
	if len(names) == 0 {
		resp.ReplyArray(ctx.Out, 3)
		resp.ReplyBulkString(ctx.Out, kind)
		resp.ReplyNullBulkString(ctx.Out)
		resp.ReplyInteger(ctx.Out, int64(c.subscriptions()))
		return
	}
	for _, name := range names {
		c.srv.mu.Lock()
		c.srv.unsubscribe(global, string(name), c)
		c.srv.mu.Unlock()
		delete(local, string(name))
		resp.ReplyArray(ctx.Out, 3)
		resp.ReplyBulkString(ctx.Out, kind)
		resp.ReplyBulkString(ctx.Out, string(name))
		resp.ReplyInteger(ctx.Out, int64(c.subscriptions()))
	}
}

// Publish posts a message to a channel
func Publish(ctx *Context) {
	n := ctx.Conn.srv.publish(string(ctx.Args[0]), ctx.Args[1])
	resp.ReplyInteger(ctx.Out, n)
}

// Monitor streams every command received by the server
func Monitor(ctx *Context) {
	s := ctx.Conn.srv
	s.mu.Lock()
	s.monitors[ctx.Conn] = struct{}{}
	s.mu.Unlock()
	resp.ReplySimpleString(ctx.Out, "OK")
}

// RedisCommand replies the name and arity of every command
func RedisCommand(ctx *Context) {
	if len(ctx.Args) > 0 && strings.ToLower(string(ctx.Args[0])) == "count" {
		resp.ReplyInteger(ctx.Out, int64(len(commands)))
		return
	}
	resp.ReplyArray(ctx.Out, len(commands))
	for name, cmd := range commands {
		resp.ReplyArray(ctx.Out, 2)
		resp.ReplyBulkString(ctx.Out, name)
		resp.ReplyInteger(ctx.Out, int64(cmd.Cons.Arity))
	}
}

// protocolSamples are the frames served by DEBUG PROTOCOL
var protocolSamples = map[string]string{
	"string":    "+Hello World\r\n",
	"integer":   ":12345\r\n",
	"bignum":    "(1234567999999999999999999999999999999\r\n",
	"double":    ",3.141\r\n",
	"true":      "#t\r\n",
	"false":     "#f\r\n",
	"null":      "_\r\n",
	"verbatim":  "=29\r\ntxt:This is a verbatim\nstring\r\n",
	"map":       "%2\r\n$1\r\na\r\n:1\r\n$1\r\nb\r\n:2\r\n",
	"set":       "~3\r\n:0\r\n:1\r\n:2\r\n",
	"attrib":    "|1\r\n$3\r\nkey\r\n$5\r\nvalue\r\n",
	"overflow":  ":9223372036854775808\r\n",
	"nested":    "*2\r\n:1\r\n-ERR nested\r\n",
	"garbage":   "?what is this\r\n",
	"blob-err":  "!21\r\nSYNTAX invalid syntax\r\n",
	"push":      ">2\r\n$4\r\npush\r\n:1\r\n",
	"emptyarr":  "*0\r\n",
	"nullarray": "*-1\r\n",
}

// Debug serves the subcommands a client test needs: SLEEP seconds and
// PROTOCOL type, which replies a sample frame of a RESP3 type
func Debug(ctx *Context) {
	sub := strings.ToLower(string(ctx.Args[0]))
	switch sub {
	case "sleep":
		if len(ctx.Args) != 2 {
			resp.ReplyError(ctx.Out, ErrWrongArgs(ctx.Name))
			return
		}
		secs, err := strconv.ParseFloat(string(ctx.Args[1]), 64)
		if err != nil {
			resp.ReplyError(ctx.Out, "ERR value is not a valid float")
			return
		}
		sctx, cancel := context.WithTimeout(ctx.Context, time.Duration(secs*float64(time.Second)))
		<-sctx.Done()
		cancel()
		resp.ReplySimpleString(ctx.Out, "OK")
	case "protocol":
		if len(ctx.Args) != 2 {
			resp.ReplyError(ctx.Out, ErrWrongArgs(ctx.Name))
			return
		}
		frame, ok := protocolSamples[strings.ToLower(string(ctx.Args[1]))]
		if !ok {
			resp.ReplyError(ctx.Out, "ERR Wrong protocol type name")
			return
		}
		io.Copy(ctx.Out, strings.NewReader(frame))
	default:
		resp.ReplyError(ctx.Out, "ERR unknown subcommand '"+sub+"'")
	}
}

func status(s string) []byte {
	out := &bytes.Buffer{}
	resp.ReplySimpleString(out, s)
	return out.Bytes()
}

func bulk(s string) []byte {
	out := &bytes.Buffer{}
	resp.ReplyBulkString(out, s)
	return out.Bytes()
}

func arrayOf(frames ...[]byte) []byte {
	out := &bytes.Buffer{}
	resp.ReplyArray(out, len(frames))
	for _, f := range frames {
		out.Write(f)
	}
	return out.Bytes()
}
