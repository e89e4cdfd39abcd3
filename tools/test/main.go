package main

import (
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/distributedio/hiredis/tools/autotest"
	"github.com/distributedio/hiredis/tools/integration"
)

func main() {
	t := &testing.T{}
	var testcase string
	var addr string
	var serve bool

	flag.StringVar(&addr, "addr", "127.0.0.1:6379", "redis server addr")
	flag.StringVar(&testcase, "testcase", "", "default run testcase all")
	flag.BoolVar(&serve, "serve", false, "run the in-process test server on addr instead")
	flag.Parse()
	if serve {
		if err := integration.New().ListenAndServe("tcp", addr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	client := autotest.NewAutoClient()
	client.Start(addr)
	switch testcase {
	case "string":
		client.StringCase(t)
	case "system":
		client.SystemCase(t)
	case "pipeline":
		client.PipelineCase(t)
	case "multi":
		client.MultiCase(t)
	default:
		client.StringCase(t)
		client.SystemCase(t)
		client.PipelineCase(t)
		client.MultiCase(t)
	}
	client.Close()
	if t.Failed() {
		fmt.Fprintln(os.Stderr, "replies differ")
		os.Exit(1)
	}
}
