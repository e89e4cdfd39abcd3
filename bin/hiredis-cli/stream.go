package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/conf"
	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/evloop"
)

func newSubscribeCmd(opts *options, config *conf.Hiredis, out io.Writer) *cobra.Command {
	var patterns bool
	cmd := &cobra.Command{
		Use:   "subscribe channel [channel ...]",
		Short: "Print the messages published to channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "SUBSCRIBE"
			if patterns {
				name = "PSUBSCRIBE"
			}
			return stream(&config.Client, out, func(c *hiredis.AsyncClient, fn hiredis.ReplyFunc) error {
				for _, target := range args {
					if err := c.Queue(fn, name, target); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&patterns, "pattern", "P", false, "arguments are glob patterns")
	return cmd
}

func newMonitorCmd(opts *options, config *conf.Hiredis, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Print every command processed by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stream(&config.Client, out, func(c *hiredis.AsyncClient, fn hiredis.ReplyFunc) error {
				return c.Queue(fn, "MONITOR")
			})
		},
	}
}

// stream runs an event loop printing every frame fn receives, until the
// connection goes away or the process is interrupted
func stream(c *conf.Client, out io.Writer, start func(*hiredis.AsyncClient, hiredis.ReplyFunc) error) error {
	l := evloop.New()
	cli, err := evloop.Dial(l, c)
	if err != nil {
		return err
	}
	if err := start(cli, printFrame(out)); err != nil {
		cli.Close()
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			l.Post(func() { cli.Close() })
		case <-l.Done():
		}
	}()
	return l.Run()
}

func printFrame(out io.Writer) hiredis.ReplyFunc {
	return func(v resp.Value, err error) {
		if err != nil {
			return
		}
		fmt.Fprintln(out, v.String())
	}
}
