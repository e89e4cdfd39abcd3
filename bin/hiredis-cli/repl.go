package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shafreeck/retry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/conf"
	"github.com/distributedio/hiredis/encoding/resp"
)

var errUnbalancedQuotes = errors.New("unbalanced quotes in request")

// dialRetry connects with c, transport failures are retried with an exponential backoff
func dialRetry(c *conf.Client, attempts int) (*hiredis.Client, error) {
	var cli *hiredis.Client
	tried := 0
	r := retry.New(retry.WithBaseDelay(50*time.Millisecond), retry.WithBackoff(retry.Exponential(2)))
	err := r.Ensure(context.Background(), func() error {
		var err error
		tried++
		cli, err = hiredis.Dial(c)
		if err != nil && tried < attempts && hiredis.KindOf(err) == hiredis.KindTransport {
			zap.L().Warn("connect failed, retry", zap.Int("attempt", tried), zap.Error(err))
			return retry.Retriable(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// reconnect re-dials after a connection fault with the same backoff as dialRetry
func reconnect(cli *hiredis.Client, attempts int) error {
	tried := 0
	r := retry.New(retry.WithBaseDelay(50*time.Millisecond), retry.WithBackoff(retry.Exponential(2)))
	return r.Ensure(context.Background(), func() error {
		tried++
		err := cli.Reconnect()
		if err != nil && tried < attempts && hiredis.KindOf(err) == hiredis.KindTransport {
			return retry.Retriable(err)
		}
		return err
	})
}

func toArgs(args []string) []interface{} {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		out[i] = arg
	}
	return out
}

// call runs one command and prints its reply. Only a connection fault is
// returned, error replies are printed.
func call(cli *hiredis.Client, argv []string, out io.Writer) error {
	v, err := cli.Call(argv[0], toArgs(argv[1:])...)
	if err != nil {
		if _, ok := err.(*hiredis.ReplyError); !ok {
			return err
		}
	}
	fmt.Fprintln(out, v.String())
	return nil
}

func runOnce(cli *hiredis.Client, argv []string, out io.Writer) error {
	return call(cli, argv, out)
}

func prompt(cli *hiredis.Client) string {
	return cli.Context().Addr + "> "
}

// repl reads commands line by line until quit or the end of input
func repl(cli *hiredis.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, prompt(cli))
	for scanner.Scan() {
		argv, err := splitArgs(scanner.Text())
		switch {
		case err != nil:
			fmt.Fprintln(out, "(error)", err)
		case len(argv) == 0:
		case strings.EqualFold(argv[0], "quit") || strings.EqualFold(argv[0], "exit"):
			return nil
		default:
			if err := call(cli, argv, out); err != nil {
				fmt.Fprintln(out, "(error)", err)
				if _, ok := err.(*hiredis.UsageError); !ok {
					if err := reconnect(cli, 3); err != nil {
						return err
					}
				}
			}
		}
		fmt.Fprint(out, prompt(cli))
	}
	return scanner.Err()
}

func newPipeCmd(opts *options, config *conf.Hiredis, in io.Reader, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "pipe",
		Short: "Send the commands read from stdin in one pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := dialRetry(&config.Client, opts.retries)
			if err != nil {
				return err
			}
			defer cli.Close()
			return pipe(cli, in, out)
		},
	}
}

// pipe queues every line of in, then prints the replies and a summary
func pipe(cli *hiredis.Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		argv, err := splitArgs(scanner.Text())
		if err != nil {
			return err
		}
		if len(argv) == 0 {
			continue
		}
		if err := cli.Queue(argv[0], toArgs(argv[1:])...); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if cli.Pending() == 0 {
		return nil
	}
	replies, err := cli.TakeAll()
	errs := 0
	for _, v := range replies {
		if v.Kind == resp.KindError {
			errs++
		}
		fmt.Fprintln(out, v.String())
	}
	fmt.Fprintf(out, "replies: %d, errors: %d\n", len(replies), errs)
	return err
}

// splitArgs splits a line into arguments. Double quoted arguments take the
// usual escapes, single quoted ones are taken literally.
func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inArg := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == ' ' || ch == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		case ch == '"' || ch == '\'':
			end, err := quoted(line, i, &cur)
			if err != nil {
				return nil, err
			}
			i = end
			inArg = true
		default:
			cur.WriteByte(ch)
			inArg = true
		}
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

// quoted copies the quoted string starting at line[start] into cur and returns
// the index of the closing quote
func quoted(line string, start int, cur *strings.Builder) (int, error) {
	q := line[start]
	for i := start + 1; i < len(line); i++ {
		ch := line[i]
		if ch == q {
			return i, nil
		}
		if ch == '\\' && q == '"' && i+1 < len(line) {
			i++
			switch line[i] {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case 't':
				cur.WriteByte('\t')
			default:
				cur.WriteByte(line[i])
			}
			continue
		}
		cur.WriteByte(ch)
	}
	return 0, errUnbalancedQuotes
}
