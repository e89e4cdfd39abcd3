package main

import (
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	ospath "path"
	"sync"
	"time"

	rolling "github.com/arthurkiller/rollingwriter"
	"github.com/shafreeck/configo"
	"github.com/shafreeck/continuous"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/conf"
	"github.com/distributedio/hiredis/metrics"
)

type options struct {
	confPath string
	host     string
	port     int
	socket   string
	logLevel string
	logPath  string
	retries  int
}

var (
	// atomicLevel is shared by every logger ConfigureZap builds, it is exported over http once
	atomicLevel = zap.NewAtomicLevel()
	levelOnce   sync.Once
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{}
	config := &conf.Hiredis{}

	root := &cobra.Command{
		Use:           "hiredis-cli [command [arg ...]]",
		Short:         "A command line client of the redis protocol",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd, opts, config); err != nil {
				return err
			}
			startStatus(config)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := dialRetry(&config.Client, opts.retries)
			if err != nil {
				return err
			}
			defer cli.Close()
			if len(args) > 0 {
				return runOnce(cli, args, out)
			}
			return repl(cli, in, out)
		},
	}

	// everything after the command name belongs to the command
	root.Flags().SetInterspersed(false)

	fs := root.PersistentFlags()
	fs.StringVarP(&opts.confPath, "conf", "c", "conf/hiredis.toml", "conf file path, defaults are used when it does not exist")
	fs.StringVarP(&opts.host, "host", "H", "", "server hostname")
	fs.IntVarP(&opts.port, "port", "p", 0, "server port")
	fs.StringVarP(&opts.socket, "socket", "s", "", "server unix socket, overrides host and port")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level(debug, info, warn, error)")
	fs.StringVar(&opts.logPath, "log-path", "", "log file path, stdout or stderr for the console")
	fs.IntVar(&opts.retries, "retries", 3, "connect attempts before giving up")

	root.AddCommand(newPipeCmd(opts, config, in, out))
	root.AddCommand(newSubscribeCmd(opts, config, out))
	root.AddCommand(newMonitorCmd(opts, config, out))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			hiredis.PrintVersionInfo()
		},
	})
	return root
}

// setup loads the config file, applies the flags and configures the logger
func setup(cmd *cobra.Command, opts *options, config *conf.Hiredis) error {
	if err := loadConfig(opts.confPath, config); err != nil {
		return fmt.Errorf("unmarshal config file failed, %s", err)
	}
	fs := cmd.Flags()
	if fs.Changed("host") {
		config.Client.Host = opts.host
	}
	if fs.Changed("port") {
		config.Client.Port = opts.port
	}
	if opts.socket != "" {
		config.Client.Host, config.Client.Port = opts.socket, -1
	}
	if opts.logLevel != "" {
		config.Logger.Level = opts.logLevel
	}
	if opts.logPath != "" {
		config.Logger.Path = opts.logPath
	}
	if err := ConfigureZap(config.Logger.Name, config.Logger.Path, config.Logger.Level,
		config.Logger.TimeRotate, config.Logger.Compress); err != nil {
		return fmt.Errorf("create logger failed, %s", err)
	}
	hiredis.LogVersionInfo()
	return nil
}

func loadConfig(path string, config *conf.Hiredis) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return configo.Unmarshal(nil, config)
	}
	return configo.Load(path, config)
}

// startStatus exports metrics and the log level handler when a listen address is set
func startStatus(config *conf.Hiredis) {
	if config.Status.Listen == "" {
		return
	}
	svr := metrics.NewServer(&config.Status)
	writer, err := Writer(config.Logger.Path, config.Logger.TimeRotate, config.Logger.Compress)
	if err != nil {
		zap.L().Error("create writer for continuous failed", zap.Error(err))
		return
	}
	cont := continuous.New(continuous.LoggerOutput(writer), continuous.PidFile(config.PIDFileName))
	if err := cont.AddServer(svr, &continuous.ListenOn{Network: "tcp", Address: config.Status.Listen}); err != nil {
		zap.L().Error("add status server failed", zap.Error(err))
		return
	}
	go func() {
		if err := cont.Serve(); err != nil {
			zap.L().Error("run status server failed", zap.Error(err))
		}
	}()
}

// ConfigureZap customize the zap logger
func ConfigureZap(name, path, level, pattern string, compress bool) error {
	writer, err := Writer(path, pattern, compress)
	if err != nil {
		return err
	}

	lv := atomicLevel
	switch level {
	case "debug":
		lv.SetLevel(zap.DebugLevel)
	case "info":
		lv.SetLevel(zap.InfoLevel)
	case "warn":
		lv.SetLevel(zap.WarnLevel)
	case "error":
		lv.SetLevel(zap.ErrorLevel)
	case "panic":
		lv.SetLevel(zap.PanicLevel)
	case "fatal":
		lv.SetLevel(zap.FatalLevel)
	default:
		return fmt.Errorf("unknown log level(%s)", level)
	}
	timeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format("2006-01-02 15:04:05.999999999"))
	}

	encoderCfg := zapcore.EncoderConfig{
		NameKey:        "Name",
		StacktraceKey:  "Stack",
		MessageKey:     "Message",
		LevelKey:       "Level",
		TimeKey:        "TimeStamp",
		CallerKey:      "Caller",
		EncodeTime:     timeEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	output := zapcore.AddSync(writer)
	var zapOpts []zap.Option
	zapOpts = append(zapOpts, zap.AddCaller())
	zapOpts = append(zapOpts, zap.Hooks(metrics.Measure))

	logger := zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), output, lv), zapOpts...).Named(name)
	log := logger.With(zap.Int("PID", os.Getpid()))
	zap.ReplaceGlobals(log)
	levelOnce.Do(func() {
		http.Handle("/hiredis/log/level", lv)
	})
	return nil
}

//Writer generate the rollingWriter, stdout and stderr write to the console
func Writer(path, pattern string, compress bool) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	var opts []rolling.Option
	opts = append(opts, rolling.WithRollingTimePattern(pattern))
	if compress {
		opts = append(opts, rolling.WithCompress())
	}
	dir, filename := ospath.Split(path)
	opts = append(opts, rolling.WithLogPath(dir), rolling.WithFileName(filename), rolling.WithLock())
	writer, err := rolling.NewWriter(opts...)
	if err != nil {
		return nil, fmt.Errorf("create IOWriter failed, %s", err)
	}
	return writer, nil
}
