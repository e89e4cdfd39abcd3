package conf

import "time"

// Hiredis configuration center
type Hiredis struct {
	Client      Client `cfg:"client"`
	Pool        Pool   `cfg:"pool"`
	Logger      Logger `cfg:"logger"`
	Status      Status `cfg:"status"`
	PIDFileName string `cfg:"pid-filename; hiredis-cli.pid; ; the file name to record the process PID"`
}

// Client config is the config of a connection
type Client struct {
	Host          string        `cfg:"host; localhost; nonempty; server host, or unix socket path when port is -1"`
	Port          int           `cfg:"port; 6379; ; server port, -1 for unix socket"`
	DialTimeout   time.Duration `cfg:"dial-timeout; 5s; ; timeout of establishing a connection"`
	ReadTimeout   time.Duration `cfg:"read-timeout; 0s; ; timeout of a blocking read, 0 for none"`
	WriteTimeout  time.Duration `cfg:"write-timeout; 0s; ; timeout of a blocking write, 0 for none"`
	MaxReplyBytes int           `cfg:"max-reply-bytes; 0; numeric; read buffer limitation in bytes, 0 for unlimited"`
}

// Pool config is the config of the connection pool
type Pool struct {
	MaxTotal int `cfg:"max-total; 8; numeric; max connections, -1 for no limit"`
	MaxIdle  int `cfg:"max-idle; 8; numeric; max idle connections"`
	MinIdle  int `cfg:"min-idle; 0; numeric; min idle connections"`
}

// Logger config is the config of default zap log
type Logger struct {
	Name       string `cfg:"name; hiredis; ; the default logger name"`
	Path       string `cfg:"path; logs/hiredis; ; the default log path"`
	Level      string `cfg:"level; info; ; log level(debug, info, warn, error, panic, fatal)"`
	Compress   bool   `cfg:"compress; false; boolean; true for enabling log compress"`
	TimeRotate string `cfg:"time-rotate; 0 0 0 * * *; ; log time rotate pattern(s m h D M W)"`
}

// Status config is the config of exported server
type Status struct {
	Listen      string        `cfg:"listen; ; ; listen address of http server, empty to disable"`
	StopTimeout time.Duration `cfg:"stop-timeout; 1s; ; time given to in-flight requests on a graceful stop"`
}
