package conf

import "time"

// MockConf init and return hiredis mock conf
func MockConf() *Hiredis {
	return &Hiredis{
		Client: Client{
			Host:        "localhost",
			Port:        6379,
			DialTimeout: 5 * time.Second,
		},
		Pool: Pool{
			MaxTotal: 8,
			MaxIdle:  8,
		},
		Logger: Logger{
			Name:       "hiredis",
			Path:       "logs/hiredis",
			Level:      "info",
			TimeRotate: "0 0 0 * * *",
		},
	}
}
