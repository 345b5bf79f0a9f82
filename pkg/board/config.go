package board

import (
	"flag"
	"time"
)

// Config defines the timing of a session.
type Config struct {
	// PollInterval is the step of the bring-up poller.
	PollInterval time.Duration `yaml:"poll-interval"`
	// StatusPolls is the number of steps to wait for a status report
	// before requesting one.
	StatusPolls int `yaml:"status-polls"`
	// ExpansionPolls is the number of steps to wait for the expansion.
	ExpansionPolls int `yaml:"expansion-polls"`
	// BlinkInterval toggles the LED, 0 disables blinking.
	BlinkInterval time.Duration `yaml:"blink-interval"`
	// JoinTimeout bounds the wait for workers on Close.
	JoinTimeout time.Duration `yaml:"join-timeout"`
	// WriteQueue is the capacity of the outbound queue.
	WriteQueue int `yaml:"write-queue"`
}

var defaultConfig = Config{
	PollInterval:   100 * time.Millisecond,
	StatusPolls:    20,
	ExpansionPolls: 10,
	BlinkInterval:  500 * time.Millisecond,
	JoinTimeout:    100 * time.Millisecond,
	WriteQueue:     64,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.PollInterval, "board-poll-interval", defaultConfig.PollInterval, "Bring-up poll interval.")
	flag.IntVar(&defaultConfig.StatusPolls, "board-status-polls", defaultConfig.StatusPolls, "Poll intervals to wait for status before requesting it.")
	flag.IntVar(&defaultConfig.ExpansionPolls, "board-expansion-polls", defaultConfig.ExpansionPolls, "Poll intervals to wait for the expansion.")
	flag.DurationVar(&defaultConfig.BlinkInterval, "board-blink", defaultConfig.BlinkInterval, "LED blink interval, 0 to disable.")
	flag.DurationVar(&defaultConfig.JoinTimeout, "board-join-timeout", defaultConfig.JoinTimeout, "Time to wait for workers on disconnect.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

func (c *Config) writeQueue() int {
	if c.WriteQueue > 0 {
		return c.WriteQueue
	}
	return defaultConfig.WriteQueue
}
