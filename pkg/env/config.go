// Package env assembles a board driver with its publishers from
// configuration.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/robotalks/balance.go/pkg/board"
	fx "github.com/robotalks/balance.go/pkg/framework"
	"github.com/robotalks/balance.go/pkg/host"
	"github.com/robotalks/balance.go/pkg/host/mqtt"
	"github.com/robotalks/balance.go/pkg/host/websocket"
	"github.com/robotalks/balance.go/pkg/l2cap"
)

// Config provides options to setup an Env.
type Config struct {
	// Node names this host in MQTT topics.
	Node string `yaml:"node"`
	// Address is the Bluetooth address of the board.
	Address string `yaml:"address"`
	// MQTTBrokerURL specifies the MQTT broker to use, empty to disable.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	// WebsocketAddr is the listen address of the live feed, empty to disable.
	WebsocketAddr string `yaml:"websocket"`
	// MeasurementRate limits published measurements per second, 0 for no limit.
	MeasurementRate float64 `yaml:"measurement-rate"`

	Board *board.Config `yaml:"board"`
}

var defaultConfig = Config{
	MQTTBrokerURL:   "mqtt://localhost:1883/balance/",
	MeasurementRate: 10,
	Board:           board.Default(),
}

func init() {
	if val := os.Getenv("BALANCE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("BALANCE_ADDRESS"); val != "" {
		defaultConfig.Address = val
	}
	if val := os.Getenv("BALANCE_WEBSOCKET"); val != "" {
		defaultConfig.WebsocketAddr = val
	}
	if val := os.Getenv("BALANCE_RATE"); val != "" {
		if r, err := strconv.ParseFloat(val, 64); err == nil {
			defaultConfig.MeasurementRate = r
		}
	}
	if val := os.Getenv("BALANCE_NODE"); val != "" {
		defaultConfig.Node = val
	} else {
		defaultConfig.Node = MachineID()
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Node, "node", defaultConfig.Node, "Node name used in MQTT topics.")
	flag.StringVar(&defaultConfig.Address, "addr", defaultConfig.Address, "Bluetooth address of the board.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable.")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Listen address of websocket feed, empty to disable.")
	flag.Float64Var(&defaultConfig.MeasurementRate, "rate", defaultConfig.MeasurementRate, "Max measurements published per second, 0 for no limit.")
	board.SetupFlags()
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	boardConf := *defaultConfig.Board
	conf.Board = &boardConf
	return &conf
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if c.Board == nil {
		c.Board = board.NewConfig()
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Env is the runtime environment of a board service.
type Env struct {
	Config     *Config
	Publishers *host.PublisherMux
	Controller *host.Controller
	Driver     *board.Driver
	Feed       *websocket.Feed
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if c.Address != "" {
		if _, err := l2cap.ParseAddress(c.Address); err != nil {
			return nil, err
		}
	}
	env := &Env{Config: c, Publishers: &host.PublisherMux{}}
	if c.MQTTBrokerURL != "" {
		if c.Node == "" {
			return nil, fmt.Errorf("node name is required for MQTT")
		}
		pub, err := mqtt.NewPublisher(c.MQTTBrokerURL, c.Node)
		if err != nil {
			return nil, fmt.Errorf("create MQTT publisher error: %w", err)
		}
		env.Publishers.Add(pub)
	}
	if c.WebsocketAddr != "" {
		env.Feed = websocket.NewFeed(c.WebsocketAddr)
		env.Publishers.Add(env.Feed)
	}
	env.Controller = host.NewController(env.Publishers)
	env.Controller.Address = c.Address
	if c.MeasurementRate > 0 {
		env.Controller.Limiter = rate.NewLimiter(rate.Limit(c.MeasurementRate), 1)
	}
	env.Driver = board.NewDriver(env.Controller, c.Board)
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// Opener creates the channel opener for address, the configured address
// if empty.
func (e *Env) Opener(address string) (board.ChannelOpener, error) {
	if address == "" {
		address = e.Config.Address
	}
	if address == "" {
		return nil, fmt.Errorf("board address is required")
	}
	addr, err := l2cap.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	e.Controller.SetAddress(addr.String())
	return l2cap.NewDialer(addr), nil
}

// AddToLoop implements LoopAdder.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Controller)
}
