package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/balance.go/pkg/board"
	"github.com/robotalks/balance.go/pkg/env"
	fx "github.com/robotalks/balance.go/pkg/framework"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell *ishell.Shell
	Env   *env.Env

	ctx    context.Context
	cancel func()
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&StatusCmd,
		&WeightCmd,
		&TareCmd,
		&LastCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell and starts the event loop of e.
func New(e *env.Env) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell: ishell.New(),
		Env:   e,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	go fx.NewLoop().Add(e).Run(s.ctx)
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a session.
func MustBeConnected(fn func(c *ishell.Context, s *board.Session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		session := ShellFrom(c).Env.Driver.Session()
		if session == nil {
			c.Err(board.ErrNotConnected)
			return
		}
		fn(c, session)
	}
}

// Print prints v as JSON or with format.
func (s *Shell) Print(c *ishell.Context, v interface{}, format string, args ...interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf(format, args...)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects the board at address, the configured one if empty.
func (s *Shell) Connect(address string) error {
	opener, err := s.Env.Opener(address)
	if err != nil {
		return err
	}
	if _, err := s.Env.Driver.Connect(s.ctx, opener); err != nil {
		return err
	}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Env.Controller.BoardAddress()))
	return nil
}

// Disconnect disconnects current board.
func (s *Shell) Disconnect() error {
	s.Shell.SetPrompt(unconnectedPrompt)
	return s.Env.Driver.Disconnect()
}

// Close disconnects and stops the event loop.
func (s *Shell) Close() {
	s.Env.Driver.Disconnect()
	s.cancel()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Close()
	if s.AutoConnect && s.Env.Config.Address != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Env.Config.Address)
		}
		if err := s.Connect(""); err != nil {
			log.Fatalf("connect %q failed: %v", s.Env.Config.Address, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

type statusView struct {
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Expansion bool   `json:"expansion"`
	Address   string `json:"address,omitempty"`
}

type weightView struct {
	Weight      float64 `json:"weight_kg"`
	TopLeft     float64 `json:"top_left"`
	TopRight    float64 `json:"top_right"`
	BottomLeft  float64 `json:"bottom_left"`
	BottomRight float64 `json:"bottom_right"`
	Samples     int     `json:"samples"`
	Calibrating bool    `json:"calibrating"`
}

var (
	// ConnectCmd connects a board.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ADDR]",
		Func: func(c *ishell.Context) {
			var addr string
			if len(c.Args) > 0 {
				addr = c.Args[0]
			}
			if err := ShellFrom(c).Connect(addr); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current board.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Disconnect(); err != nil {
				c.Err(err)
			}
		},
	}

	// StatusCmd prints the session state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"s"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context, session *board.Session) {
			snapshot := session.Snapshot()
			v := &statusView{
				State:     snapshot.State.String(),
				Reason:    snapshot.Reason,
				Expansion: snapshot.Expansion,
				Address:   ShellFrom(c).Env.Controller.BoardAddress(),
			}
			if v.Reason != "" {
				ShellFrom(c).Print(c, v, "%s: %s\n", v.State, v.Reason)
				return
			}
			ShellFrom(c).Print(c, v, "%s (expansion: %v)\n", v.State, v.Expansion)
		}),
	}

	// WeightCmd prints current readings.
	WeightCmd = ishell.Cmd{
		Name:    "weight",
		Aliases: []string{"w"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context, session *board.Session) {
			snapshot := session.Snapshot()
			v := &weightView{
				Weight:      snapshot.Weight,
				TopLeft:     snapshot.TopLeft,
				TopRight:    snapshot.TopRight,
				BottomLeft:  snapshot.BottomLeft,
				BottomRight: snapshot.BottomRight,
				Samples:     snapshot.Samples,
				Calibrating: snapshot.Calibrating,
			}
			ShellFrom(c).Print(c, v, "%.2f kg [TL %.2f TR %.2f BL %.2f BR %.2f]\n",
				v.Weight, v.TopLeft, v.TopRight, v.BottomLeft, v.BottomRight)
		}),
	}

	// TareCmd starts or stops taring.
	TareCmd = ishell.Cmd{
		Name: "tare",
		Help: "start|stop",
		Func: MustBeConnected(func(c *ishell.Context, session *board.Session) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("start or stop expected"))
				return
			}
			switch c.Args[0] {
			case "start":
				session.SetCalibrating(true)
			case "stop":
				session.SetCalibrating(false)
			default:
				c.Err(fmt.Errorf("unknown tare action %q", c.Args[0]))
				return
			}
			c.Println("OK")
		}),
	}

	// LastCmd prints the last published measurement.
	LastCmd = ishell.Cmd{
		Name: "last",
		Help: "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			m := s.Env.Controller.Measurement()
			if m == nil {
				c.Println("No measurement")
				return
			}
			s.Print(c, m, "%.2f kg at %s (%s)\n", m.WeightKg, m.Time().Format(time.RFC3339), m.Id)
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig().MustNewEnv()).WithAutoConnect(true).Run(flag.Args()...)
}
