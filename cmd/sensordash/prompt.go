package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/server"
)

var errQuit = errors.New("quit")

var commandNames = []string{"offset", "offsets", "show", "stats", "help", "quit"}

const helpText = `commands:
  offset <distance|yaw|pitch> <value>   set a channel offset
  offsets                               print current offsets
  show                                  print the latest readings
  stats                                 print loop counters
  quit                                  stop acquisition and exit
`

// commander executes operator commands against the running loop.
type commander struct {
	offsets server.OffsetSetter
	cfg     *server.Config
	latest  func() *acquire.Snapshot
	out     io.Writer
}

func newCommander(offsets server.OffsetSetter, cfg *server.Config, latest func() *acquire.Snapshot, out io.Writer) *commander {
	return &commander{offsets: offsets, cfg: cfg, latest: latest, out: out}
}

// exec runs one command line. It returns errQuit when the operator asks to
// stop.
func (c *commander) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "offset":
		if len(fields) != 3 {
			return errors.New("usage: offset <channel> <value>")
		}
		ch, err := calib.ParseChannel(fields[1])
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Errorf("bad offset %q", fields[2])
		}
		if err := c.offsets.SetOffset(ch, v); err != nil {
			return err
		}
		if err := c.cfg.SetOffset(ch, v); err != nil {
			return err
		}
		if err := c.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		fmt.Fprintf(c.out, "%s offset %g (applies next tick)\n", ch, v)

	case "offsets":
		offs := c.cfg.Offsets()
		for _, ch := range calib.Channels {
			fmt.Fprintf(c.out, "%-8s %g\n", ch, offs[ch])
		}

	case "show":
		s := c.latest()
		if s == nil {
			fmt.Fprintln(c.out, "no data yet")
			return nil
		}
		for _, ch := range calib.Channels {
			state := "ok"
			if !s.Valid[ch] {
				state = "out of range"
			}
			fmt.Fprintf(c.out, "%s: %.2f (%s)\n", ch.Label(), s.Value(ch), state)
		}
		fmt.Fprintf(c.out, "bank: %v\n", s.RawBank)

	case "stats":
		s := c.latest()
		if s == nil {
			fmt.Fprintln(c.out, "no data yet")
			return nil
		}
		st := s.Stats
		fmt.Fprintf(c.out, "ticks=%d short=%d overruns=%d out_of_range=%v\n",
			st.Ticks, st.ShortFrames, st.Overruns, st.OutOfRange)

	case "help", "?":
		io.WriteString(c.out, helpText)

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return nil
}

func complete(line string) []string {
	var out []string
	for _, name := range commandNames {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	return out
}

// runPrompt reads commands from the terminal until quit, EOF or ctx is done.
// Leaving the prompt stops the process. The caller owns term and closes it
// to restore the terminal.
func runPrompt(ctx context.Context, cancel context.CancelFunc, term *liner.State, c *commander) {
	defer cancel()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	for ctx.Err() == nil {
		line, err := term.Prompt("sensordash> ")
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				log.Printf("[prompt] %v", err)
			}
			return
		}
		term.AppendHistory(line)
		if err := c.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			fmt.Fprintln(c.out, "error:", err)
		}
	}
}
