package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
)

// Console prints one line per published snapshot.
type Console struct {
	w io.Writer
}

// New returns a Console writing to w, or to stdout when w is nil.
func New(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Publish(s *acquire.Snapshot) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s tick=%d", s.Stamp.Format(time.RFC3339), s.Tick)
	for _, ch := range calib.Channels {
		fmt.Fprintf(&b, "  %s: %.2f", ch.Label(), s.Value(ch))
		if !s.Valid[ch] {
			b.WriteString("!")
		}
	}
	fmt.Fprintf(&b, "  bank=%v", s.RawBank)
	if s.Stale {
		b.WriteString(" (stale)")
	}
	b.WriteByte('\n')
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *Console) Close() error { return nil }
