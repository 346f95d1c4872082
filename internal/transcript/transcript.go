package transcript

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/scalectl/internal/bus"
	"github.com/skobkin/scalectl/internal/connectors"
	"github.com/skobkin/scalectl/internal/protocol"
)

// Mode picks what a Writer mirrors.
type Mode int

const (
	// ModeDecoded shows commands and decoded replies.
	ModeDecoded Mode = iota
	// ModeRaw shows frames exactly as they crossed the link.
	ModeRaw
)

// Writer mirrors device traffic to an operator-visible stream. It runs on
// its own bus subscription so a slow terminal never stalls the reader.
type Writer struct {
	logger *slog.Logger
	bus    bus.MessageBus
	out    io.Writer
	mode   Mode

	sub      bus.Subscription
	done     chan struct{}
	stopOnce sync.Once
	errOnce  sync.Once
}

func New(logger *slog.Logger, b bus.MessageBus, out io.Writer, mode Mode) *Writer {
	if logger == nil {
		logger = slog.Default().With("component", "transcript")
	}
	if out == nil {
		out = io.Discard
	}

	return &Writer{logger: logger, bus: b, out: out, mode: mode}
}

func (w *Writer) Start() {
	render := Render
	topics := []string{connectors.TopicFrameIn, connectors.TopicCommandOut, connectors.TopicConnStatus}
	if w.mode == ModeRaw {
		render = RenderRaw
		topics = []string{connectors.TopicRawFrameIn, connectors.TopicRawFrameOut, connectors.TopicConnStatus}
	}
	w.sub = w.bus.Subscribe(topics...)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		for msg := range w.sub {
			text := render(msg)
			if text == "" {
				continue
			}
			if _, err := io.WriteString(w.out, text); err != nil {
				w.errOnce.Do(func() {
					w.logger.Debug("transcript write failed", "error", err)
				})
			}
		}
	}()
}

// Stop unsubscribes and waits until already queued events are written.
func (w *Writer) Stop() {
	if w.sub == nil {
		return
	}
	w.stopOnce.Do(func() {
		w.bus.Unsubscribe(w.sub)
		<-w.done
	})
}

// Render formats one bus event as transcript lines. Unknown events render
// as an empty string.
func Render(msg any) string {
	switch m := msg.(type) {
	case connectors.FrameIn:
		return renderFrame(m.Response)
	case connectors.CommandOut:
		return "> " + m.Line + "\n"
	case connectors.ConnectionStatus:
		return renderStatus(m)
	default:
		return ""
	}
}

// RenderRaw formats link-level frames: ">>" for what was written and "<<"
// for what the device sent, byte for byte apart from the line terminator.
func RenderRaw(msg any) string {
	switch m := msg.(type) {
	case connectors.RawFrame:
		if m.Outbound {
			return ">> " + m.Text + "\n"
		}
		return "<< " + m.Text + "\n"
	case connectors.ConnectionStatus:
		return renderStatus(m)
	default:
		return ""
	}
}

func renderFrame(resp protocol.Response) string {
	if !resp.Valid() {
		return "< " + resp.Raw + "\n"
	}

	body, err := toYAML(resp.Raw)
	if err != nil {
		return "< " + strconv.Itoa(len(resp.Raw)) + "\n< " + resp.Pretty() + "\n"
	}

	var b strings.Builder
	b.WriteString("< ")
	b.WriteString(strconv.Itoa(len(resp.Raw)))
	b.WriteByte('\n')
	for i, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		if i == 0 {
			b.WriteString("< ")
		} else {
			b.WriteString("  ")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return b.String()
}

func renderStatus(s connectors.ConnectionStatus) string {
	var b strings.Builder
	b.WriteString("* ")
	b.WriteString(string(s.State))
	if s.Target != "" {
		fmt.Fprintf(&b, " %s", s.Target)
	}
	if s.TransportName != "" {
		fmt.Fprintf(&b, " (%s)", s.TransportName)
	}
	if s.Err != "" {
		fmt.Fprintf(&b, ": %s", s.Err)
	}
	b.WriteByte('\n')

	return b.String()
}

// toYAML re-encodes a JSON object as block-style YAML, keeping the device's
// key order. JSON is valid YAML, so the node tree comes straight from the
// raw text.
func toYAML(raw string) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return "", err
	}
	resetStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		resetStyle(child)
	}
}
