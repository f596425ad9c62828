// Package printer renders the stdout/stderr text contract (§6 banner,
// per-probe lines, and summary block) plus the additive --table and color
// presentations layered on top of it.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/pcekm/pingx/internal/pinger"
	"github.com/pcekm/pingx/internal/resolve"
	"github.com/pcekm/pingx/internal/session"
	"github.com/pcekm/pingx/internal/target"
)

// seqName is the per-protocol name for the sequence field in the text
// contract: icmp_seq, tcp_seq, or http_seq.
func seqName(p target.Protocol) string {
	switch p {
	case target.TCP:
		return "tcp_seq"
	case target.HTTP:
		return "http_seq"
	default:
		return "icmp_seq"
	}
}

// Printer writes the per-probe lines, banner, and final summary for a set
// of targets. Quiet suppresses only the per-probe success and timeout
// lines — error lines on stderr, the banner and the summary always print,
// matching ping(8)'s own -q behavior.
type Printer struct {
	Out          io.Writer
	Err          io.Writer
	Quiet        bool
	Color        bool
	ResolveNames bool

	errColor *color.Color
}

// New builds a Printer writing to stdout/stderr. Color is auto-disabled
// when stderr isn't a terminal, regardless of the requested value.
func New(quiet, wantColor, resolveNames bool) *Printer {
	useColor := wantColor && isatty.IsTerminal(os.Stderr.Fd())
	return &Printer{
		Out:          os.Stdout,
		Err:          os.Stderr,
		Quiet:        quiet,
		Color:        useColor,
		ResolveNames: resolveNames,
		errColor:     color.New(color.FgRed),
	}
}

// Banner prints the opening line for one target, once at startup. With
// ResolveNames set, the peer address is annotated with its PTR name when a
// reverse lookup finds one, mirroring ping(8)'s -a.
func (p *Printer) Banner(t session.Target, payloadSize int) {
	peer := t.Peer.String()
	if p.ResolveNames {
		if name := resolve.Reverse(context.Background(), t.Peer); name != peer {
			peer = fmt.Sprintf("%s, %s", peer, name)
		}
	}
	fmt.Fprintf(p.Out, "PING %s (%s) %d(%d) bytes of data.\n", t.Input, peer, payloadSize, payloadSize+28)
}

// Observe implements session.ProbeObserver: one line per probe result,
// success/timeout to stdout, errors to stderr.
func (p *Printer) Observe(t session.Target, r pinger.Result) {
	seq := seqName(t.Protocol)
	switch r.Status {
	case pinger.Success:
		if p.Quiet {
			return
		}
		line := fmt.Sprintf("%d bytes from %s: %s=%d", r.Bytes, peerString(r), seq, r.Seq)
		if r.HasTTL {
			line += fmt.Sprintf(" ttl=%d", r.TTL)
		}
		line += fmt.Sprintf(" time=%s ms", formatMillis(r.RTT))
		fmt.Fprintln(p.Out, line)
	case pinger.Timeout:
		if p.Quiet {
			return
		}
		fmt.Fprintf(p.Out, "Request timeout for %s=%d\n", seq, r.Seq)
	case pinger.Error:
		msg := fmt.Sprintf("Error for %s=%d: %s", seq, r.Seq, r.Message)
		if p.Color {
			msg = p.errColor.Sprint(msg)
		}
		fmt.Fprintln(p.Err, msg)
	}
}

// Summary prints the final statistics block for every target, in the
// order given (the caller passes target-input order per §4.5's shutdown
// rule).
func (p *Printer) Summary(targets []session.Target) {
	for _, t := range targets {
		s := t.Stats.Snapshot()
		fmt.Fprintf(p.Out, "--- %s ping statistics ---\n", t.Input)
		fmt.Fprintf(p.Out, "%d transmitted, %d received, %.0f%% packet loss, time %dms\n",
			s.Transmitted, s.Received, s.LossPercent, s.Elapsed.Milliseconds())
		if s.Received > 0 {
			fmt.Fprintf(p.Out, "rtt min/avg/max/mdev = %s/%s/%s/%s ms\n",
				formatMillis(s.Min), formatMillis(s.Avg), formatMillis(s.Max), formatMillis(s.Mdev))
		}
	}
}

// TableSummary renders the same per-target statistics as Summary, but as a
// single table instead of one text block per target. Additive: the plain
// Summary output is still what a script would parse; this is for a human
// comparing several targets at a glance.
func (p *Printer) TableSummary(targets []session.Target) {
	table := tablewriter.NewWriter(p.Out)
	table.SetHeader([]string{"Target", "Sent", "Recv", "Loss", "Min", "Avg", "Max", "Mdev"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, t := range targets {
		s := t.Stats.Snapshot()
		row := []string{
			t.Input,
			fmt.Sprintf("%d", s.Transmitted),
			fmt.Sprintf("%d", s.Received),
			fmt.Sprintf("%.0f%%", s.LossPercent),
		}
		if s.Received > 0 {
			row = append(row, formatMillis(s.Min), formatMillis(s.Avg), formatMillis(s.Max), formatMillis(s.Mdev))
		} else {
			row = append(row, "-", "-", "-", "-")
		}
		table.Append(row)
	}
	table.Render()
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}

func peerString(r pinger.Result) string {
	if r.Peer == nil {
		return "?"
	}
	return r.Peer.String()
}
