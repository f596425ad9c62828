// Command pingx probes one or more targets over ICMP, TCP, or HTTP and
// reports per-probe results plus a final statistics summary, in the style
// of the classic ping(8) but generalized across transports.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/pcekm/pingx/internal/happyeyeballs"
	"github.com/pcekm/pingx/internal/icmpclient"
	"github.com/pcekm/pingx/internal/pinger"
	"github.com/pcekm/pingx/internal/printer"
	"github.com/pcekm/pingx/internal/resolve"
	"github.com/pcekm/pingx/internal/session"
	"github.com/pcekm/pingx/internal/stats"
	"github.com/pcekm/pingx/internal/target"
	"github.com/pcekm/pingx/internal/tui"
	"github.com/pcekm/pingx/internal/util"
)

var Version = "(unknown)" // set via -ldflags

var (
	count        = pflag.IntP("count", "c", 0, "Stop after this many probes per target. 0 means unlimited.")
	interval     = pflag.Float64P("interval", "i", 1, "Seconds between probes.")
	probeTimeout = pflag.Float64P("timeout", "W", 1, "Seconds to wait for a reply to a single probe.")
	deadline     = pflag.Float64P("deadline", "w", 0, "Total seconds before forced exit. 0 means unlimited.")
	ttl          = pflag.Int("ttl", 64, "TTL (or hop limit) for outgoing probes.")
	payloadSize  = pflag.IntP("size", "s", 56, "Number of payload bytes in each ICMP request.")
	quiet        = pflag.BoolP("quiet", "q", false, "Suppress per-probe output lines.")
	forceV4      = pflag.Bool("4", false, "Restrict name resolution to IPv4.")
	forceV6      = pflag.Bool("6", false, "Restrict name resolution to IPv6.")
	forceTCP     = pflag.Bool("tcp", false, "Treat every target as host:port and probe with a bare TCP connect.")
	forceHTTP    = pflag.Bool("http", false, "Treat every target as an HTTP(S) URL and probe with a HEAD request.")
	headerFlags  = pflag.StringArray("header", nil, "Custom HTTP header (\"Name: Value\"); repeatable, or ';'/newline-separated.")
	useTable     = pflag.Bool("table", false, "Render the final summary as a table instead of one block per target.")
	useColor     = pflag.Bool("color", false, "Colorize the stderr error line.")
	useTUI       = pflag.Bool("tui", false, "Show a live dashboard instead of printing per-probe lines.")
	resolveNames = pflag.BoolP("resolve-names", "a", false, "Annotate the banner with the peer's reverse-DNS name.")
	printVersion = pflag.BoolP("version", "v", false, "Output the version number.")
)

func main() {
	pflag.Parse()

	if *printVersion {
		printVersionInfo()
		return
	}
	if len(pflag.Args()) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	targets, pool, err := setup(pflag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "pingx: no target could be set up")
		os.Exit(1)
	}
	defer pool.releaseAll()

	interrupt := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		close(interrupt)
	}()

	p := printer.New(*quiet, *useColor, *resolveNames)
	if !*useTUI {
		for _, t := range targets {
			p.Banner(t, *payloadSize)
		}
	}

	opts := session.Options{
		Interval:     durationSeconds(*interval),
		Count:        *count,
		Deadline:     durationSeconds(*deadline),
		ProbeTimeout: durationSeconds(*probeTimeout),
	}

	if *useTUI {
		runTUI(targets, opts, interrupt)
	} else {
		sess := session.New(targets, opts, p, interrupt)
		sess.Run()
	}

	if *useTable {
		p.TableSummary(targets)
	} else {
		p.Summary(targets)
	}
}

func runTUI(targets []session.Target, opts session.Options, interrupt <-chan struct{}) {
	model := tui.New(targets, opts.Interval)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	sess := session.New(targets, opts, nil, interrupt)
	go sess.Run()
	if _, err := prog.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "pingx: tui: %v\n", err)
	}
}

func durationSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// clientPool tracks how many times each IP version's shared client was
// acquired during setup, so releaseAll can give back exactly that many
// references at exit (Happy Eyeballs racing and the final pinger each
// acquire independently, and may acquire the same family more than once
// across different targets).
type clientPool struct {
	pool *icmpclient.Pool
	used map[util.IPVersion]int
}

func (c *clientPool) acquire(v util.IPVersion) (*icmpclient.Client, error) {
	client, err := c.pool.Acquire(v)
	if err == nil {
		c.used[v]++
	}
	return client, err
}

func (c *clientPool) releaseAll() {
	for v, n := range c.used {
		for i := 0; i < n; i++ {
			c.pool.Release(v)
		}
	}
}

// setup resolves, races, and constructs a pinger for every input target,
// skipping (with a logged warning) any target that can't be set up rather
// than aborting the whole run.
func setup(inputs []string) ([]session.Target, *clientPool, error) {
	detectOpts := target.Options{ForceTCP: *forceTCP, ForceHTTP: *forceHTTP}
	family := resolve.Any
	switch {
	case *forceV4:
		family = resolve.V4Only
	case *forceV6:
		family = resolve.V6Only
	}
	headers := pinger.ParseHeaders(*headerFlags)
	pool := &clientPool{pool: icmpclient.NewPool(), used: map[util.IPVersion]int{}}

	var out []session.Target
	ctx := context.Background()
	for _, input := range inputs {
		t, err := target.Detect(input, detectOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pingx: %v\n", err)
			continue
		}

		addrs, err := resolve.Addresses(ctx, resolve.Default, t.Host, family)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pingx: %v\n", err)
			continue
		}

		peer, err := racePeer(ctx, t, addrs, pool)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pingx: %s: %v\n", input, err)
			continue
		}

		p, err := buildPinger(t, peer, pool, headers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pingx: %s: %v\n", input, err)
			continue
		}

		out = append(out, session.Target{
			Input:    input,
			Protocol: t.Protocol,
			Peer:     peer,
			Pinger:   p,
			Stats:    stats.New(),
		})
	}
	return out, pool, nil
}

func racePeer(ctx context.Context, t target.Target, addrs []net.IP, pool *clientPool) (net.IP, error) {
	opts := happyeyeballs.Options{ProbeTimeout: durationSeconds(*probeTimeout)}
	if t.Protocol != target.ICMP {
		return happyeyeballs.Race(ctx, addrs, func(ctx context.Context, addr net.IP) error {
			return tcpAttempt(ctx, addr, t.Port)
		}, opts)
	}
	return happyeyeballs.Race(ctx, addrs, func(ctx context.Context, addr net.IP) error {
		return icmpAttempt(ctx, addr, pool)
	}, opts)
}

func tcpAttempt(ctx context.Context, addr net.IP, port int) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr.String(), fmt.Sprint(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

// racingTTL is the fixed hop limit Happy Eyeballs ICMP probes use during
// address racing, independent of the user's --ttl flag. Racing just needs
// to confirm a peer is reachable at all; inheriting a user-lowered --ttl
// (e.g. to cap hops) would make every race attempt fail well short of the
// peer even though the peer is perfectly reachable at the real probe TTL.
const racingTTL = 64

func icmpAttempt(ctx context.Context, addr net.IP, pool *clientPool) error {
	v := util.IPVersionOf(addr)
	client, err := pool.acquire(v)
	if err != nil {
		return err
	}
	peerAddr := client.Addr(addr)
	id := client.EchoID()
	replyCh := client.Register(peerAddr, id, 0)
	if _, err := client.Send(peerAddr, id, 0, make([]byte, 0), racingTTL); err != nil {
		client.Remove(peerAddr, id, 0)
		return err
	}
	select {
	case <-replyCh:
		return nil
	case <-ctx.Done():
		client.Remove(peerAddr, id, 0)
		return ctx.Err()
	}
}

func buildPinger(t target.Target, peer net.IP, pool *clientPool, headers http.Header) (pinger.Pinger, error) {
	timeout := durationSeconds(*probeTimeout)
	switch t.Protocol {
	case target.TCP:
		return pinger.NewTCP(t.Input, peer, t.Port, timeout), nil
	case target.HTTP:
		return pinger.NewHTTP(t.Input, t.URL, peer, t.Port, timeout, headers), nil
	default:
		client, err := pool.acquire(util.IPVersionOf(peer))
		if err != nil {
			return nil, err
		}
		return pinger.NewICMP(t.Input, client, peer, *payloadSize, *ttl, timeout), nil
	}
}

func printVersionInfo() {
	inf, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("pingx: unknown version")
		return
	}
	fmt.Printf("%s %s\nbuilt with %s\n", path.Base(inf.Path), Version, inf.GoVersion)
}
