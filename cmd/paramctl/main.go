package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danmuck/edgeparams/internal/logging"
	"github.com/danmuck/edgeparams/internal/paramclient"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/paramstore"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/danmuck/edgeparams/internal/transport"
)

var errUsage = errors.New("usage: paramctl [flags] get|types|describe|set|list [args]")

type options struct {
	locator string
	node    string
	domain  uint
	timeout time.Duration
	tlsCA   string
}

func main() {
	logging.ConfigureRuntime()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "paramctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("paramctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var opts options
	fs.StringVar(&opts.locator, "locator", "tcp/127.0.0.1:7447", "node or router locator")
	fs.StringVar(&opts.node, "node", "", "fully qualified node name, e.g. /robot/arm")
	fs.UintVar(&opts.domain, "domain", 0, "domain id")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Second, "per-command timeout")
	fs.StringVar(&opts.tlsCA, "tls-ca", "", "CA file for tls/ locators")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	rest := fs.Args()
	if len(rest) == 0 || opts.node == "" {
		return errUsage
	}

	loc, err := transport.ParseLocator(opts.locator)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	cfg := session.DefaultConfig()
	cfg.TLS.CAFile = opts.tlsCA
	link, err := transport.Dial(ctx, loc, cfg)
	if err != nil {
		return err
	}
	defer link.Close()
	c, err := paramclient.New(link, paramclient.Target{DomainID: uint32(opts.domain), Node: opts.node})
	if err != nil {
		return err
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "get":
		return runGet(ctx, c, cmdArgs, out)
	case "types":
		return runTypes(ctx, c, cmdArgs, out)
	case "describe":
		return runDescribe(ctx, c, cmdArgs, out)
	case "set":
		return runSet(ctx, c, cmdArgs, out)
	case "list":
		return runList(ctx, c, cmdArgs, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func runGet(ctx context.Context, c *paramclient.Client, names []string, out io.Writer) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: get needs at least one name", errUsage)
	}
	values, err := c.Get(ctx, names...)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, v := range values {
		if v.Type == params.TypeNotSet {
			fmt.Fprintf(tw, "%s\tnot set\t\n", names[i])
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\n", names[i], v.Type, v.Any())
	}
	return tw.Flush()
}

func runTypes(ctx context.Context, c *paramclient.Client, names []string, out io.Writer) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: types needs at least one name", errUsage)
	}
	types, err := c.GetTypes(ctx, names...)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, typ := range types {
		fmt.Fprintf(tw, "%s\t%s\n", names[i], typ)
	}
	return tw.Flush()
}

func runDescribe(ctx context.Context, c *paramclient.Client, names []string, out io.Writer) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: describe needs at least one name", errUsage)
	}
	descs, err := c.Describe(ctx, names...)
	if err != nil {
		return err
	}
	for _, d := range descs {
		fmt.Fprintf(out, "%s\n  type: %s\n", d.Name, d.Type)
		if d.Description != "" {
			fmt.Fprintf(out, "  description: %s\n", d.Description)
		}
		if d.AdditionalConstraints != "" {
			fmt.Fprintf(out, "  constraints: %s\n", d.AdditionalConstraints)
		}
		if d.ReadOnly {
			fmt.Fprintln(out, "  read only")
		}
		if d.DynamicTyping {
			fmt.Fprintln(out, "  dynamic typing")
		}
		if r := d.IntRange; r != nil {
			fmt.Fprintf(out, "  range: [%d, %d] step %d\n", r.Min, r.Max, r.Step)
		}
		if r := d.FloatRange; r != nil {
			fmt.Fprintf(out, "  range: [%g, %g] step %g\n", r.Min, r.Max, r.Step)
		}
	}
	return nil
}

// runSet takes name value pairs. Without -type each value is parsed as the
// parameter's current type.
func runSet(ctx context.Context, c *paramclient.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	typeName := fs.String("type", "", "value type for every pair (default: current type)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	pairs := fs.Args()
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return fmt.Errorf("%w: set needs name value pairs", errUsage)
	}
	names := make([]string, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		names = append(names, pairs[i])
	}

	types := make([]params.Type, len(names))
	if *typeName != "" {
		t, err := params.ParseType(*typeName)
		if err != nil {
			return err
		}
		for i := range types {
			types[i] = t
		}
	} else {
		current, err := c.GetTypes(ctx, names...)
		if err != nil {
			return err
		}
		for i, t := range current {
			if t == params.TypeNotSet {
				return fmt.Errorf("%s has no current value; pass -type", names[i])
			}
		}
		types = current
	}

	ps := make([]params.Parameter, len(names))
	for i, name := range names {
		v, err := paramstore.ParseValue(types[i], pairs[2*i+1])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		ps[i] = params.Parameter{Name: name, Value: v}
	}
	results, err := c.Set(ctx, ps...)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rejected := 0
	for i, res := range results {
		if res.Successful {
			fmt.Fprintf(tw, "%s\tok\t\n", names[i])
			continue
		}
		rejected++
		fmt.Fprintf(tw, "%s\trejected\t%s\n", names[i], res.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d parameters rejected", rejected, len(results))
	}
	return nil
}

func runList(ctx context.Context, c *paramclient.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	depth := fs.Uint64("depth", 0, "requested depth (0 means unlimited)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	reply, err := c.List(ctx, fs.Args(), *depth)
	if err != nil {
		return err
	}
	for _, name := range reply.Names {
		fmt.Fprintln(out, name)
	}
	for _, prefix := range reply.Prefixes {
		fmt.Fprintln(out, strings.TrimSuffix(prefix, "/")+"/")
	}
	return nil
}
