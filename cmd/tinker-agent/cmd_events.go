package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/RoM4iK/tinker-agent/internal/events"
)

func newEventsCmd(stdout, stderr io.Writer) *cobra.Command {
	var filter eventsFilter
	var followFlag bool
	var timeoutFlag time.Duration
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the project's launch and attach history",
		Long: `Show the project's launch and attach history.

Events are appended to .tinker/events.jsonl next to the config file by
every launch, stop, and attach. With --follow, new events are printed as
JSON lines as they arrive.`,
		Example: `  tinker-agent events
  tinker-agent events --role worker --since 1h
  tinker-agent events --follow --type container.launched`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cmdEvents(filter, followFlag, timeoutFlag, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	filter.register(cmd.Flags())
	cmd.Flags().BoolVarP(&followFlag, "follow", "f", false, "print new events as they are recorded")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "stop following after this long (0 = until interrupted)")
	return cmd
}

type eventsFilter struct {
	typ   string
	role  string
	since string
}

func (f *eventsFilter) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.typ, "type", "", "filter by event type (e.g. container.launched)")
	fs.StringVar(&f.role, "role", "", "filter by role")
	fs.StringVar(&f.since, "since", "", "show events since duration ago (e.g. 1h, 30m)")
}

func (f eventsFilter) build(now time.Time) (events.Filter, error) {
	out := events.Filter{Type: f.typ, Subject: f.role}
	if f.since != "" {
		d, err := time.ParseDuration(f.since)
		if err != nil {
			return out, fmt.Errorf("invalid --since %q: %w", f.since, err)
		}
		out.Since = now.Add(-d)
	}
	return out, nil
}

// cmdEvents is the CLI entry point for the event log.
func cmdEvents(f eventsFilter, follow bool, timeout time.Duration, stdout, stderr io.Writer) int {
	_, cfgPath, code := loadConfig(stderr, "tinker-agent events")
	if code != 0 {
		return code
	}
	filter, err := f.build(time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent events:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	path := eventsPath(cfgPath)
	if !follow {
		return doEvents(path, filter, stdout, stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rec, err := events.NewFileRecorder(path, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent events:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer rec.Close() //nolint:errcheck // best-effort close
	return doEventsFollow(ctx, rec, filter, stdout, stderr)
}

// doEvents prints matching events as a table. Accepts the path
// directly for testability.
func doEvents(path string, filter events.Filter, stdout, stderr io.Writer) int {
	evts, err := events.ReadFiltered(path, filter)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent events:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(evts) == 0 {
		fmt.Fprintln(stdout, "No events.") //nolint:errcheck // best-effort stdout
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTYPE\tROLE\tMESSAGE\tTIME") //nolint:errcheck // best-effort stdout
	for _, e := range evts {
		msg := e.Message
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort stdout
			e.Seq, e.Type, e.Subject, msg,
			e.Ts.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush() //nolint:errcheck // best-effort stdout
	return 0
}

// doEventsFollow prints events recorded after the current head as JSON
// lines until ctx ends. Returns 0 when ctx ends.
func doEventsFollow(ctx context.Context, w events.Watchable, filter events.Filter, stdout, stderr io.Writer) int {
	head, err := w.LatestSeq()
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent events:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	watcher, err := w.Watch(ctx, head)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent events:"), err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer watcher.Close() //nolint:errcheck // best-effort close

	for {
		e, err := watcher.Next()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0
			}
			fmt.Fprintf(stderr, "%s %v\n", errorLabel("tinker-agent events:"), err) //nolint:errcheck // best-effort stderr
			return 1
		}
		if !filter.Match(e) {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
	}
}
