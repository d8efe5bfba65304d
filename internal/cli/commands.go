package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/rxflow/internal/api"
	"github.com/vnykmshr/rxflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/rxflow/pkg/streaming/observable"
	"github.com/vnykmshr/rxflow/pkg/streaming/redissource"
)

func parseInts(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", arg)
		}
		out = append(out, n)
	}
	return out, nil
}

func newNumbersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "numbers [n...]",
		Short: "Triple, add five and keep values above twenty",
		Long: `Pushes the given integers (1 to 10 by default) through map(x*3),
map(x+5) and filter(x>20), printing what comes out.`,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			values := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
			if len(args) > 0 {
				var err error
				if values, err = parseInts(args); err != nil {
					return err
				}
			}
			src := observable.Instrument[int]("numbers", a.recorder)(api.Numbers(observable.FromSlice(values)))
			return run(cmd.Context(), a, "numbers", src, func(w io.Writer, v int) {
				fmt.Fprintln(w, v)
			})
		}),
	}
}

func printUsers(w io.Writer, users []api.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "no users")
		return
	}
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Name, u.Email)
	}
}

func newUsersCommand(a *app) *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List the first users, or one user with --id",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			if id > 0 {
				return run(cmd.Context(), a, "user", svc.User(id), func(w io.Writer, u *api.User) {
					if u == nil {
						fmt.Fprintf(w, "user %d not found\n", id)
						return
					}
					printUsers(w, []api.User{*u})
				})
			}
			return run(cmd.Context(), a, "users", svc.Users(), printUsers)
		}),
	}
	cmd.Flags().IntVar(&id, "id", 0, "fetch a single user")
	return cmd
}

func newProductsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List products, retrying transient failures",
		Long: `Fetches the products resource. Transient failures (timeouts, 5xx,
429) are retried with the configured backoff; every retry is logged.`,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			return run(cmd.Context(), a, "products", svc.Products(), func(w io.Writer, products []api.Product) {
				if len(products) == 0 {
					fmt.Fprintln(w, "no products")
					return
				}
				for _, p := range products {
					fmt.Fprintf(w, "%d\t%s\t%.2f\n", p.ID, p.Name, p.Price)
				}
			})
		}),
	}
}

// lines emits every line read from r through sched. After EOF it waits
// settle before completing, so a debounced consumer still sees the last
// line.
func lines(r io.Reader, sched scheduler.Scheduler, settle time.Duration) observable.Observable[string] {
	return observable.Create(func(obs observable.Observer[string], sub *observable.Subscription) {
		go func() {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				if sub.Closed() {
					return
				}
				line := scanner.Text()
				sched.Post(func() { obs.OnNext(line) })
			}
			err := scanner.Err()
			sched.Post(func() {
				if err != nil {
					obs.OnError(fmt.Errorf("read input: %w", err))
					return
				}
				t := sched.AfterFunc(settle, obs.OnComplete)
				sub.Add(func() { t.Stop() })
			})
		}()
	})
}

func newSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Search users by name, one term per input line",
		Long: `Reads search terms from standard input, one per line, as if typed into
a search box. Terms are debounced and de-duplicated, and only the results
for the latest term are printed.`,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			settle := a.cfg.Search.Debounce + 50*time.Millisecond
			terms := lines(cmd.InOrStdin(), a.loop, settle)
			return run(cmd.Context(), a, "search", svc.Search(terms), func(w io.Writer, users []api.User) {
				if len(users) == 0 {
					fmt.Fprintln(w, "no matches")
					return
				}
				names := make([]string, len(users))
				for i, u := range users {
					names[i] = u.Name
				}
				fmt.Fprintln(w, strings.Join(names, ", "))
			})
		}),
	}
}

func newUserPostsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user-posts id...",
		Short: "Show each user with their post count",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ids, err := parseInts(args)
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			return run(cmd.Context(), a, "user-posts", svc.UserPosts(observable.FromSlice(ids)), func(w io.Writer, s api.UserPosts) {
				switch {
				case s.Loading:
					fmt.Fprintf(w, "user %d: loading\n", s.UserID)
				case s.Err != nil:
					fmt.Fprintf(w, "user %d: failed: %v\n", s.UserID, s.Err)
				default:
					fmt.Fprintf(w, "user %d: %s (%d posts)\n", s.UserID, s.User.Name, s.PostCount)
				}
			})
		}),
	}
}

func newCounterCommand(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Print a tick every interval until interrupted",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			src := observable.Interval(a.cfg.Counter.Interval, observable.WithScheduler(a.loop))
			if count > 0 {
				src = observable.Take[int](count)(src)
			}
			return run(cmd.Context(), a, "counter", src, func(w io.Writer, n int) {
				fmt.Fprintf(w, "tick %d\n", n)
			})
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many ticks (0 = until interrupted)")
	return cmd
}

func newCronCommand(a *app) *cobra.Command {
	var (
		count    int
		schedule string
	)
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Print the activation times of a cron schedule",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = a.cfg.Cron.Schedule
			}
			loc, err := a.cfg.Cron.TimeLocation()
			if err != nil {
				return err
			}
			src := observable.Cron(schedule, observable.WithScheduler(a.loop), observable.WithLocation(loc))
			if count > 0 {
				src = observable.Take[time.Time](count)(src)
			}
			return run(cmd.Context(), a, "cron", src, func(w io.Writer, t time.Time) {
				fmt.Fprintf(w, "fired at %s\n", t.Format(time.RFC3339))
			})
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many activations (0 = until interrupted)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression (defaults to cron.schedule)")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	var (
		count    int
		patterns bool
	)
	cmd := &cobra.Command{
		Use:   "watch [channel...]",
		Short: "Print messages published on Redis channels",
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			channels := args
			if len(channels) == 0 {
				channels = []string{a.cfg.Redis.Channel}
			}
			rdb := a.redis()
			defer rdb.Close()

			opts := []redissource.Option{redissource.WithScheduler(a.loop), redissource.WithLogger(a.logger)}
			if patterns {
				opts = append(opts, redissource.WithPatterns())
			}
			src := observable.Instrument[redissource.Message]("watch", a.recorder)(redissource.Subscribe(rdb, channels, opts...))
			if count > 0 {
				src = observable.Take[redissource.Message](count)(src)
			}
			return run(cmd.Context(), a, "watch", src, func(w io.Writer, m redissource.Message) {
				fmt.Fprintf(w, "[%s] %s\n", m.Channel, m.Payload)
			})
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "stop after this many messages (0 = until interrupted)")
	cmd.Flags().BoolVar(&patterns, "patterns", false, "treat channels as glob patterns")
	return cmd
}

func newPublishCommand(a *app) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "publish message",
		Short: "Publish a JSON-encoded message on a Redis channel",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if channel == "" {
				channel = a.cfg.Redis.Channel
			}
			rdb := a.redis()
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			n, err := redissource.Publish(ctx, rdb, channel, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "delivered to %d subscribers\n", n)
			return nil
		}),
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to publish on (defaults to redis.channel)")
	return cmd
}
