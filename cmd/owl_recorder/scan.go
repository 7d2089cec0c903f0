package main

import (
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OCAP2/owl/internal/scan"
)

func scanCmd(a *app) *cobra.Command {
	var (
		timeout  time.Duration
		targets  []string
		message  string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover tracking servers on the local network",
		Long: `Broadcast a probe and print every server that answers. With --watch the
probe repeats every interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []scan.Option{scan.WithLogger(a.log)}
			if len(targets) > 0 {
				opts = append(opts, scan.WithTargets(targets...))
			}
			s, err := scan.New(opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			if interval > 0 {
				return watch(cmd, s, interval)
			}

			if err := s.Send(message); err != nil {
				return err
			}
			replies, err := s.Listen(timeout)
			if err != nil {
				return err
			}
			if len(replies) == 0 {
				fmt.Println("No servers found")
				return nil
			}
			for _, r := range replies {
				printReply(scan.ParseReply(r))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "how long to wait for the first reply")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "probe these host:port addresses instead of broadcasting")
	cmd.Flags().StringVar(&message, "message", scan.Message, "probe text")
	cmd.Flags().DurationVar(&interval, "watch", 0, "repeat the probe at this interval")

	return cmd
}

func watch(cmd *cobra.Command, s *scan.Scanner, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.Start(ctx, interval)
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("%d servers seen\n", len(s.Servers()))
			return nil
		case r := <-s.Replies():
			printReply(scan.ParseReply(r))
		}
	}
}

func printReply(fields map[string]string) {
	var b strings.Builder
	b.WriteString(fields["ip"])
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if k == "ip" {
			continue
		}
		fmt.Fprintf(&b, " %s=%s", k, fields[k])
	}
	fmt.Println(b.String())
}
