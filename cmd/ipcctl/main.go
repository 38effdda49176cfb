// Command ipcctl drives a child process over the stdio line protocol.
//
//	ipcctl run [--profile child.toml] -- ./worker --flag
//	ipcctl echo
//
// In run mode every stdin line "event data" is sent to the child, and a line
// "?event data" is sent as a request whose reply is printed. Messages from
// the child are printed as "event: data".
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	ipc "github.com/wagiedev/stdio-ipc-go"
)

func main() {
	app := &cli.App{
		Name:  "ipcctl",
		Usage: "exchange line-delimited JSON messages with a child process",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level for diagnostics on stderr. One of [debug,info,warn,error].",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "spawn a child and relay stdin lines to it",
				ArgsUsage: "[path] [args...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "profile",
						Usage: "TOML launch profile describing the child.",
					},
					&cli.DurationFlag{
						Name:  "request-timeout",
						Usage: "How long to wait for each request's reply.",
						Value: 30 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "exit-timeout",
						Usage: "How long to wait for the child to exit after stdin closes.",
						Value: 5 * time.Second,
					},
				},
				Action: runParent,
			},
			{
				Name:  "echo",
				Usage: "serve as a child that answers every request with its data",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "keepalive",
						Usage: "Ping interval for detecting a lost parent. Zero disables.",
					},
				},
				Action: runEcho,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func runParent(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	profile := &ipc.Profile{}

	if path := c.String("profile"); path != "" {
		profile, err = ipc.LoadProfile(path)
		if err != nil {
			return err
		}
	}

	if c.NArg() > 0 {
		profile.Path = c.Args().First()
		profile.Args = c.Args().Tail()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc, err := ipc.SpawnProfile(ctx, profile,
		ipc.WithLogger(logger),
		ipc.WithLogHandler(func(n ipc.Notification) {
			if n.Kind == ipc.KindStreamData {
				fmt.Fprint(os.Stderr, n.Text)
			}
		}),
	)
	if err != nil {
		return err
	}

	defer func() { _ = proc.Terminate() }()

	proc.OnAny(func(msg ipc.Message) {
		if msg.IsReply() || msg.Event == "ping" || msg.Event == "pong" {
			return
		}

		fmt.Printf("%s: %s\n", msg.Event, msg.Text())
	})

	if err := relay(ctx, proc, c.Duration("request-timeout")); err != nil {
		return err
	}

	if err := proc.RequestExit(); err != nil {
		return err
	}

	select {
	case <-proc.Done():
	case <-time.After(c.Duration("exit-timeout")):
		logger.Warn("Child did not exit in time, terminating")

		return proc.Terminate()
	case <-ctx.Done():
		return proc.Terminate()
	}

	return proc.Wait()
}

// relay forwards stdin lines to proc until EOF or the child exits.
func relay(ctx context.Context, proc *ipc.Process, timeout time.Duration) error {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		cmd, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}

		if proc.Exited() || ctx.Err() != nil {
			return nil
		}

		if !cmd.request {
			if err := proc.Send(cmd.event, cmd.payload()); err != nil {
				return err
			}

			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		reply, err := proc.Request(reqCtx, cmd.event, cmd.payload())

		cancel()

		switch {
		case err != nil:
			fmt.Printf("%s failed: %v\n", cmd.event, err)
		case reply == nil:
			fmt.Printf("%s -> null\n", cmd.event)
		default:
			fmt.Printf("%s -> %s\n", cmd.event, *reply)
		}
	}

	return scanner.Err()
}

type command struct {
	event   string
	data    string
	hasData bool
	request bool
}

func (c command) payload() ipc.Payload {
	if !c.hasData {
		return ipc.Null()
	}

	return ipc.Scalar(c.data)
}

// parseLine splits "event data" or "?event data". Blank lines are skipped.
func parseLine(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}

	var cmd command

	if rest, ok := strings.CutPrefix(line, "?"); ok {
		cmd.request = true
		line = strings.TrimSpace(rest)
	}

	event, data, hasData := strings.Cut(line, " ")
	if event == "" {
		return command{}, false
	}

	cmd.event = event
	cmd.data = strings.TrimSpace(data)
	cmd.hasData = hasData && cmd.data != ""

	return cmd, true
}

func runEcho(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	opts := []ipc.Option{ipc.WithLogger(logger)}
	if interval := c.Duration("keepalive"); interval > 0 {
		opts = append(opts, ipc.WithKeepAlive(interval))
	}

	child := ipc.NewChild(opts...)

	child.OnAny(func(msg ipc.Message) {
		if !msg.SR || msg.Event == "" {
			return
		}

		if err := child.Reply(ipc.ReplyChannel(msg.Event), echoPayload(msg.Data), ""); err != nil {
			logger.Error("Failed to reply", "event", msg.Event, "error", err)
		}
	})

	return child.Run(c.Context)
}

func echoPayload(data *string) ipc.Payload {
	if data == nil {
		return ipc.Null()
	}

	return ipc.Scalar(*data)
}
