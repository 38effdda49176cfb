// Package ipc connects a parent process and a child process over the child's
// stdin and stdout using newline-delimited JSON messages.
//
// Each message is one line {"event":..., "data":..., "SR":..., "error":...}.
// Structured payloads travel as a JSON string inside data. Replies to a
// request on event "x" are routed on "x___RC___".
//
// # Parent Side
//
// Spawn starts a child and returns a Process:
//
//	ctx := context.Background()
//	proc, err := ipc.Spawn(ctx, "./worker", []string{"--serve"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Terminate()
//
//	proc.On("progress", func(data *string, err error) {
//	    fmt.Println("progress:", *data)
//	})
//
//	reply, err := proc.Request(ctx, "sum", ipc.Structured([]int{1, 2, 3}))
//
// Or let WithProcess manage the lifecycle:
//
//	err := ipc.WithProcess(ctx, "./worker", nil, func(p *ipc.Process) error {
//	    return p.Send("hello", ipc.Scalar("world"))
//	})
//
// # Child Side
//
// A program spawned this way serves with a Child:
//
//	child := ipc.NewChild(ipc.WithKeepAlive(0))
//	child.Handle("sum", func(ctx context.Context, data *string) (ipc.Payload, error) {
//	    var nums []int
//	    if err := ipc.DecodeData(data, &nums); err != nil {
//	        return nil, err
//	    }
//	    return ipc.Structured(total(nums)), nil
//	})
//
//	if err := child.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Logging
//
// For detailed operation tracking, use WithLogger. The child's stderr is
// delivered as Notifications to handlers registered with WithLogHandler or
// Process.OnLog:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	proc, err := ipc.Spawn(ctx, path, nil,
//	    ipc.WithLogger(logger),
//	    ipc.WithLogHandler(func(n ipc.Notification) {
//	        fmt.Fprint(os.Stderr, n.Text)
//	    }),
//	)
//
// # Error Handling
//
// The package provides typed errors for different failure scenarios:
//
//	if err := proc.Wait(); err != nil {
//	    if procErr, ok := errors.AsType[*ipc.ProcessError](err); ok {
//	        log.Fatalf("child failed with exit code %d: %s", procErr.ExitCode, procErr.Stderr)
//	    }
//	    log.Fatal(err)
//	}
//
// Frames that cannot be decoded are dropped; WithDesyncHandler observes them.
package ipc
