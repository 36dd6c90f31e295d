// Package client is the session façade: it connects an engine channel to
// the session store, the approval engine and the renderer, and exposes
// task submission, ask responses, cancellation and state queries.
//
// # Basic Usage
//
// Create a client over a channel and run its event loop:
//
//	c := client.New(client.Config{
//	    Channel:  ch,
//	    Policy:   approval.PolicyInteractive,
//	    Prompter: input.NewLines(os.Stdin, os.Stdout),
//	    Renderer: render.NewTerminal(os.Stdout),
//	})
//	defer c.Close()
//	go c.Run(ctx)
//
// Wait for the engine, then submit a task and block until it settles:
//
//	<-c.Ready()
//	info, err := c.SubmitTask(ctx, "Add a README")
//	if errors.Is(err, client.ErrTaskTimedOut) {
//	    // the task never reached a terminal state
//	}
//	fmt.Println(info.State)
//
// A task that stops on a failed request or an interruption settles with
// that ask still pending. Resume answers it and waits again:
//
//	if info.CurrentAsk.Category().Settles() {
//	    info, err = c.Resume(ctx, approval.Approved())
//	}
//
// # Concurrency
//
// Inbound envelopes are applied by Run in arrival order. Subscribers and
// rendering run on the goroutine performing the store mutation, so they
// must not block. Only one task runs at a time. Messages older than the
// current task are dropped when they are delivered again.
package client
