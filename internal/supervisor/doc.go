// Package supervisor keeps long-running tasks alive.
//
// A Supervisor runs one task function and restarts it from scratch after a
// fixed delay whenever it fails. A returned error, a panic, and a normal
// return while the context is still live all count as failures. Only
// cancelling the context stops the loop.
//
// Each Supervisor owns its own restart schedule, so a task that keeps
// failing never delays another.
//
// Example usage:
//
//	sup := supervisor.New(supervisor.Config{
//	    Name:         "producer",
//	    Task:         func(ctx context.Context) error { return ble.NewProducer(opts).Run(ctx) },
//	    RestartDelay: 10 * time.Second,
//	})
//	sup.SetLogger(logger)
//
//	err := sup.Run(ctx) // returns ctx.Err() on shutdown
package supervisor
