// Package queue provides the unbounded FIFO that decouples the BLE producer
// from the active consumer.
//
// Push never blocks, so scanning is never held up by a slow consumer.
// Pop blocks until an item is available, the context ends, or the queue is
// closed. Items come out in exactly the order they went in.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Ordering is strict FIFO across all producers and consumers.
//
// Usage:
//
//	q := queue.New[ble.Record]()
//	q.Push(rec)
//
//	rec, err := q.Pop(ctx)
//	if err != nil {
//	    return err // context cancelled or queue closed
//	}
//	defer q.TaskDone()
package queue
