package crawler

import "context"

type eventKind int

const (
	eventAttempt eventKind = iota
	eventRetry
	eventOutcome
)

// event is what a worker reports about the task it owns.
type event struct {
	kind    eventKind
	url     string
	attempt int
	status  Status
	outcome Outcome
	links   []Link
}

func (c *crawler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case t := <-c.dispatch:
			c.process(ctx, t)
		}
	}
}

// report hands an event to the coordinator, giving up once it has stopped listening.
func (c *crawler) report(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
