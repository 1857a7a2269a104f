package events

import (
	"context"

	"go.uber.org/multierr"
)

// Fanout delivers every event to each publisher and combines their errors.
type Fanout []Publisher

// NewFanout drops nil publishers.
func NewFanout(publishers ...Publisher) Fanout {
	out := make(Fanout, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f Fanout) PublishAccess(ctx context.Context, event AccessEvent) error {
	var errs error
	for _, p := range f {
		errs = multierr.Append(errs, p.PublishAccess(ctx, event))
	}
	return errs
}

func (f Fanout) Close() error {
	var errs error
	for _, p := range f {
		errs = multierr.Append(errs, p.Close())
	}
	return errs
}
