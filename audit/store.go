package audit

import (
	"context"
	"time"
)

type Store interface {
	// Append persists the record and assigns its Seq. Append is the only
	// write; records are never updated or deleted.
	Append(ctx context.Context, r *Record) error
	ListByActor(ctx context.Context, actorID string, opts ListOpts) ([]*Record, error)
	ListByTarget(ctx context.Context, targetID string, opts ListOpts) ([]*Record, error)
	ListByRange(ctx context.Context, from, to time.Time, opts ListOpts) ([]*Record, error)
}

type ListOpts struct {
	Action  Action
	Outcome Outcome
	Limit   int
	Offset  int
}
