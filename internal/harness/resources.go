package harness

import (
	"context"
	"fmt"

	"github.com/roach88/cadence/internal/model"
	"github.com/roach88/cadence/internal/offline"
)

// resourceOps erases the entity type of an offline.Resource.
type resourceOps interface {
	decode(value map[string]any) (model.Entity, error)
	create(ctx context.Context, e model.Entity) (model.ID, bool, error)
	update(ctx context.Context, id model.ID, e model.Entity) (bool, error)
	delete(ctx context.Context, id model.ID) error
	list(ctx context.Context) (int, error)
}

type typedOps[T model.Entity] struct {
	r *offline.Resource[T]
}

func (o typedOps[T]) decode(value map[string]any) (model.Entity, error) {
	_, e, err := decodeValue(string(o.r.Kind()), value)
	return e, err
}

func (o typedOps[T]) create(ctx context.Context, e model.Entity) (model.ID, bool, error) {
	item, err := o.r.Create(ctx, e.(T))
	return item.ID, item.Synced, err
}

func (o typedOps[T]) update(ctx context.Context, id model.ID, e model.Entity) (bool, error) {
	item, err := o.r.Update(ctx, id, e.(T))
	return item.Synced, err
}

func (o typedOps[T]) delete(ctx context.Context, id model.ID) error {
	return o.r.Delete(ctx, id)
}

func (o typedOps[T]) list(ctx context.Context) (int, error) {
	items, err := o.r.List(ctx)
	return len(items), err
}

func (h *Harness) resource(storeName string) (resourceOps, error) {
	kind, err := model.ParseKind(storeName)
	if err != nil {
		return nil, err
	}
	switch kind {
	case model.KindGoals:
		return typedOps[model.Goal]{h.client.Goals}, nil
	case model.KindWins:
		return typedOps[model.Win]{h.client.Wins}, nil
	case model.KindFocusSessions:
		return typedOps[model.FocusSession]{h.client.FocusSessions}, nil
	case model.KindWeeklyData:
		return typedOps[model.WeeklyReview]{h.client.WeeklyReviews}, nil
	default:
		return nil, fmt.Errorf("store %q has no resource; use save_ritual for rituals", kind)
	}
}
