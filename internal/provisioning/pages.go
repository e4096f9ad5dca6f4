package provisioning

import (
	"context"
	"iter"
)

// PageFunc fetches the page that starts at token. The first call gets an
// empty token; returning an empty next token ends the walk.
type PageFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// Pages walks a paginated listing with an explicit cursor loop. Each range
// over the returned sequence starts again from the first page. A fetch
// error is yielded once and ends the sequence.
func Pages[T any](ctx context.Context, fetch PageFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		token := ""
		for {
			items, next, err := fetch(ctx, token)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			token = next
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// ListInstances walks every stack instance of a StackSet, optionally
// restricted to one account.
func ListInstances(ctx context.Context, b Backend, stackSet, account string) iter.Seq2[Instance, error] {
	return Pages(ctx, func(ctx context.Context, token string) ([]Instance, string, error) {
		return b.ListStackInstances(ctx, stackSet, account, token)
	})
}

// ListOperations walks every operation recorded for a StackSet.
func ListOperations(ctx context.Context, b Backend, stackSet string) iter.Seq2[Operation, error] {
	return Pages(ctx, func(ctx context.Context, token string) ([]Operation, string, error) {
		return b.ListStackSetOperations(ctx, stackSet, token)
	})
}
