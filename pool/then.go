package pool

import (
	"context"
)

// Then schedules fn to run on the pool once f resolves, producing a new
// Future. The continuation receives the completed Outcome of f, including its
// terminal state, and decides for itself how to react to failure
// or cancellation of its input.
//
// Registering before or after f resolves behaves identically. If the pool
// refuses the continuation (shutdown, full queue), the derived future
// resolves as cancelled rather than staying pending.
//
// Example:
//
//	parsed := pool.Then(p, fetched, func(ctx context.Context, out pool.Outcome[[]byte]) (Doc, error) {
//	    if out.Err != nil {
//	        return Doc{}, out.Err
//	    }
//	    return parse(out.Value)
//	})
func Then[R, U any](p *Pool, f *Future[R], fn func(ctx context.Context, out Outcome[R]) (U, error), opts ...SubmitOption) *Future[U] {
	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}
	token := so.token
	if token == nil {
		token = NewToken()
	}

	st := newResultState[U](p)
	derived := &Future[U]{s: st, token: token}

	if fn == nil {
		(promise[U]{s: st}).cancel()
		return derived
	}

	f.OnComplete(func(out Outcome[R]) {
		err := scheduleTask(p, st, token, so.priority, func(ctx context.Context) (U, error) {
			return fn(ctx, out)
		})
		if err != nil {
			(promise[U]{s: st}).cancel()
		}
	})
	return derived
}
