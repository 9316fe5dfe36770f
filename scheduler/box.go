package scheduler

// Box lifts a concrete BulkFunc[A, R] into the BulkFunc[any, any] shape
// every Context's Scheduler[any, any] actually stores, so one Scheduler
// instance can multiplex calls from every @batched operation registered
// against a Context regardless of that operation's own element types.
// Package batched calls this once per Batched/ClassBatched wrapper; it
// lives here (rather than in batched) because only this package can see
// inside OneResult's unexported fields.
func Box[A, R any](fn BulkFunc[A, R]) BulkFunc[any, any] {
	return func(args []any) ([]OneResult[any], error) {
		typed := make([]A, len(args))
		for i, a := range args {
			typed[i] = a.(A)
		}

		results, err := fn(typed)
		if err != nil {
			return nil, err
		}
		if results == nil {
			return nil, nil
		}

		out := make([]OneResult[any], len(results))
		for i, r := range results {
			if r.err != nil {
				out[i] = OneResult[any]{err: r.err}
			} else {
				out[i] = OneResult[any]{value: r.value}
			}
		}
		return out, nil
	}
}
