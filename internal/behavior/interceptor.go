package behavior

// Interceptor rewrites a behavior before it runs. Intercept may replace
// b.Run and returns the input the behavior is started with. Interceptors
// are keyed by the behavior ID they apply to.
type Interceptor struct {
	ID        ID
	Intercept func(b *Behavior, input any) any
}

// Substitute returns an interceptor that swaps the body of behavior id
// for run, leaving the input unchanged.
func Substitute(id ID, run Func) Interceptor {
	return Interceptor{
		ID: id,
		Intercept: func(b *Behavior, input any) any {
			b.Run = run
			return input
		},
	}
}
