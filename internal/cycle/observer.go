package cycle

//go:generate mockgen -source=observer.go -destination=mock_observer.go -package=cycle

// Observer is notified after every cycle, including disabled and failed
// ones. Observe runs on the cycle goroutine and must not block.
type Observer interface {
	Observe(res Result)
}

type ObserverFunc func(res Result)

func (f ObserverFunc) Observe(res Result) {
	f(res)
}
