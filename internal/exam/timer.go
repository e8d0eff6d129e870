package exam

import (
	"fmt"
	"sync"
	"time"
)

// TickerFunc starts a repeating tick every d and returns its channel and a
// stop function. Tests swap in a manually driven channel.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// SystemTicker is the wall-clock TickerFunc.
func SystemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// countdown is the cancellable one-second task bound to a session.
type countdown struct {
	done chan struct{}
	once sync.Once
	stop func()
}

func newCountdown(start TickerFunc, onTick func() (expired bool), onExpire func()) *countdown {
	ticks, stop := start(time.Second)
	cd := &countdown{done: make(chan struct{}), stop: stop}

	go func() {
		for {
			select {
			case <-cd.done:
				return
			case <-ticks:
				if onTick() {
					onExpire()
					return
				}
			}
		}
	}()

	return cd
}

// Cancel releases the ticker. Safe to call more than once.
func (cd *countdown) Cancel() {
	cd.once.Do(func() {
		cd.stop()
		close(cd.done)
	})
}

// FormatClock renders seconds as m:ss, the way the exam header shows it.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
