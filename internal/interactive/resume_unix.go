//go:build unix

package interactive

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyResume calls fn whenever the process is continued after a stop.
func notifyResume(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGCONT)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				fn()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
