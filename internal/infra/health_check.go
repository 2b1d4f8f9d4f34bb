package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const monitorInterval = 5 * time.Second

// MonitorExecutable fires once on the returned channel when the running
// binary's file changes on disk, letting a supervisor-managed deployment
// restart onto the new build. The channel closes when ctx is cancelled or
// after the first fire.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)

		exe, err := os.Executable()
		if err != nil {
			log.WithError(err).Warn("cant resolve executable path for monitor")
			return
		}
		stat, err := os.Stat(exe)
		if err != nil {
			log.WithError(err).Warn("cant stat executable for monitor")
			return
		}
		builtAt := stat.ModTime()

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(exe)
				if err != nil {
					log.WithError(err).Warn("cant stat executable for monitor tick")
					continue
				}
				if !builtAt.Equal(stat.ModTime()) {
					select {
					case ch <- struct{}{}:
					case <-ctx.Done():
					}
					return
				}
			}
		}
	}()
	return ch
}
