package cmd

import (
	"os"
	"time"

	"Bindr/cmd/ui"
	"Bindr/pkg/logger"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// monitorCancellation watches stdin for a double-ESC while a turn is
// running and invokes cancel when it sees one. It returns a stop function
// that restores the terminal; the stop function must be called before any
// further line input is read.
func monitorCancellation(cancel func()) (stop func()) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		logger.Warn("CLI","failed to enter raw mode for cancellation monitor", map[string]interface{}{
			"error": err.Error(),
		})
		return func() {}
	}
	ui.IsRawMode = true

	reader, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var lastEsc time.Time
		buf := make([]byte, 1)
		for {
			n, err := reader.Read(buf)
			if err != nil {
				return
			}
			if n == 0 || buf[0] != 0x1b {
				continue
			}
			now := time.Now()
			if !lastEsc.IsZero() && now.Sub(lastEsc) < 3*time.Second {
				ui.Println("\n⏹ Canceling...")
				cancel()
				return
			}
			lastEsc = now
			ui.Print("\n(press ESC again to cancel)")
		}
	}()

	return func() {
		reader.Cancel()
		<-done
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
	}
}
