package main

import (
	"os"
	"syscall"
	"testing"

	"worldchat/internal/app"
)

func TestStopReason(t *testing.T) {
	cases := map[os.Signal]app.StopReason{
		os.Interrupt:    app.StopSIGINT,
		syscall.SIGTERM: app.StopSIGTERM,
		syscall.SIGHUP:  app.StopUnknown,
	}
	for sig, want := range cases {
		if got := stopReason(sig); got != want {
			t.Fatalf("stopReason(%v) = %q, want %q", sig, got, want)
		}
	}
}
