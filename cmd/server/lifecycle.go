package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/reqchain/internal/health"
	"github.com/keithlinneman/reqchain/internal/log"
	"github.com/keithlinneman/reqchain/internal/xerrors"
)

var errNoNotifySocket = errors.New("NOTIFY_SOCKET not set")

// notifySystemd sends READY=1 when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errNoNotifySocket
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "dial systemd notify socket")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "write systemd notify socket")
	}
	return nil
}

// drain fails readiness and waits out the period so the load balancer
// stops sending new requests before the listeners close. A second signal
// cuts the wait short.
func drain(L log.Logger, gate *health.Gate, period time.Duration) {
	ctx := context.Background()
	gate.Hold("draining")
	if period <= 0 {
		return
	}
	L.Info(ctx, "readiness failing, waiting for load balancer to drain", "period", period.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	timer := time.NewTimer(period)
	defer timer.Stop()
	select {
	case <-timer.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}
