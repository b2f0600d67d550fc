package queue

import (
	"net"
	"testing"
	"time"
)

func TestProbeBrokerReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if err := ProbeBroker(ln.Addr().String(), time.Second); err != nil {
		t.Errorf("ProbeBroker() error = %v, want nil", err)
	}
}

func TestProbeBrokerUnreachable(t *testing.T) {
	// Grab a free port and close it again so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	start := time.Now()
	if err := ProbeBroker(addr, time.Second); err == nil {
		t.Fatal("ProbeBroker() error = nil, want connection error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %v, want bounded by timeout", elapsed)
	}
}
