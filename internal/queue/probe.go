package queue

import (
	"fmt"
	"net"
	"time"
)

// ProbeBroker checks that a TCP listener answers at addr within timeout.
// It is a reachability check only; no protocol handshake is attempted.
func ProbeBroker(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("probe broker %s: %w", addr, err)
	}
	conn.Close()
	return nil
}
