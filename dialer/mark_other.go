//go:build !linux

package dialer

import (
	"syscall"
)

func markControlFunc(_ uint8) func(network, address string, conn syscall.RawConn) error {
	return func(_, _ string, _ syscall.RawConn) error {
		return ErrMarkUnsupported
	}
}
