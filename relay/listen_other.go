//go:build !unix

package relay

import "syscall"

func reuseAddrControl(network, address string, rc syscall.RawConn) error {
	return nil
}
