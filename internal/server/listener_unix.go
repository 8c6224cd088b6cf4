//go:build linux || darwin

// Package server provides network listener functionality
package server

import (
	"errors"
	"net"
	"os"
	"strconv"
)

// sdListenFDsStart is the first file descriptor systemd passes.
const sdListenFDsStart = 3

// GetListener uses the systemd-passed socket when SOCKET_ACTIVATION=1,
// otherwise it listens on addr.
func GetListener(addr string) (net.Listener, error) {
	if os.Getenv("SOCKET_ACTIVATION") != "1" {
		return net.Listen("tcp", addr)
	}
	if os.Getenv("LISTEN_FDS") != "1" {
		return nil, errors.New("socket activation requested but LISTEN_FDS is not 1")
	}
	if pid, err := strconv.Atoi(os.Getenv("LISTEN_PID")); err != nil || pid != os.Getpid() {
		return nil, errors.New("socket activation requested but LISTEN_PID does not match")
	}
	f := os.NewFile(uintptr(sdListenFDsStart), "listener")
	if f == nil {
		return nil, errors.New("socket activation: invalid listener fd")
	}
	defer f.Close()
	return net.FileListener(f)
}
