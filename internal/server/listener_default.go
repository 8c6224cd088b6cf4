//go:build !linux && !darwin

// Package server provides network listener functionality
package server

import (
	"errors"
	"net"
	"os"
)

// GetListener listens on addr. Socket activation is not available on this
// platform.
func GetListener(addr string) (net.Listener, error) {
	if os.Getenv("SOCKET_ACTIVATION") == "1" {
		return nil, errors.New("socket activation is not supported on this platform")
	}
	return net.Listen("tcp", addr)
}
