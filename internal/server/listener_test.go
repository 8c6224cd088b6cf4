package server

import (
	"testing"
)

func TestGetListener_TCP(t *testing.T) {
	ln, err := GetListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	if ln.Addr().Network() != "tcp" {
		t.Fatalf("network=%s", ln.Addr().Network())
	}
}

func TestGetListener_ActivationWithoutFDs(t *testing.T) {
	t.Setenv("SOCKET_ACTIVATION", "1")
	t.Setenv("LISTEN_FDS", "")
	if ln, err := GetListener("127.0.0.1:0"); err == nil {
		ln.Close()
		t.Fatalf("expected error without LISTEN_FDS")
	}
}
