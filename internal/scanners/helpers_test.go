package scanners

import (
	"bufio"
	"context"
	"net"
	"testing"
)

type stubResolver struct {
	name string
}

func (s stubResolver) LookupHostname(ctx context.Context, ip string) string {
	return s.name
}

// listen starts a loopback server and returns its port. handle runs for
// every accepted connection; nil closes it immediately.
func listen(t *testing.T, handle func(net.Conn)) uint32 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if handle != nil {
					handle(conn)
				}
			}()
		}
	}()

	return uint32(ln.Addr().(*net.TCPAddr).Port)
}

// closedPort returns a loopback port that refuses connections
func closedPort(t *testing.T) uint32 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := uint32(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()
	return port
}

func bannerFirst(banner string) func(net.Conn) {
	return func(conn net.Conn) {
		conn.Write([]byte(banner))
		bufio.NewReader(conn).ReadString('\n')
	}
}

func replyAfterRequest(reply string) func(net.Conn) {
	return func(conn net.Conn) {
		if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
			return
		}
		conn.Write([]byte(reply))
	}
}
