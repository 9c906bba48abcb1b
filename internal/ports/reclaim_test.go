package ports

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestWaitForRelease_AlreadyFree(t *testing.T) {
	a := NewAllocator()
	port := freePort(t)

	if !a.WaitForRelease(context.Background(), port, testHost, time.Second, 10*time.Millisecond) {
		t.Fatal("WaitForRelease returned false for a free port")
	}
}

func TestWaitForRelease_FreedDuringWait(t *testing.T) {
	a := NewAllocator()
	ln, err := net.Listen("tcp", testHost+":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		time.Sleep(100 * time.Millisecond)
		ln.Close()
	}()

	if !a.WaitForRelease(context.Background(), port, testHost, 3*time.Second, 20*time.Millisecond) {
		t.Fatal("WaitForRelease never saw the port free up")
	}
}

func TestWaitForRelease_Timeout(t *testing.T) {
	a := NewAllocator()
	port := holdPort(t)

	if a.WaitForRelease(context.Background(), port, testHost, 300*time.Millisecond, 50*time.Millisecond) {
		t.Fatal("WaitForRelease reported a held port as released")
	}
}

func TestPortInfo_FreePort(t *testing.T) {
	if owner := PortInfo(freePort(t)); owner != nil {
		t.Fatalf("PortInfo on free port = %+v, want nil", owner)
	}
}
