package ports

import (
	"context"
	"log"
	"time"

	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

const reclaimGrace = 2 * time.Second

// PortOwner describes the process currently holding a port.
type PortOwner struct {
	PID      int32
	Name     string
	Username string
	Port     int
	Status   string
}

// Reclaim makes a best-effort attempt to free a port held by another
// process: every listener on the port is sent SIGTERM (SIGKILL when force is
// set), then after a fixed grace period the port is probed again. It never
// returns an error; false simply means the port is still taken.
func (a *Allocator) Reclaim(ctx context.Context, port int, host string, force bool) bool {
	owners := listenersOn(port)
	if len(owners) == 0 {
		return a.IsAvailable(port, host)
	}

	log.Printf("[ports] found %d process(es) on port %d", len(owners), port)
	for _, owner := range owners {
		proc, err := process.NewProcess(owner.PID)
		if err != nil {
			continue
		}
		if force {
			if err := proc.Kill(); err != nil {
				log.Printf("[ports] failed to kill pid %d: %v", owner.PID, err)
			} else {
				log.Printf("[ports] killed pid %d (%s)", owner.PID, owner.Name)
			}
		} else {
			if err := proc.Terminate(); err != nil {
				log.Printf("[ports] failed to terminate pid %d: %v", owner.PID, err)
			} else {
				log.Printf("[ports] sent SIGTERM to pid %d (%s)", owner.PID, owner.Name)
			}
		}
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(reclaimGrace):
	}

	return a.IsAvailable(port, host)
}

// WaitForRelease polls until the port becomes available or the timeout
// elapses.
func (a *Allocator) WaitForRelease(ctx context.Context, port int, host string, timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if a.IsAvailable(port, host) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	log.Printf("[ports] timeout waiting for port %d to become available", port)
	return false
}

// PortInfo returns metadata about the first process listening on the port,
// or nil when nothing is.
func PortInfo(port int) *PortOwner {
	owners := listenersOn(port)
	if len(owners) == 0 {
		return nil
	}
	owner := owners[0]
	if proc, err := process.NewProcess(owner.PID); err == nil {
		if name, err := proc.Name(); err == nil {
			owner.Name = name
		}
		if user, err := proc.Username(); err == nil {
			owner.Username = user
		}
	}
	return &owner
}

// listenersOn enumerates TCP sockets in LISTEN state bound to the port.
func listenersOn(port int) []PortOwner {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		log.Printf("[ports] connection scan failed: %v", err)
		return nil
	}

	var owners []PortOwner
	for _, conn := range conns {
		if conn.Status != "LISTEN" || int(conn.Laddr.Port) != port || conn.Pid == 0 {
			continue
		}
		owner := PortOwner{PID: conn.Pid, Port: port, Status: conn.Status}
		if proc, err := process.NewProcess(conn.Pid); err == nil {
			if name, err := proc.Name(); err == nil {
				owner.Name = name
			}
		}
		owners = append(owners, owner)
	}
	return owners
}
