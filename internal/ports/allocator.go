// Package ports finds and reserves non-conflicting TCP port pairs for the
// viewer's static and websocket endpoints, and can attempt to reclaim ports
// held by stuck processes.
package ports

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// ErrExhausted is returned when no free port exists within the bounded
// search window around the preferred port.
var ErrExhausted = errors.New("no available ports")

const (
	probeTimeout = 200 * time.Millisecond
	searchWindow = 100
)

// Allocator tracks which ports this process has handed out so that rapid
// successive allocations never return the same port twice.
type Allocator struct {
	mu        sync.Mutex
	reserved  map[int]bool
	allocated map[int]bool

	// Candidate lists tried before falling back to a window scan.
	HTTPCandidates []int
	WSCandidates   []int
}

// NewAllocator returns an allocator with the stock reserved set (ports
// commonly taken by local development servers).
func NewAllocator() *Allocator {
	return &Allocator{
		reserved: map[int]bool{
			3000: true, // node dev servers
			5000: true, // flask
			8000: true, // django
			8888: true, // jupyter
			9000: true,
		},
		allocated:      make(map[int]bool),
		HTTPCandidates: []int{8080, 8090, 8100, 8110, 8120},
		WSCandidates:   []int{8081, 8091, 8101, 8111, 8121},
	}
}

// IsAvailable reports whether a port can actually be bound on host. A port
// counts as available only when a connect probe fails on IPv4, the same
// probe fails on IPv6 (when the stack has IPv6 at all), and an exclusive
// bind succeeds. Connect probes alone miss sockets in a transitional close
// state; a bind test alone misses listeners bound to other interfaces.
func (a *Allocator) IsAvailable(port int, host string) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.DialTimeout("tcp4", addr, probeTimeout)
	if err == nil {
		conn.Close()
		return false
	}

	conn6, err := net.DialTimeout("tcp6", addr, probeTimeout)
	if err == nil {
		// Something answered over IPv6; the port is taken. Dial errors are
		// expected on IPv4-only stacks and mean nothing here.
		conn6.Close()
		return false
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// FindAvailable returns a usable port, preferring preferred, then the
// candidate list, then a ±100 window around preferred (never dipping into
// the system range below 1025). The returned port is recorded as allocated.
func (a *Allocator) FindAvailable(preferred int, candidates []int, host string) (int, error) {
	a.mu.Lock()
	taken := a.allocated[preferred]
	a.mu.Unlock()

	if !taken && a.IsAvailable(preferred, host) {
		a.markAllocated(preferred)
		return preferred, nil
	}

	log.Printf("[ports] preferred port %d is in use, searching for alternative", preferred)

	for _, port := range candidates {
		if port == preferred || !a.usable(port) {
			continue
		}
		if a.IsAvailable(port, host) {
			a.markAllocated(port)
			return port, nil
		}
	}

	// Window scan: above the preferred port first, then below.
	for port := preferred + 1; port <= preferred+searchWindow; port++ {
		if port > 1024 && a.usable(port) && a.IsAvailable(port, host) {
			a.markAllocated(port)
			return port, nil
		}
	}
	for port := preferred - searchWindow; port < preferred; port++ {
		if port > 1024 && a.usable(port) && a.IsAvailable(port, host) {
			a.markAllocated(port)
			return port, nil
		}
	}

	return 0, fmt.Errorf("%w near %d", ErrExhausted, preferred)
}

// AllocatePair reserves one port for the static HTTP endpoint and a distinct
// one for the websocket endpoint.
func (a *Allocator) AllocatePair(prefHTTP, prefWS int, host string) (httpPort, wsPort int, err error) {
	httpPort, err = a.FindAvailable(prefHTTP, a.HTTPCandidates, host)
	if err != nil {
		return 0, 0, fmt.Errorf("http port: %w", err)
	}

	if prefWS == httpPort {
		prefWS++
	}
	wsCandidates := make([]int, 0, len(a.WSCandidates))
	for _, p := range a.WSCandidates {
		if p != httpPort {
			wsCandidates = append(wsCandidates, p)
		}
	}

	wsPort, err = a.FindAvailable(prefWS, wsCandidates, host)
	if err != nil {
		a.Release(httpPort)
		return 0, 0, fmt.Errorf("ws port: %w", err)
	}

	log.Printf("[ports] allocated pair: http=%d ws=%d", httpPort, wsPort)
	return httpPort, wsPort, nil
}

// Release removes a port from the allocated set. Releasing a port that was
// never allocated is a no-op; nothing happens at the OS level.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, port)
}

// ReleasePair releases both ports of a pair.
func (a *Allocator) ReleasePair(httpPort, wsPort int) {
	a.Release(httpPort)
	a.Release(wsPort)
	log.Printf("[ports] released pair: http=%d ws=%d", httpPort, wsPort)
}

// Allocated reports whether the allocator currently holds the port.
func (a *Allocator) Allocated(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated[port]
}

func (a *Allocator) usable(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.reserved[port] && !a.allocated[port]
}

func (a *Allocator) markAllocated(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocated[port] = true
}
