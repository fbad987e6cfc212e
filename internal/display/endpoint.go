// Package display implements remote-display endpoints: network listeners
// bound to one running machine at a time. The display wire protocol itself is
// the machine's concern; the endpoint owns the port and the connection
// lifecycle.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/javanstorm/vfdriver/internal/dispatch"
	"github.com/javanstorm/vfdriver/pkg/hypervisor"
)

var (
	ErrPortInUse    = errors.New("display: port already in use")
	ErrAlreadyBound = errors.New("display: endpoint already bound")
	ErrNotBound     = errors.New("display: endpoint not bound to a machine")
)

// Endpoint serves one listening port for one bound machine. The port is
// claimed at creation and released by Stop. Bind, Start and Stop are ordered
// through the endpoint's serialization queue.
type Endpoint struct {
	port  uint32
	queue *dispatch.Queue

	mu      sync.Mutex
	ln      net.Listener
	machine hypervisor.Machine
	serving bool
	conns   map[net.Conn]struct{}
	accept  sync.WaitGroup
}

// NewEndpoint claims port and returns an unbound endpoint whose operations
// serialize on queue.
func NewEndpoint(port uint32, queue *dispatch.Queue) (*Endpoint, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", ErrPortInUse, port, err)
	}
	return &Endpoint{
		port:  port,
		queue: queue,
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Port returns the endpoint's listening port.
func (e *Endpoint) Port() uint32 {
	return e.port
}

// Bind associates the endpoint with exactly one machine handle.
func (e *Endpoint) Bind(m hypervisor.Machine) error {
	var err error
	e.queue.Sync(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.machine != nil {
			err = ErrAlreadyBound
			return
		}
		e.machine = m
	})
	return err
}

// Unbind detaches the endpoint from its machine. The endpoint must be
// stopped first.
func (e *Endpoint) Unbind() {
	e.queue.Sync(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.machine = nil
	})
}

// Start begins accepting display connections for the bound machine.
func (e *Endpoint) Start() error {
	var err error
	e.queue.Sync(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.machine == nil {
			err = ErrNotBound
			return
		}
		if e.serving {
			return
		}
		e.serving = true
		e.accept.Add(1)
		go e.acceptLoop()
	})
	return err
}

// Stop ceases serving: the listener closes, active connections drop, and the
// accept loop exits before Stop returns. Idempotent. Callers release the
// bound machine handle only after Stop completes.
func (e *Endpoint) Stop() {
	e.queue.Sync(func() {
		e.mu.Lock()
		if !e.serving && e.ln == nil {
			e.mu.Unlock()
			return
		}
		e.serving = false
		if e.ln != nil {
			e.ln.Close()
			e.ln = nil
		}
		for conn := range e.conns {
			conn.Close()
		}
		e.conns = make(map[net.Conn]struct{})
		e.mu.Unlock()

		e.accept.Wait()
	})
}

// Serving reports whether the endpoint is accepting connections.
func (e *Endpoint) Serving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serving
}

func (e *Endpoint) acceptLoop() {
	defer e.accept.Done()

	e.mu.Lock()
	ln := e.ln
	e.mu.Unlock()
	if ln == nil {
		return
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		e.mu.Lock()
		if !e.serving {
			e.mu.Unlock()
			conn.Close()
			return
		}
		e.conns[conn] = struct{}{}
		m := e.machine
		e.mu.Unlock()

		go e.handle(m, conn)
	}
}

// handle hands the connection to the machine's display attachment. Machines
// without one get the connection closed; the protocol is theirs to speak.
func (e *Endpoint) handle(m hypervisor.Machine, conn net.Conn) {
	defer func() {
		e.mu.Lock()
		delete(e.conns, conn)
		e.mu.Unlock()
		conn.Close()
	}()

	attacher, ok := m.(hypervisor.DisplayAttacher)
	if !ok {
		slog.Debug("Display connection dropped: machine has no display attachment.", "port", e.port)
		return
	}
	if err := attacher.AttachDisplay(conn); err != nil {
		slog.Debug("Display attachment ended.", "port", e.port, "err", err)
	}
}
