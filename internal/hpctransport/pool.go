// Package hpctransport maintains a bounded pool of persistent SSH client
// connections to a single HPC head node, opening a new session on one of
// them per exec, and runs the liveness loop that keeps them alive
// (spec.md §4.4).
package hpctransport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Dialer opens a new *ssh.Client. Production code points this at
// ssh.Dial; tests substitute a fake that never touches the network.
type Dialer func() (*ssh.Client, error)

// Pool holds up to MaxConnections lazily-established SSH clients, one per
// slot. Each exec picks a slot uniformly at random and reuses whatever
// client is parked there, redialing if the transport reports it dead.
type Pool struct {
	dial           Dialer
	maxConnections int

	mu      sync.Mutex
	clients []*ssh.Client
}

// NewPool builds a Pool that lazily dials through dial, never eagerly
// connecting more than one slot at a time.
func NewPool(maxConnections int, dial Dialer) *Pool {
	return &Pool{
		dial:           dial,
		maxConnections: maxConnections,
		clients:        make([]*ssh.Client, maxConnections),
	}
}

// Session returns a live *ssh.Session on a randomly chosen slot, dialing
// or redialing that slot's client as needed. The caller owns the returned
// session and must close it after the exec completes.
func (p *Pool) Session(ctx context.Context) (*ssh.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot := rand.Intn(p.maxConnections)

	client, err := p.clientForSlot(slot)
	if err != nil {
		return nil, fmt.Errorf("hpctransport: dialing slot %d: %w", slot, err)
	}

	sess, err := client.NewSession()
	if err != nil {
		// The transport reported the slot dead between liveness checks;
		// transparently redial once and retry.
		client, err = p.redialSlot(slot)
		if err != nil {
			return nil, fmt.Errorf("hpctransport: redialing slot %d: %w", slot, err)
		}
		sess, err = client.NewSession()
		if err != nil {
			return nil, fmt.Errorf("hpctransport: opening session on slot %d: %w", slot, err)
		}
	}
	return sess, nil
}

func (p *Pool) clientForSlot(slot int) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client := p.clients[slot]; client != nil && slotAlive(client) {
		return client, nil
	}
	return p.dialSlotLocked(slot)
}

func (p *Pool) redialSlot(slot int) (*ssh.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dialSlotLocked(slot)
}

func (p *Pool) dialSlotLocked(slot int) (*ssh.Client, error) {
	client, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.clients[slot] = client
	return client, nil
}

func slotAlive(client *ssh.Client) bool {
	_, _, err := client.SendRequest("keepalive@inference-gateway", true, nil)
	return err == nil
}

// Close tears down every established slot. Called once on shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, client := range p.clients {
		if client != nil {
			_ = client.Close()
			p.clients[i] = nil
		}
	}
}
