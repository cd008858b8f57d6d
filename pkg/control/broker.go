// Package control carries operator commands to running experiments.
package control

import (
	"fmt"
	"sync"
)

type Command int

const (
	Stop Command = iota
)

func (c Command) String() string {
	switch c {
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Broker fans commands out to subscribers
type Broker struct {
	subscribers map[string]chan<- Command
	mu          sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]chan<- Command),
	}
}

// Publish hands cmd to every subscriber without blocking. A subscriber whose
// channel is full already has a command pending and is skipped.
func (b *Broker) Publish(cmd Command) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- cmd:
		default:
		}
	}
}

func (b *Broker) Subscribe(id string, ch chan<- Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; exists {
		return fmt.Errorf("%s is already subscribed", id)
	}
	b.subscribers[id] = ch
	return nil
}

func (b *Broker) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return fmt.Errorf("%s is not subscribed", id)
	}
	delete(b.subscribers, id)
	return nil
}
