package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rebbit/internal/debounce"
	"github.com/five82/rebbit/internal/state"
)

// bridge carries events from background goroutines (manager subscription,
// debounced search) into the Bubble Tea program.
type bridge struct {
	events    chan tea.Msg
	done      chan struct{}
	debouncer *debounce.Debouncer
	cancelSub func()
	closeOnce sync.Once
}

func newBridge(manager *state.Manager, debouncer *debounce.Debouncer) *bridge {
	b := &bridge{
		events:    make(chan tea.Msg, 16),
		done:      make(chan struct{}),
		debouncer: debouncer,
		cancelSub: func() {},
	}
	if manager != nil {
		b.cancelSub = manager.Subscribe(func(state.Snapshot) {
			// The tick re-reads the snapshot, so a dropped signal is harmless.
			b.offer(changedMsg{})
		})
	}
	return b
}

// offer delivers msg without blocking; it is dropped if the buffer is full
// or the bridge is closed.
func (b *bridge) offer(msg tea.Msg) {
	select {
	case <-b.done:
	case b.events <- msg:
	default:
	}
}

// send delivers msg, waiting for room unless the bridge closes first.
func (b *bridge) send(msg tea.Msg) {
	select {
	case <-b.done:
	case b.events <- msg:
	}
}

// wait returns a command that yields the next bridged event.
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// schedule runs a search for query once typing has paused.
func (b *bridge) schedule(query string) {
	b.debouncer.Trigger(func() { b.send(searchDueMsg{query: query}) })
}

// close tears the bridge down: the subscription is cancelled and any pending
// search is dropped.
func (b *bridge) close() {
	b.closeOnce.Do(func() {
		b.cancelSub()
		b.debouncer.Stop()
		close(b.done)
	})
}
