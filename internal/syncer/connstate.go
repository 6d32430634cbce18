package syncer

import (
	"sync"

	"k8s.io/klog"
)

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is the bank link's health as shown to the user. Reason
// and Recoverable are only meaningful for StatusError; Recoverable means a
// reconnect (re-link) fixes it.
type ConnectionState struct {
	Status      ConnectionStatus
	Reason      string
	Recoverable bool
}

// ConnectionStateManager owns the link state machine for one user. Only the
// orchestrator and explicit disconnects transition it.
type ConnectionStateManager struct {
	userID string

	mu    sync.Mutex
	state ConnectionState
}

func NewConnectionStateManager(userID string, linked bool) *ConnectionStateManager {
	status := StatusDisconnected
	if linked {
		status = StatusConnected
	}

	return &ConnectionStateManager{
		userID: userID,
		state:  ConnectionState{Status: status},
	}
}

func (m *ConnectionStateManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *ConnectionStateManager) SetConnected() {
	m.set(ConnectionState{Status: StatusConnected})
}

func (m *ConnectionStateManager) SetDisconnected() {
	m.set(ConnectionState{Status: StatusDisconnected})
}

func (m *ConnectionStateManager) SetError(reason string, recoverable bool) {
	m.set(ConnectionState{Status: StatusError, Reason: reason, Recoverable: recoverable})
}

func (m *ConnectionStateManager) set(next ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == next {
		return
	}

	klog.Infof("connection state for user %s: %s -> %s %s", m.userID, m.state.Status, next.Status, next.Reason)
	m.state = next
}
