package systemd

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listener names expected in the voicetally.socket unit via FileDescriptorName=.
const (
	HTTPListenerName    = "http"
	MetricsListenerName = "metrics"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	HTTP      net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns nil listeners if not running under socket activation.
func GetListeners() (*Listeners, error) {
	// Named listeners require systemd 227+; outside socket activation the
	// map is empty
	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	return fromNamed(named), nil
}

func fromNamed(named map[string][]net.Listener) *Listeners {
	listeners := &Listeners{}
	if lns, ok := named[HTTPListenerName]; ok && len(lns) > 0 {
		listeners.HTTP = lns[0]
		listeners.Activated = true
	}
	if lns, ok := named[MetricsListenerName]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
		listeners.Activated = true
	}
	return listeners
}

// NotifyReady sends READY=1 notification to systemd.
// Outside systemd this is a no-op.
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}
