//go:build linux

package power

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coreos/go-systemd/v22/login1"
	"github.com/godbus/dbus/v5"

	logx "lockwatch/pkg/logx"
)

const (
	login1Path          = dbus.ObjectPath("/org/freedesktop/login1")
	managerInterface    = "org.freedesktop.login1.Manager"
	sessionInterface    = "org.freedesktop.login1.Session"
	screensaverIface    = "org.freedesktop.ScreenSaver"
	prepareForSleepName = managerInterface + ".PrepareForSleep"
	sessionLockName     = sessionInterface + ".Lock"
	sessionUnlockName   = sessionInterface + ".Unlock"
	activeChangedName   = screensaverIface + ".ActiveChanged"
)

// LogindSource delivers power/lock events from systemd-logind and the
// desktop screensaver service.
//
// Signal mapping:
//   - login1.Manager PrepareForSleep(true/false) -> system-will-sleep / system-did-wake
//   - login1.Session Lock / Unlock (own session)  -> screen-locked / screen-unlocked
//   - org.freedesktop.ScreenSaver ActiveChanged   -> screen-slept / screen-woke
//
// The session bus is optional: when unavailable (headless hosts), screensaver
// events are simply absent and the source still reports lock and sleep.
type LogindSource struct {
	log logx.Logger

	mu      sync.Mutex
	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	sysConn *dbus.Conn
	sesConn *dbus.Conn
}

func NewLogindSource(log logx.Logger) *LogindSource {
	return &LogindSource{
		log:    log,
		events: make(chan Event, 16),
	}
}

func (s *LogindSource) Events() <-chan Event { return s.events }

func (s *LogindSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	sysConn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}

	sessionPath, err := ownSessionPath()
	if err != nil {
		s.log.Warn("logind session lookup failed; lock/unlock events unavailable", logx.Err(err))
	}

	// PrepareForSleep from the logind manager object.
	if err := sysConn.AddMatchSignal(
		dbus.WithMatchInterface(managerInterface),
		dbus.WithMatchMember("PrepareForSleep"),
		dbus.WithMatchObjectPath(login1Path),
	); err != nil {
		_ = sysConn.Close()
		return fmt.Errorf("match PrepareForSleep: %w", err)
	}

	// Lock/Unlock from our own session object.
	if sessionPath != "" {
		for _, member := range []string{"Lock", "Unlock"} {
			if err := sysConn.AddMatchSignal(
				dbus.WithMatchInterface(sessionInterface),
				dbus.WithMatchMember(member),
				dbus.WithMatchObjectPath(sessionPath),
			); err != nil {
				_ = sysConn.Close()
				return fmt.Errorf("match session %s: %w", member, err)
			}
		}
	}

	// Screensaver state from the session bus, best-effort.
	sesConn, err := dbus.ConnectSessionBus()
	if err != nil {
		s.log.Debug("session bus unavailable; screensaver events disabled", logx.Err(err))
		sesConn = nil
	} else if err := sesConn.AddMatchSignal(
		dbus.WithMatchInterface(screensaverIface),
		dbus.WithMatchMember("ActiveChanged"),
	); err != nil {
		s.log.Debug("screensaver match failed; screensaver events disabled", logx.Err(err))
		_ = sesConn.Close()
		sesConn = nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.sysConn = sysConn
	s.sesConn = sesConn

	sigCh := make(chan *dbus.Signal, 32)
	sysConn.Signal(sigCh)
	if sesConn != nil {
		sesConn.Signal(sigCh)
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if sig == nil {
					continue
				}
				ev, ok := MapSignal(sig.Name, sig.Body)
				if !ok {
					continue
				}
				s.log.Debug("power event", logx.String("event", ev.String()), logx.String("signal", sig.Name))
				select {
				case s.events <- ev:
				default:
					s.log.Warn("power event dropped (consumer slow)", logx.String("event", ev.String()))
				}
			}
		}
	}()

	s.log.Info("power monitoring started", logx.Bool("session_signals", sessionPath != ""), logx.Bool("screensaver_signals", sesConn != nil))
	return nil
}

func (s *LogindSource) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	sysConn := s.sysConn
	sesConn := s.sesConn
	s.cancel = nil
	s.done = nil
	s.sysConn = nil
	s.sesConn = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if sysConn != nil {
		_ = sysConn.Close()
	}
	if sesConn != nil {
		_ = sesConn.Close()
	}
	<-done
}

// MapSignal translates a D-Bus signal into a power Event.
// Unrecognized signals return ok=false.
func MapSignal(name string, body []any) (Event, bool) {
	switch name {
	case prepareForSleepName:
		entering, ok := firstBool(body)
		if !ok {
			return 0, false
		}
		if entering {
			return EventSystemWillSleep, true
		}
		return EventSystemDidWake, true
	case sessionLockName:
		return EventScreenLocked, true
	case sessionUnlockName:
		return EventScreenUnlocked, true
	case activeChangedName:
		active, ok := firstBool(body)
		if !ok {
			return 0, false
		}
		if active {
			return EventScreenSlept, true
		}
		return EventScreenWoke, true
	default:
		return 0, false
	}
}

func firstBool(body []any) (bool, bool) {
	if len(body) == 0 {
		return false, false
	}
	b, ok := body[0].(bool)
	return b, ok
}

// ownSessionPath resolves the logind session object for the current user.
func ownSessionPath() (dbus.ObjectPath, error) {
	conn, err := login1.New()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	sessions, err := conn.ListSessions()
	if err != nil {
		return "", err
	}
	uid := uint32(os.Getuid())
	for _, sess := range sessions {
		if sess.UID == uid {
			return sess.Path, nil
		}
	}
	return "", errors.New("no logind session for current user")
}
