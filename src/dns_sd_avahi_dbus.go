package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Avahi daemon access over D-Bus.
 *
 * Description:	Implements the avahi_conn / avahi_group contract against
 *		a live avahi-daemon on the system bus, so no C library is
 *		needed.  Requires avahi-daemon 0.6.x or later (stable
 *		D-Bus API).
 *
 *		StateChanged signals from the server and from our entry
 *		group are translated into typed events and handed to the
 *		session's queue; everything else is plain method calls.
 */

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	avahi_dbus_service      = "org.freedesktop.Avahi"
	avahi_server_path       = dbus.ObjectPath("/")
	avahi_server_iface      = "org.freedesktop.Avahi.Server"
	avahi_entry_group_iface = "org.freedesktop.Avahi.EntryGroup"

	avahi_dbus_err_collision = "org.freedesktop.Avahi.CollisionError"

	avahi_if_unspec = int32(-1) // all interfaces

	/* Announce with AVAHI_PROTO_INET instead of AVAHI_PROTO_UNSPEC,
	 * since the TNC currently only listens on IPv4. */
	avahi_proto_inet = int32(0)
)

type avahi_dbus_conn struct {
	conn    *dbus.Conn
	server  dbus.BusObject
	signals chan *dbus.Signal
	post    func(dns_sd_event)

	mu         sync.Mutex
	group_path dbus.ObjectPath
}

func avahi_dbus_connect(post func(dns_sd_event)) (avahi_conn, error) {
	// A private connection, so closing it on teardown can't disturb
	// anything else in the process using the shared system bus.
	var conn, connErr = dbus.SystemBusPrivate()
	if connErr != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", connErr)
	}

	if authErr := conn.Auth(nil); authErr != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to authenticate to system bus: %w", authErr)
	}

	if helloErr := conn.Hello(); helloErr != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to greet system bus: %w", helloErr)
	}

	var server = conn.Object(avahi_dbus_service, avahi_server_path)

	// Verify avahi-daemon is available by asking for its host name.
	var hostname string
	if callErr := server.Call(avahi_server_iface+".GetHostName", 0).Store(&hostname); callErr != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("avahi-daemon not reachable (is it running?): %w", callErr)
	}

	for _, iface := range []string{avahi_server_iface, avahi_entry_group_iface} {
		var matchErr = conn.AddMatchSignal(
			dbus.WithMatchInterface(iface),
			dbus.WithMatchMember("StateChanged"),
		)
		if matchErr != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to subscribe to %s state changes: %w", iface, matchErr)
		}
	}

	var c = &avahi_dbus_conn{
		conn:    conn,
		server:  server,
		signals: make(chan *dbus.Signal, 16),
		post:    post,
	}

	conn.Signal(c.signals)
	go c.forward_signals()

	return c, nil
}

/* Translate raw D-Bus signals into the session's typed events.  Runs
 * until close() shuts the bus connection, which closes the signal
 * channel under us.
 */
func (c *avahi_dbus_conn) forward_signals() {
	for sig := range c.signals {
		var state, errstr, ok = decode_state_changed(sig)
		if !ok {
			continue
		}

		switch sig.Name {
		case avahi_server_iface + ".StateChanged":
			c.post(client_state_event{state: state, errstr: errstr})
		case avahi_entry_group_iface + ".StateChanged":
			// Only our own group is interesting.
			if sig.Path == c.current_group_path() {
				c.post(group_state_event{state: state, errstr: errstr})
			}
		}
	}
}

// StateChanged carries (state int32, error string) for both the server
// and entry groups.
func decode_state_changed(sig *dbus.Signal) (int32, string, bool) {
	if len(sig.Body) < 2 {
		return 0, "", false
	}

	var state, stateOk = sig.Body[0].(int32)
	var errstr, errstrOk = sig.Body[1].(string)

	return state, errstr, stateOk && errstrOk
}

func (c *avahi_dbus_conn) current_group_path() dbus.ObjectPath {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.group_path
}

func (c *avahi_dbus_conn) state() (int32, error) {
	var state int32
	if callErr := c.server.Call(avahi_server_iface+".GetState", 0).Store(&state); callErr != nil {
		return AVAHI_SERVER_INVALID, callErr
	}

	return state, nil
}

func (c *avahi_dbus_conn) new_group() (avahi_group, error) {
	var path dbus.ObjectPath
	if callErr := c.server.Call(avahi_server_iface+".EntryGroupNew", 0).Store(&path); callErr != nil {
		return nil, callErr
	}

	c.mu.Lock()
	c.group_path = path
	c.mu.Unlock()

	return &avahi_dbus_group{obj: c.conn.Object(avahi_dbus_service, path)}, nil
}

func (c *avahi_dbus_conn) close() {
	// Closing the bus connection also closes the signal channel, which
	// ends forward_signals().
	_ = c.conn.Close()
}

type avahi_dbus_group struct {
	obj dbus.BusObject
}

func (g *avahi_dbus_group) add_service(name string, stype string, port int) error {
	/* AddService signature: iiussssqaay
	 *   interface, protocol, flags, name, type, domain, host, port, txt
	 * Empty domain and host mean the daemon's defaults. */
	var callErr = g.obj.Call(avahi_entry_group_iface+".AddService", 0,
		avahi_if_unspec,
		avahi_proto_inet,
		uint32(0),
		name,
		stype,
		"",
		"",
		uint16(port),
		[][]byte{},
	).Err

	if callErr == nil {
		return nil
	}

	var dbusErr dbus.Error
	if errors.As(callErr, &dbusErr) && dbusErr.Name == avahi_dbus_err_collision {
		return err_dns_sd_collision
	}

	return callErr
}

func (g *avahi_dbus_group) commit() error {
	return g.obj.Call(avahi_entry_group_iface+".Commit", 0).Err
}

func (g *avahi_dbus_group) reset() error {
	return g.obj.Call(avahi_entry_group_iface+".Reset", 0).Err
}

func (g *avahi_dbus_group) is_empty() bool {
	var empty bool
	if callErr := g.obj.Call(avahi_entry_group_iface+".IsEmpty", 0).Store(&empty); callErr != nil {
		// If the daemon can't even answer this, let the add path
		// surface the real error.
		return true
	}

	return empty
}

func (g *avahi_dbus_group) free() {
	// Freeing the group also unpublishes its services.
	_ = g.obj.Call(avahi_entry_group_iface+".Free", 0).Err
}
