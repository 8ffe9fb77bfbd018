package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the AGWPE and KISS over TCP services using DNS-SD
 *
 * Description:
 *
 *     Most people have typed in enough IP addresses and ports by now, and
 *     would rather just select an available TNC that is automatically
 *     discovered on the local network.  Even more so on a mobile device
 *     such an Android or iOS phone or tablet.
 *
 *     This module owns the announcement session:  the batch of services,
 *     the backend talking to the discovery daemon, and the worker that
 *     pumps daemon events until termination is requested.  Two backends
 *     are available behind one interface:  the Avahi daemon reached over
 *     D-Bus (entry group semantics), and a built-in mDNS responder with
 *     per-service registrations.
 */

import (
	"errors"
	"sync"
	"sync/atomic"
)

// A name is already taken.  Recovered by renaming and retrying.
var err_dns_sd_collision = errors.New("service name collision")

// Worker states, for the benefit of anything watching a session wind down.
const (
	DNS_SD_IDLE int32 = iota
	DNS_SD_RUNNING
	DNS_SD_STOP_REQUESTED
	DNS_SD_FATAL_ERROR
	DNS_SD_TEARING_DOWN
	DNS_SD_STOPPED
)

/* Typed events posted by the daemon adapters onto the session's queue.
 * The worker goroutine is the only consumer, and the only code that
 * touches the batch or the backend handles once the loop is running.
 */
type dns_sd_event interface {
	dns_sd_event_impl()
}

// Avahi client (daemon connection) state change.
type client_state_event struct {
	state  int32
	errstr string
}

// Avahi entry group state change.
type group_state_event struct {
	state  int32
	errstr string
}

// Outcome of one per-service registration (variant B).  The accepted name
// can differ from what we asked for if the daemon resolved a conflict on
// our behalf.
type registration_event struct {
	slot  int
	name  string
	stype string
	err   error
}

// The event transport itself failed.  Always fatal.
type dispatch_error_event struct {
	err error
}

func (client_state_event) dns_sd_event_impl() {}
func (group_state_event) dns_sd_event_impl() {}
func (registration_event) dns_sd_event_impl() {}
func (dispatch_error_event) dns_sd_event_impl() {}

/* One backend per session.  submit() runs on the caller's goroutine before
 * the worker starts; handle() and teardown() run only on the worker.
 */
type dns_sd_backend interface {
	// Issue the initial registrations.  An error is fatal to the session.
	submit() error

	// Process one daemon event.  Returns true on a fatal condition.
	handle(ev dns_sd_event) bool

	// Release daemon handles first, then the connection.  The handles
	// keep references into the connection, so the order matters.
	teardown()
}

type dns_sd_connect_func func(s *dns_sd_session) (dns_sd_backend, error)

type dns_sd_session struct {
	ctx     []dns_sd_service_t
	backend dns_sd_backend

	events chan dns_sd_event
	stop   chan struct{}
	done   chan struct{}

	stop_once sync.Once
	state     atomic.Int32
}

/*------------------------------------------------------------------
 *
 * Function:	dns_sd_announce
 *
 * Purpose:	Announce all configured AGWPE and KISS TCP services via
 *		DNS Service Discovery.
 *
 * Inputs:	mc	- Misc config as read from the config file.
 *
 * Returns:	The announcement session, or nil if there was nothing to
 *		announce.  Failures during setup are reported on the
 *		console, not returned; the session still winds down
 *		through the usual teardown path.
 *
 * Description:	Builds the service batch, connects to a discovery daemon,
 *		submits the registrations, and starts a worker to pump
 *		daemon events until termination is requested with term().
 *
 *------------------------------------------------------------------*/

func dns_sd_announce(mc *misc_config_s) *dns_sd_session {
	return dns_sd_announce_backend(mc, dns_sd_connect_for(mc))
}

func dns_sd_announce_backend(mc *misc_config_s, connect dns_sd_connect_func) *dns_sd_session {
	// If there are no services to announce, we're done
	if dns_sd_service_count(mc) == 0 {
		return nil
	}

	var s = &dns_sd_session{
		ctx:    dns_sd_create_context(mc),
		events: make(chan dns_sd_event, 32),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	var backend, connectErr = connect(s)
	if connectErr != nil {
		text_color_set(DW_COLOR_ERROR)
		dw_printf("DNS-SD: Failed to connect to a discovery daemon: %v\n", connectErr)
		s.teardown()

		return s
	}

	s.backend = backend

	if submitErr := backend.submit(); submitErr != nil {
		text_color_set(DW_COLOR_ERROR)
		dw_printf("DNS-SD: %v\n", submitErr)
		// The worker notices the stop request straight away and tears
		// everything down; all fatal paths go through it.
		s.term()
	}

	go s.event_loop()

	return s
}

// Select the backend from configuration.  With no preference, try the
// system Avahi daemon and fall back to the built-in responder.
func dns_sd_connect_for(mc *misc_config_s) dns_sd_connect_func {
	switch mc.dns_sd_backend {
	case "avahi":
		return avahi_backend_connect
	case "builtin":
		return responder_backend_connect
	default:
		return func(s *dns_sd_session) (dns_sd_backend, error) {
			var backend, avahiErr = avahi_backend_connect(s)
			if avahiErr == nil {
				return backend, nil
			}

			text_color_set(DW_COLOR_INFO)
			dw_printf("DNS-SD: Avahi daemon not available (%v), using built-in responder.\n", avahiErr)

			return responder_backend_connect(s)
		}
	}
}

// Deliver a daemon event to the worker.  Once a stop has been requested
// the worker may never read again, so give up rather than block.
func (s *dns_sd_session) post(ev dns_sd_event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

/*------------------------------------------------------------------
 *
 * Function:	event_loop
 *
 * Purpose:	Worker goroutine to process events from the discovery
 *		daemon.
 *
 * Description:	Waits on the stop channel and the event queue.  A stop
 *		request ends the loop immediately.  A fatal event ends the
 *		loop too, but any results the daemon already queued are
 *		still reported before unwinding.  Either way the worker -
 *		never the requester - releases everything:  daemon handles,
 *		then the connection, then the batch.
 *
 *------------------------------------------------------------------*/

func (s *dns_sd_session) event_loop() {
	s.state.Store(DNS_SD_RUNNING)

	var running = true
	for running {
		select {
		case <-s.stop:
			s.state.Store(DNS_SD_STOP_REQUESTED)
			running = false
		case ev := <-s.events:
			if s.backend.handle(ev) {
				s.state.Store(DNS_SD_FATAL_ERROR)
				running = false
			}
		}
	}

	if s.state.Load() == DNS_SD_FATAL_ERROR {
		s.drain_events()
	}

	s.teardown()
}

// Report registration outcomes that were already queued when a fatal
// condition ended the loop.  State-change events are ignored at this
// point; there is no group or client left to act for.
func (s *dns_sd_session) drain_events() {
	for {
		select {
		case ev := <-s.events:
			if rev, ok := ev.(registration_event); ok {
				s.backend.handle(rev)
			}
		default:
			return
		}
	}
}

/* Release order matters:  daemon handles keep references into the
 * connection, and the daemon references the names until the backend has
 * withdrawn the registrations.  So:  handles, connection, names, batch.
 */
func (s *dns_sd_session) teardown() {
	s.state.Store(DNS_SD_TEARING_DOWN)

	if s.backend != nil {
		s.backend.teardown()
		s.backend = nil
	}

	if s.ctx != nil {
		for i := range s.ctx {
			s.ctx[i].name = ""
		}

		s.ctx = nil
	}

	s.state.Store(DNS_SD_STOPPED)
	close(s.done)
}

/*------------------------------------------------------------------
 *
 * Function:	term
 *
 * Purpose:	Gracefully shut down the event processing goroutine and
 *		remove all service registrations.
 *
 * Description:	Fire and forget:  closing the stop channel wakes the
 *		worker, which performs the actual cleanup on its own
 *		schedule.  Safe to call from any goroutine, repeatedly,
 *		and on a nil session (announce with nothing configured).
 *
 *------------------------------------------------------------------*/

func (s *dns_sd_session) term() {
	if s == nil {
		return
	}

	s.stop_once.Do(func() {
		close(s.stop)
	})
}

// Block until the worker has finished tearing down.  term() itself never
// waits; this is for the final exit path and for tests.
func (s *dns_sd_session) wait() {
	if s == nil {
		return
	}

	<-s.done
}
