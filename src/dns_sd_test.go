package malamute

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Records everything the session feeds it.  fatal marks event types that
// should end the session.
type fake_backend struct {
	mu sync.Mutex

	handled   []dns_sd_event
	fatal     func(ev dns_sd_event) bool
	tore_down bool
}

func (b *fake_backend) submit() error {
	return nil
}

func (b *fake_backend) handle(ev dns_sd_event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handled = append(b.handled, ev)

	return b.fatal != nil && b.fatal(ev)
}

func (b *fake_backend) teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tore_down = true
}

func (b *fake_backend) snapshot() ([]dns_sd_event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]dns_sd_event(nil), b.handled...), b.tore_down
}

func Test_dns_sd_announce_nothing_configured(t *testing.T) {
	t.Parallel()

	var connected = false
	var connect dns_sd_connect_func = func(s *dns_sd_session) (dns_sd_backend, error) {
		connected = true

		return &fake_backend{}, nil
	}

	var s = dns_sd_announce_backend(new(misc_config_s), connect)

	assert.Nil(t, s)
	assert.False(t, connected, "no daemon connection when there is nothing to announce")
}

func Test_dns_sd_session_nil_is_safe(t *testing.T) {
	t.Parallel()

	var s *dns_sd_session

	s.term()
	s.wait()
}

func Test_dns_sd_connect_failure_still_winds_down(t *testing.T) {
	t.Parallel()

	var connect dns_sd_connect_func = func(s *dns_sd_session) (dns_sd_backend, error) {
		return nil, errors.New("daemon unreachable")
	}

	var mc = new(misc_config_s)
	mc.agwpe_port = 8000

	var s = dns_sd_announce_backend(mc, connect)
	require.NotNil(t, s)

	// Already stopped; wait() must not block and term() must be harmless.
	s.wait()
	s.term()
	s.wait()

	assert.Nil(t, s.ctx)
	assert.Equal(t, DNS_SD_STOPPED, s.state.Load())
}

func Test_dns_sd_term_is_idempotent(t *testing.T) {
	t.Parallel()

	var backend = &fake_backend{}
	var connect dns_sd_connect_func = func(s *dns_sd_session) (dns_sd_backend, error) {
		return backend, nil
	}

	var mc = new(misc_config_s)
	mc.agwpe_port = 8000

	var s = dns_sd_announce_backend(mc, connect)
	require.NotNil(t, s)

	s.term()
	s.term()
	s.wait()
	s.wait()

	var _, tore_down = backend.snapshot()
	assert.True(t, tore_down)
	assert.Equal(t, DNS_SD_STOPPED, s.state.Load())
}

/* Registration results that were already queued when a fatal condition
 * ended the loop are still reported before teardown.  State changes, on
 * the other hand, are not acted on once the session is unwinding.
 */
func Test_dns_sd_fatal_drains_pending_registrations(t *testing.T) {
	t.Parallel()

	var backend = &fake_backend{
		fatal: func(ev dns_sd_event) bool {
			_, isDispatchError := ev.(dispatch_error_event)

			return isDispatchError
		},
	}

	var mc = new(misc_config_s)
	mc.agwpe_port = 8000

	var s = &dns_sd_session{
		ctx:     dns_sd_create_context(mc),
		backend: backend,
		events:  make(chan dns_sd_event, 32),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	// Queue everything before the worker starts, so the fatal event is
	// guaranteed to arrive with results still pending behind it.
	s.events <- dispatch_error_event{err: errors.New("socket died")}
	s.events <- registration_event{slot: 0, name: "A", stype: DNS_SD_TYPE_AGWPE, err: nil}
	s.events <- client_state_event{state: AVAHI_SERVER_RUNNING}
	s.events <- registration_event{slot: 1, name: "B", stype: DNS_SD_TYPE_KISS, err: nil}

	go s.event_loop()
	s.wait()

	var handled, tore_down = backend.snapshot()
	require.True(t, tore_down)

	var registrations = 0
	for _, ev := range handled {
		switch ev.(type) {
		case registration_event:
			registrations++
		case client_state_event:
			t.Error("state change acted on while unwinding")
		}
	}

	assert.Equal(t, 2, registrations)
	assert.Equal(t, DNS_SD_STOPPED, s.state.Load())
}

func Test_dns_sd_post_gives_up_after_stop(t *testing.T) {
	t.Parallel()

	var backend = &fake_backend{}
	var connect dns_sd_connect_func = func(s *dns_sd_session) (dns_sd_backend, error) {
		return backend, nil
	}

	var mc = new(misc_config_s)
	mc.agwpe_port = 8000

	var s = dns_sd_announce_backend(mc, connect)
	require.NotNil(t, s)

	s.term()
	s.wait()

	// The worker is gone, so these can never be delivered.  They must
	// not block either, even past the queue capacity.
	var finished = make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.post(client_state_event{state: AVAHI_SERVER_RUNNING})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("post blocked after termination")
	}
}
