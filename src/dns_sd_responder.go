package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Built-in mDNS responder backend.
 *
 * Description:	Uses the pure-Go github.com/brutella/dnssd package for
 *		cross-platform mDNS/DNS-SD service announcement without
 *		requiring any system daemon or C library dependencies.
 *
 *		One responder is shared by all registrations.  Its
 *		Respond loop runs until the connection is closed; if it
 *		fails on its own, that surfaces as a fatal dispatch
 *		event and the session winds down.
 */

import (
	"context"
	"errors"

	"github.com/brutella/dnssd"
)

type responder_conn struct {
	rp     dnssd.Responder
	cancel context.CancelFunc
	post   func(dns_sd_event)
}

func responder_connect(post func(dns_sd_event)) (register_conn, error) {
	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		return nil, rpErr
	}

	var ctx, cancel = context.WithCancel(context.Background())

	var c = &responder_conn{
		rp:     rp,
		cancel: cancel,
		post:   post,
	}

	go func() {
		var respondErr = rp.Respond(ctx)
		if respondErr != nil && !errors.Is(respondErr, context.Canceled) {
			post(dispatch_error_event{err: respondErr})
		}
	}()

	return c, nil
}

func (c *responder_conn) register(slot int, name string, stype string, port int) (register_handle, error) {
	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: stype,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		return nil, svErr
	}

	var handle, addErr = c.rp.Add(sv)
	if addErr != nil {
		return nil, addErr
	}

	/* The responder probes and, on conflict, renames on our behalf;
	 * report the registration with whatever name it settled on. */
	var accepted = handle.Service().Name
	if accepted == "" {
		accepted = name
	}

	c.post(registration_event{slot: slot, name: accepted, stype: stype, err: nil})

	return &responder_handle{rp: c.rp, handle: handle}, nil
}

func (c *responder_conn) close() {
	c.cancel()
}

type responder_handle struct {
	rp     dnssd.Responder
	handle dnssd.ServiceHandle
}

func (h *responder_handle) deregister() {
	h.rp.Remove(h.handle)
}
