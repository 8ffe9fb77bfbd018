package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the AGWPE and KISS over TCP services with
 *		per-service registrations
 *
 * Description:
 *
 *     Unlike the Avahi entry group, this backend registers each service
 *     independently, with its own handle and its own completion event.
 *     That matches daemons in the style of the MacOS dns-sd API, and the
 *     built-in responder in dns_sd_responder.go.
 *
 *     Name conflicts are resolved on the daemon side; the completion
 *     event tells us the name that was actually accepted.  Per-service
 *     failures after submission are reported but not retried here -
 *     that would be a decision for whoever manages this subsystem.
 */

/* The slice of a per-service registration daemon this backend needs.
 * The real implementation lives in dns_sd_responder.go; tests
 * substitute fakes.  Registration outcomes and transport failures
 * arrive on the session's event queue.
 */
type register_conn interface {
	// Issue one registration.  The slot index comes back in the
	// registration_event so results can be matched up.
	register(slot int, name string, stype string, port int) (register_handle, error)

	close()
}

type register_handle interface {
	deregister()
}

type register_backend struct {
	ctx     []dns_sd_service_t
	conn    register_conn
	handles [MAX_DNS_SD_SERVICES]register_handle
}

func responder_backend_connect(s *dns_sd_session) (dns_sd_backend, error) {
	var conn, connectErr = responder_connect(s.post)
	if connectErr != nil {
		return nil, connectErr
	}

	return new_register_backend(s.ctx, conn), nil
}

func new_register_backend(ctx []dns_sd_service_t, conn register_conn) *register_backend {
	return &register_backend{ctx: ctx, conn: conn}
}

/* A slot whose registration call fails outright is logged and simply not
 * tracked further; the others carry on.  Nothing here is fatal to the
 * session.
 */
func (b *register_backend) submit() error {
	for i := range b.ctx {
		if b.ctx[i].port == 0 {
			continue
		}

		var stype, type_name = dns_sd_slot_type(i)

		var handle, registerErr = b.conn.register(i, b.ctx[i].name, stype, b.ctx[i].port)
		if registerErr != nil {
			text_color_set(DW_COLOR_ERROR)
			dw_printf("DNS-SD: Failed to announce '%s': %v\n", b.ctx[i].name, registerErr)

			continue
		}

		b.handles[i] = handle

		text_color_set(DW_COLOR_INFO)
		dw_printf("DNS-SD: Announcing %s on port %d as '%s'\n", type_name, b.ctx[i].port, b.ctx[i].name)
	}

	return nil
}

func (b *register_backend) handle(ev dns_sd_event) bool {
	switch e := ev.(type) {
	case registration_event:
		b.report_registration(e)
	case dispatch_error_event:
		text_color_set(DW_COLOR_ERROR)
		dw_printf("DNS-SD: Responder error: %v\n", e.err)

		return true
	}

	return false
}

/* Invoked each time a registration completes, successfully or not.  The
 * name may differ from the one we submitted, since a conflict is
 * resolved by the daemon and a new name created on our behalf.  Keep the
 * batch entry in step with what is actually on the network.
 */
func (b *register_backend) report_registration(e registration_event) {
	var type_name = dns_sd_type_display(e.stype)

	if e.err != nil {
		text_color_set(DW_COLOR_ERROR)
		dw_printf("DNS-SD: Failed to register %s service '%s': %v\n", type_name, e.name, e.err)

		return
	}

	if e.slot >= 0 && e.slot < len(b.ctx) {
		b.ctx[e.slot].name = e.name
	}

	text_color_set(DW_COLOR_INFO)
	dw_printf("DNS-SD: Successfully registered %s service '%s'\n", type_name, e.name)
}

func (b *register_backend) teardown() {
	for i := range b.handles {
		if b.handles[i] != nil {
			b.handles[i].deregister()
			b.handles[i] = nil
		}
	}

	if b.conn != nil {
		b.conn.close()
		b.conn = nil
	}
}
