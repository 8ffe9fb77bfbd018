package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the AGWPE and KISS over TCP services using
 *		DNS-SD via Avahi
 *
 * Description:
 *
 *     On Linux, the announcement can be made through Avahi, the mDNS
 *     framework commonly deployed on Linux systems.  All services go
 *     into one entry group with a single collective outcome.
 *
 *     This is largely based on the publishing example of the Avahi
 *     library, talking to the daemon over D-Bus instead of libavahi.
 */

import (
	"errors"
	"fmt"
)

const AVAHI_PRINT_PREFIX = "DNS-SD: Avahi: "

// Avahi server (client) states, as reported by the daemon.
const (
	AVAHI_SERVER_INVALID int32 = iota
	AVAHI_SERVER_REGISTERING
	AVAHI_SERVER_RUNNING
	AVAHI_SERVER_COLLISION
	AVAHI_SERVER_FAILURE
)

// Avahi entry group states.
const (
	AVAHI_ENTRY_GROUP_UNCOMMITED int32 = iota //nolint:misspell
	AVAHI_ENTRY_GROUP_REGISTERING
	AVAHI_ENTRY_GROUP_ESTABLISHED
	AVAHI_ENTRY_GROUP_COLLISION
	AVAHI_ENTRY_GROUP_FAILURE
)

/* The slice of the Avahi daemon this backend needs.  The real
 * implementation lives in dns_sd_avahi_dbus.go; tests substitute fakes.
 * State changes for both the connection and the group arrive on the
 * session's event queue, not through these interfaces.
 */
type avahi_conn interface {
	// Current server state (AVAHI_SERVER_*).
	state() (int32, error)

	new_group() (avahi_group, error)

	close()
}

type avahi_group interface {
	// Reports a name conflict as err_dns_sd_collision.
	add_service(name string, stype string, port int) error

	commit() error

	reset() error

	is_empty() bool

	free()
}

type avahi_backend struct {
	ctx   []dns_sd_service_t
	conn  avahi_conn
	group avahi_group
}

func avahi_backend_connect(s *dns_sd_session) (dns_sd_backend, error) {
	var conn, connectErr = avahi_dbus_connect(s.post)
	if connectErr != nil {
		return nil, connectErr
	}

	return new_avahi_backend(s.ctx, conn), nil
}

func new_avahi_backend(ctx []dns_sd_service_t, conn avahi_conn) *avahi_backend {
	return &avahi_backend{ctx: ctx, conn: conn}
}

/* Registration is gated on the daemon being in the "running" state:  only
 * then has it established its own host name on the network.  If it isn't
 * running yet, the state change notification will get us going later.
 */
func (b *avahi_backend) submit() error {
	var state, stateErr = b.conn.state()
	if stateErr != nil {
		return fmt.Errorf("failed to query daemon state: %w", stateErr)
	}

	if state == AVAHI_SERVER_RUNNING {
		return b.create_services()
	}

	return nil
}

/*------------------------------------------------------------------
 *
 * Function:	create_services
 *
 * Purpose:	Creates all of our services and causes them to be
 *		published.
 *
 * Description:	First, we create an entry group which will contain all of
 *		our services, or reset the one we already have.  Then we
 *		add each service to the group.  Finally, we commit the
 *		changes, which causes all of the services in the group to
 *		be published.  The daemon reports the group's fate
 *		asynchronously.
 *
 *		Collisions are handled within create_service(), so an
 *		error from it is something else, almost certainly fatal to
 *		registration as a whole.  The commit is never attempted in
 *		that case.
 *
 *------------------------------------------------------------------*/

func (b *avahi_backend) create_services() error {
	/* If this is the first time we're called, create a new entry group */
	if b.group == nil {
		var group, groupErr = b.conn.new_group()
		if groupErr != nil {
			return fmt.Errorf("failed to create entry group: %w", groupErr)
		}

		b.group = group
	} else {
		if resetErr := b.group.reset(); resetErr != nil {
			return fmt.Errorf("failed to reset entry group: %w", resetErr)
		}
	}

	/* If the group is empty (either because it was just created, or
	 * because it was reset previously), add our entries. */
	if !b.group.is_empty() {
		return nil
	}

	for i := range b.ctx {
		if b.ctx[i].port == 0 {
			continue
		}

		if addErr := b.create_service(i); addErr != nil {
			return addErr
		}
	}

	/* Publish all services in the group. */
	if commitErr := b.group.commit(); commitErr != nil {
		return fmt.Errorf("failed to commit entry group: %w", commitErr)
	}

	return nil
}

/*------------------------------------------------------------------
 *
 * Function:	create_service
 *
 * Purpose:	Creates one service and adds it to the entry group.
 *
 * Inputs:	i	- Batch slot to add.
 *
 * Description:	Handles service name collisions by repeatedly retrying
 *		with alternative names.  Although there are other ways in
 *		which Avahi could notify us of name conflicts, this is the
 *		one presented when conflicts arise through, for example,
 *		multiple instances started on the same system.
 *
 *------------------------------------------------------------------*/

func (b *avahi_backend) create_service(i int) error {
	var stype, type_name = dns_sd_slot_type(i)

	text_color_set(DW_COLOR_INFO)
	dw_printf(AVAHI_PRINT_PREFIX+"Announcing %s on port %d as '%s'\n", type_name, b.ctx[i].port, b.ctx[i].name)

	for {
		var addErr = b.group.add_service(b.ctx[i].name, stype, b.ctx[i].port)
		if addErr == nil {
			return nil
		}

		if !errors.Is(addErr, err_dns_sd_collision) {
			return fmt.Errorf("failed to add %s service: %w", type_name, addErr)
		}

		var prev_name = b.ctx[i].name
		b.ctx[i].name = dns_sd_alternative_service_name(prev_name)

		text_color_set(DW_COLOR_INFO)
		dw_printf(AVAHI_PRINT_PREFIX+"Service name collision, renaming '%s' to '%s'\n", prev_name, b.ctx[i].name)
	}
}

func (b *avahi_backend) handle(ev dns_sd_event) bool {
	switch e := ev.(type) {
	case client_state_event:
		return b.handle_client_state(e)
	case group_state_event:
		return b.handle_group_state(e)
	case dispatch_error_event:
		text_color_set(DW_COLOR_ERROR)
		dw_printf(AVAHI_PRINT_PREFIX+"Connection error: %v\n", e.err)

		return true
	}

	return false
}

/* Called whenever the client or server state changes */
func (b *avahi_backend) handle_client_state(e client_state_event) bool {
	switch e.state {
	case AVAHI_SERVER_RUNNING:
		/* The server has startup successfully and registered its host
		 * name on the network, so it's time to create our services */
		if createErr := b.create_services(); createErr != nil {
			text_color_set(DW_COLOR_ERROR)
			dw_printf(AVAHI_PRINT_PREFIX+"%v\n", createErr)

			return true
		}
	case AVAHI_SERVER_FAILURE:
		text_color_set(DW_COLOR_ERROR)
		dw_printf(AVAHI_PRINT_PREFIX+"Client failure: %s\n", e.errstr)

		return true
	case AVAHI_SERVER_COLLISION, AVAHI_SERVER_REGISTERING:
		/* The server records are now being established, possibly
		 * because of a host name change or conflict.  Drop our
		 * registered services.  When the server is back in the
		 * running state we will register them again with the new
		 * host name. */
		if b.group != nil {
			if resetErr := b.group.reset(); resetErr != nil {
				text_color_set(DW_COLOR_ERROR)
				dw_printf(AVAHI_PRINT_PREFIX+"Failed to reset entry group: %v\n", resetErr)
			}
		}
	}

	return false
}

/* Called whenever the entry group state changes */
func (b *avahi_backend) handle_group_state(e group_state_event) bool {
	switch e.state {
	case AVAHI_ENTRY_GROUP_ESTABLISHED:
		/* The entry group has been established successfully */
		text_color_set(DW_COLOR_INFO)
		dw_printf(AVAHI_PRINT_PREFIX + "Successfully registered all services.\n")
	case AVAHI_ENTRY_GROUP_COLLISION:
		/* A service name collision with a remote service happened.
		 * We are not informed of which name has a collision, so we
		 * need to rename all of them to be sure we catch the
		 * offending name. */
		text_color_set(DW_COLOR_INFO)
		dw_printf(AVAHI_PRINT_PREFIX + "Service name collision, renaming services\n")
		rename_all_services(b.ctx)

		/* And recreate the services */
		if createErr := b.create_services(); createErr != nil {
			text_color_set(DW_COLOR_ERROR)
			dw_printf(AVAHI_PRINT_PREFIX+"%v\n", createErr)

			return true
		}
	case AVAHI_ENTRY_GROUP_FAILURE:
		/* Some kind of failure happened while we were registering */
		text_color_set(DW_COLOR_ERROR)
		dw_printf(AVAHI_PRINT_PREFIX+"Entry group failure: %s\n", e.errstr)

		return true
	}

	return false
}

/* The group holds a reference to the connection, so it goes first. */
func (b *avahi_backend) teardown() {
	if b.group != nil {
		b.group.free()
		b.group = nil
	}

	if b.conn != nil {
		b.conn.close()
		b.conn = nil
	}
}
