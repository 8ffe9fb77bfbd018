package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Pick alternative DNS-SD service names after collisions.
 *
 * Description:	Same scheme as avahi_alternative_service_name():  append
 *		" #2" to a fresh name, and bump the counter on a name
 *		that already carries one.  The counter only ever grows,
 *		so repeated application never revisits a name.
 *
 *		This is computed locally rather than asking the daemon,
 *		since the per-slot retry loop may need many candidates in
 *		quick succession.
 */

import (
	"fmt"
	"strconv"
	"strings"
)

func dns_sd_alternative_service_name(name string) string {
	var base = name
	var next = 2

	if i := strings.LastIndex(name, " #"); i >= 0 {
		if n, convErr := strconv.Atoi(name[i+2:]); convErr == nil && n >= 2 {
			base = name[:i]
			next = n + 1
		}
	}

	var suffix = fmt.Sprintf(" #%d", next)

	// The suffix must survive truncation, so trim the base instead.
	if len(base)+len(suffix) > DNS_SD_NAME_MAX {
		base = dns_sd_truncate_name(base, DNS_SD_NAME_MAX-len(suffix))
	}

	return base + suffix
}

/*------------------------------------------------------------------
 *
 * Function:	rename_all_services
 *
 * Purpose:	Rename each active service in the batch, using
 *		dns_sd_alternative_service_name() to obtain a new name.
 *
 * Inputs:	ctx	- Context info for all of our services.
 *
 * Description:	This function is used when we know there is a name conflict
 *		for at least one service in the group, but not which one.
 *		Thus we update the names for all services to cover all
 *		possibilities.
 *
 *------------------------------------------------------------------*/

func rename_all_services(ctx []dns_sd_service_t) {
	for i := range ctx {
		if ctx[i].port == 0 || ctx[i].name == "" {
			continue
		}

		ctx[i].name = dns_sd_alternative_service_name(ctx[i].name)
	}
}
