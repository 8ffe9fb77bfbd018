package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the AGWPE and KISS over TCP services using
 *		DNS-SD, common functions
 *
 * Description:
 *
 *     Most people have typed in enough IP addresses and ports by now, and
 *     would rather just select an available TNC that is automatically
 *     discovered on the local network.  Even more so on a mobile device
 *     such an Android or iOS phone or tablet.
 *
 *     This module builds the set of services to announce:  one entry
 *     per configured TCP port, each with a unique human readable name.
 */

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// DNS-SD service types
const DNS_SD_TYPE_AGWPE = "_agwpe._tcp"
const DNS_SD_TYPE_KISS = "_kiss-tnc._tcp"

// DNS-SD service type names
const DNS_SD_TYPE_NAME_AGWPE = "AGWPE"
const DNS_SD_TYPE_NAME_KISS = "KISS TCP"

const DNS_SD_BASE_NAME = "Malamute"

// DNS-SD instance names are a single label, at most 63 octets.
const DNS_SD_NAME_MAX = 63

// One for AGWPE, remainder for KISS
const MAX_DNS_SD_SERVICES = 1 + MAX_KISS_TCP_PORTS

type dns_sd_service_t struct {
	port    int    /* TCP port.  0 means unused slot, skip. */
	channel int    /* Radio channel, or -1 where not applicable. */
	name    string /* Current service name.  May be renamed on collision. */
}

/* Determine the number of services that are configured and will thus be
 * announced.  Useful for deciding whether there is anything to do at all.
 */
func dns_sd_service_count(mc *misc_config_s) int {
	var count = 0

	if mc.agwpe_port != 0 {
		count++
	}

	for i := 0; i < MAX_KISS_TCP_PORTS; i++ {
		if mc.kiss_port[i] != 0 {
			count++
		}
	}

	return count
}

func dns_sd_short_hostname() string {
	var hostname, hostnameErr = os.Hostname()
	if hostnameErr != nil {
		return ""
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return hostname
}

/*------------------------------------------------------------------
 *
 * Function:	make_service_name
 *
 * Purpose:	Create a full service name based on the provided components.
 *
 * Inputs:	basename	- Base service name.  Defaults to "Malamute".
 *
 *		hostname	- Host name if available, else empty string.
 *
 *		channel		- Channel number, or -1 for default.
 *
 * Returns:	A full service name suitable for DNS-SD, no longer than
 *		DNS_SD_NAME_MAX bytes.
 *
 * Description:	A typical name including all components might look like
 *		"Malamute channel 2 on myhost".  Channel is only relevant
 *		for KISS services.
 *
 *------------------------------------------------------------------*/

func make_service_name(basename string, hostname string, channel int) string {
	var sname strings.Builder

	if basename == "" {
		basename = DNS_SD_BASE_NAME
	}

	sname.WriteString(basename)

	if channel != -1 {
		fmt.Fprintf(&sname, " channel %d", channel)
	}

	if hostname != "" {
		fmt.Fprintf(&sname, " on %s", hostname)
	}

	return dns_sd_truncate_name(sname.String(), DNS_SD_NAME_MAX)
}

// Cut a name down to at most max bytes without splitting a UTF-8 sequence.
func dns_sd_truncate_name(name string, max int) string {
	if len(name) <= max {
		return name
	}

	var cut = max
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}

	return name[:cut]
}

/*------------------------------------------------------------------
 *
 * Function:	dns_sd_create_context
 *
 * Purpose:	Populate an array of common attributes for each of the
 *		DNS-SD services to be announced.  This includes constructing
 *		a unique name for each service.
 *
 * Inputs:	mc	- Misc config as read from the config file.
 *
 * Returns:	A slice of dns_sd_service_t, of length MAX_DNS_SD_SERVICES.
 *
 * Description:	The port and channel are saved, and a name created from a
 *		base name provided in the config, or a constant if none is
 *		provided.  The name includes the channel, if appropriate,
 *		and the hostname if available.
 *
 *		The first entry is for AGWPE.  The remainder are for however
 *		many KISS TCP ports are configured.
 *
 *		Active slot names are guaranteed pairwise distinct on
 *		return, even if two KISS ports share a channel number.
 *
 *------------------------------------------------------------------*/

func dns_sd_create_context(mc *misc_config_s) []dns_sd_service_t {
	var hostname = dns_sd_short_hostname()

	var ctx = make([]dns_sd_service_t, MAX_DNS_SD_SERVICES)

	if mc.agwpe_port != 0 {
		ctx[0].port = mc.agwpe_port
		ctx[0].channel = -1
		ctx[0].name = make_service_name(mc.dns_sd_name, hostname, -1)
	}

	var j = 1
	for i := 0; i < MAX_KISS_TCP_PORTS; i++ {
		if mc.kiss_port[i] != 0 {
			ctx[j].port = mc.kiss_port[i]
			ctx[j].channel = mc.kiss_chan[i]
			ctx[j].name = make_service_name(mc.dns_sd_name, hostname, mc.kiss_chan[i])
			j++
		}
	}

	Assert(j <= MAX_DNS_SD_SERVICES)

	for i := range ctx {
		if ctx[i].port == 0 {
			continue
		}

		for k := 0; k < i; k++ {
			if ctx[k].port != 0 && ctx[k].name == ctx[i].name {
				ctx[i].name = dns_sd_alternative_service_name(ctx[i].name)
				k = -1 // start over against all earlier slots
			}
		}
	}

	return ctx
}

// Service type and display name for a batch slot.  Slot 0 is AGWPE,
// everything else is KISS TCP.
func dns_sd_slot_type(i int) (string, string) {
	if i == 0 {
		return DNS_SD_TYPE_AGWPE, DNS_SD_TYPE_NAME_AGWPE
	}

	return DNS_SD_TYPE_KISS, DNS_SD_TYPE_NAME_KISS
}

// Display name for a service type string, for reporting registration
// results that echo the type back at us.
func dns_sd_type_display(stype string) string {
	if strings.HasPrefix(stype, DNS_SD_TYPE_AGWPE) {
		return DNS_SD_TYPE_NAME_AGWPE
	}

	if strings.HasPrefix(stype, DNS_SD_TYPE_KISS) {
		return DNS_SD_TYPE_NAME_KISS
	}

	return stype
}
