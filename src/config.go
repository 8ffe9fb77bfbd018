package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Configuration for the DNS-SD announcer.
 *
 * Description:	The announcement engine takes its input as an opaque
 *		misc_config_s, the same shape Dire Wolf reads from its
 *		configuration file:  one optional AGWPE TCP port and up
 *		to MAX_KISS_TCP_PORTS KISS TCP ports, each KISS port
 *		tied to a radio channel.
 *
 *		A small YAML loader is provided for the standalone
 *		binary.  Anything embedding the engine can fill in the
 *		struct directly.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Total maximum channels is based on the 4 bit KISS field.
const MAX_TOTAL_CHANS = 16

const MAX_KISS_TCP_PORTS = MAX_TOTAL_CHANS

type misc_config_s struct {
	agwpe_port int /* TCP port for AGWPE.  0 means disabled. */

	kiss_port [MAX_KISS_TCP_PORTS]int /* TCP ports for KISS.  0 means unused slot. */
	kiss_chan [MAX_KISS_TCP_PORTS]int /* Radio channel for each KISS TCP port. */

	dns_sd_enabled bool   /* Announce the configured ports via DNS-SD? */
	dns_sd_name    string /* Service base name.  Empty means use the default. */
	dns_sd_backend string /* "avahi", "builtin", or empty for automatic. */
}

type config_kiss_port_s struct {
	Port    int `yaml:"port"`
	Channel int `yaml:"channel"`
}

type config_file_s struct {
	AGWPort      int                  `yaml:"agwport"`
	KISSPorts    []config_kiss_port_s `yaml:"kissports"`
	DNSSD        *bool                `yaml:"dnssd"`
	DNSSDName    string               `yaml:"dnssdname"`
	DNSSDBackend string               `yaml:"dnssdbackend"`
}

func misc_config_load(path string) (*misc_config_s, error) {
	var raw, readErr = os.ReadFile(path)
	if readErr != nil {
		return nil, readErr
	}

	var cf config_file_s
	if unmarshalErr := yaml.Unmarshal(raw, &cf); unmarshalErr != nil {
		return nil, fmt.Errorf("%s: %w", path, unmarshalErr)
	}

	if len(cf.KISSPorts) > MAX_KISS_TCP_PORTS {
		return nil, fmt.Errorf("%s: at most %d KISS TCP ports can be announced", path, MAX_KISS_TCP_PORTS)
	}

	var mc = new(misc_config_s)
	mc.agwpe_port = cf.AGWPort

	for i, kp := range cf.KISSPorts {
		mc.kiss_port[i] = kp.Port
		mc.kiss_chan[i] = kp.Channel
	}

	// Announcement defaults to on; that is the whole point of this program.
	mc.dns_sd_enabled = cf.DNSSD == nil || *cf.DNSSD
	mc.dns_sd_name = cf.DNSSDName
	mc.dns_sd_backend = cf.DNSSDBackend

	return mc, nil
}
