package malamute

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for "Malamute", a DNS-SD announcer for
 *		AGWPE and KISS TCP services.
 *
 * Description:	Reads the ports to announce from a config file and/or
 *		the command line, announces them on the local network,
 *		and keeps the announcement alive until interrupted.
 *
 *		Meant to sit alongside a TNC that provides the actual
 *		AGWPE and KISS TCP services, so client applications can
 *		find it without anyone typing in an IP address.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

func MalamuteMain() {
	var configFileName = pflag.StringP("config-file", "c", "", "Configuration file name.")
	var agwPort = pflag.IntP("agw-port", "a", 0, "AGWPE TCP port to announce.  0 to disable.")
	var kissPorts = pflag.StringArrayP("kiss-port", "k", nil, "KISS TCP port to announce, as port or port:channel.  May be repeated.")
	var serviceName = pflag.StringP("name", "n", "", "Service base name.  Defaults to \""+DNS_SD_BASE_NAME+"\".")
	var backendName = pflag.StringP("backend", "b", "", "Discovery backend: avahi or builtin.  Default tries avahi, then builtin.")
	var textColor = pflag.IntP("text-color", "t", 1, "Text colors.  0=disabled. 1=default.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - announce AGWPE and KISS TCP services via DNS-SD / mDNS.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: malamute [options]\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "At least one port must be configured, via options or the config file.\n")
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	text_color_init(*textColor)

	var mc *misc_config_s

	if *configFileName != "" {
		var loaded, loadErr = misc_config_load(*configFileName)
		if loadErr != nil {
			log.Fatal("Cannot read configuration", "file", *configFileName, "err", loadErr)
		}

		mc = loaded
	} else {
		mc = new(misc_config_s)
		mc.dns_sd_enabled = true
	}

	/*
	 * Command line options override the config file.
	 */
	if *agwPort != 0 {
		mc.agwpe_port = *agwPort
	}

	for i, kp := range *kissPorts {
		if i >= MAX_KISS_TCP_PORTS {
			log.Fatal("Too many KISS TCP ports", "max", MAX_KISS_TCP_PORTS)
		}

		var port, channel, parseErr = parse_kiss_port(kp)
		if parseErr != nil {
			log.Fatal("Invalid KISS port", "value", kp, "err", parseErr)
		}

		mc.kiss_port[i] = port
		mc.kiss_chan[i] = channel
	}

	if *serviceName != "" {
		mc.dns_sd_name = *serviceName
	}

	if *backendName != "" {
		mc.dns_sd_backend = *backendName
	}

	if !mc.dns_sd_enabled || dns_sd_service_count(mc) == 0 {
		fmt.Fprintf(os.Stderr, "Nothing to announce.\n\n")
		pflag.Usage()
		os.Exit(1)
	}

	var session = dns_sd_announce(mc)
	if session == nil {
		os.Exit(1)
	}

	var signals = make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signals:
		log.Info("Shutting down", "signal", sig)
	case <-session.done:
		// The session wound down by itself; a daemon failure was
		// already reported on the console.
	}

	session.term()
	session.wait()
}

// "8001" or "8001:2" - a TCP port with an optional radio channel.
func parse_kiss_port(s string) (int, int, error) {
	var portStr, chanStr, hasChan = strings.Cut(s, ":")

	var port, portErr = strconv.Atoi(portStr)
	if portErr != nil || port < 1 || port > 65535 {
		return 0, 0, fmt.Errorf("bad port number %q", portStr)
	}

	var channel = 0

	if hasChan {
		var ch, chanErr = strconv.Atoi(chanStr)
		if chanErr != nil || ch < 0 || ch >= MAX_TOTAL_CHANS {
			return 0, 0, fmt.Errorf("bad channel number %q", chanStr)
		}

		channel = ch
	}

	return port, channel, nil
}
