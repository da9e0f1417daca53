// cliairplay controls the volume of an AirPlay 2 speaker over the
// HomeKit Accessory Protocol.
//
// Usage:
//
//	cliairplay --host HOST --port PORT [options] COMMAND [args]
//
// Commands:
//
//	pair --pin XXX-XX-XXX   pair with the speaker, print the
//	                        credentials token to stdout
//	list                    print the accessory database as JSON
//	volume get              print the current volume (0..100)
//	volume set N            set the volume
//	mute get                print the mute state (true/false)
//	mute set on|off         set the mute state
//	unpair                  delete the stored pairing
//	discover                browse mDNS for AirPlay speakers
//	monitor                 keep a session alive and poll the
//	                        speaker state, reconnecting with backoff
//
// Options:
//
//	--host        speaker address (required except for discover)
//	--port        speaker port (default: 7000)
//	--credentials base64 credentials token from a previous pair
//	--pairings    pairing file path (ignored when --credentials is set)
//	--timeout     per-operation timeout (default: 30s)
//	--verbose     debug logging to stderr
//
// Results go to stdout, diagnostics to stderr. Exit code 0 on
// success, 2 on authentication failure, 1 on any other failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"

	"github.com/cliairplay/hap/pkg/crypto/srp"
	"github.com/cliairplay/hap/pkg/discovery"
	"github.com/cliairplay/hap/pkg/hap"
	"github.com/cliairplay/hap/pkg/pairing"
	"github.com/cliairplay/hap/pkg/pairing/pairsetup"
	"github.com/cliairplay/hap/pkg/pairing/pairverify"
)

// Exit codes. The supervising process distinguishes authentication
// failures (re-pair needed) from transient ones (retry later).
const (
	exitOK      = 0
	exitFailure = 1
	exitAuth    = 2
)

// DefaultPort is the AirPlay HAP control port.
const DefaultPort = 7000

// monitorInterval is the polling cadence in monitor mode.
const monitorInterval = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app holds the parsed global options and output streams.
type app struct {
	host        string
	port        int
	credentials string
	pairings    string
	timeout     time.Duration
	verbose     bool

	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}

	global := flag.NewFlagSet("cliairplay", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.StringVar(&a.host, "host", "", "speaker address")
	global.IntVar(&a.port, "port", DefaultPort, "speaker port")
	global.StringVar(&a.credentials, "credentials", "", "base64 credentials token")
	global.StringVar(&a.pairings, "pairings", "", "pairing file path")
	global.DurationVar(&a.timeout, "timeout", 30*time.Second, "per-operation timeout")
	global.BoolVar(&a.verbose, "verbose", false, "debug logging")
	if err := global.Parse(args); err != nil {
		return exitFailure
	}
	if global.NArg() == 0 {
		fmt.Fprintln(stderr, "cliairplay: missing command (pair, list, volume, mute, unpair, discover, monitor)")
		return exitFailure
	}

	command, rest := global.Arg(0), global.Args()[1:]
	if err := a.dispatch(command, rest); err != nil {
		fmt.Fprintf(stderr, "cliairplay: %v\n", err)
		if isAuthError(err) {
			return exitAuth
		}
		return exitFailure
	}
	return exitOK
}

func (a *app) dispatch(command string, args []string) error {
	switch command {
	case "pair":
		return a.cmdPair(args)
	case "list":
		return a.cmdList(args)
	case "volume":
		return a.cmdVolume(args)
	case "mute":
		return a.cmdMute(args)
	case "unpair":
		return a.cmdUnpair(args)
	case "discover":
		return a.cmdDiscover(args)
	case "monitor":
		return a.cmdMonitor(args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// address returns the speaker's dial address from the global flags.
func (a *app) address() (string, error) {
	if a.host == "" {
		return "", errors.New("--host is required")
	}
	return net.JoinHostPort(a.host, strconv.Itoa(a.port)), nil
}

// storage builds the pairing store: a credentials token outranks a
// pairing file, and without either records stay in memory.
func (a *app) storage(address string) (hap.Storage, error) {
	if a.credentials != "" {
		record, err := hap.DecodeCredentials(a.credentials)
		if err != nil {
			return nil, err
		}
		store := hap.NewMemoryStorage()
		if err := store.SavePairing(address, record); err != nil {
			return nil, err
		}
		return store, nil
	}
	if a.pairings != "" {
		return hap.NewFileStorage(a.pairings), nil
	}
	return hap.NewMemoryStorage(), nil
}

// loggerFactory builds the pion factory honoring --verbose.
func (a *app) loggerFactory() logging.LoggerFactory {
	factory := logging.NewDefaultLoggerFactory()
	if a.verbose {
		factory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		factory.DefaultLogLevel = logging.LogLevelError
	}
	return factory
}

// controller builds a Controller and the address it targets.
func (a *app) controller() (*hap.Controller, string, error) {
	address, err := a.address()
	if err != nil {
		return nil, "", err
	}
	store, err := a.storage(address)
	if err != nil {
		return nil, "", err
	}
	controller := hap.NewController(hap.Config{
		Storage:       store,
		LoggerFactory: a.loggerFactory(),
	})
	return controller, address, nil
}

// connect opens a session against the stored pairing.
func (a *app) connect(ctx context.Context) (*hap.Session, error) {
	controller, address, err := a.controller()
	if err != nil {
		return nil, err
	}
	return controller.Connect(ctx, address)
}

func (a *app) opContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return ctx, cancel
}

func (a *app) cmdPair(args []string) error {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	pin := fs.String("pin", "", "setup code (XXX-XX-XXX)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pin == "" {
		return errors.New("pair: --pin is required")
	}

	controller, address, err := a.controller()
	if err != nil {
		return err
	}
	ctx, cancel := a.opContext()
	defer cancel()

	record, err := controller.Pair(ctx, address, *pin)
	if err != nil {
		return err
	}
	token, err := hap.EncodeCredentials(record)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, token)
	return nil
}

func (a *app) cmdList(args []string) error {
	if len(args) != 0 {
		return errors.New("list: takes no arguments")
	}

	ctx, cancel := a.opContext()
	defer cancel()

	session, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	accessories, err := session.Accessories(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(accessories, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(out))
	return nil
}

func (a *app) cmdVolume(args []string) error {
	ctx, cancel := a.opContext()
	defer cancel()

	switch {
	case len(args) == 1 && args[0] == "get":
		session, err := a.connect(ctx)
		if err != nil {
			return err
		}
		defer session.Close()

		volume, err := session.Volume(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, volume)
		return nil

	case len(args) == 2 && args[0] == "set":
		volume, err := parseVolume(args[1])
		if err != nil {
			return err
		}
		session, err := a.connect(ctx)
		if err != nil {
			return err
		}
		defer session.Close()
		return session.SetVolume(ctx, volume)

	default:
		return errors.New("volume: expected 'get' or 'set N'")
	}
}

func (a *app) cmdMute(args []string) error {
	ctx, cancel := a.opContext()
	defer cancel()

	switch {
	case len(args) == 1 && args[0] == "get":
		session, err := a.connect(ctx)
		if err != nil {
			return err
		}
		defer session.Close()

		mute, err := session.Mute(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, mute)
		return nil

	case len(args) == 2 && args[0] == "set":
		mute, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		session, err := a.connect(ctx)
		if err != nil {
			return err
		}
		defer session.Close()
		return session.SetMute(ctx, mute)

	default:
		return errors.New("mute: expected 'get' or 'set on|off'")
	}
}

func (a *app) cmdUnpair(args []string) error {
	if len(args) != 0 {
		return errors.New("unpair: takes no arguments")
	}

	controller, address, err := a.controller()
	if err != nil {
		return err
	}
	return controller.Unpair(address)
}

func (a *app) cmdDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	browseTimeout := fs.Duration("timeout", discovery.DefaultBrowseTimeout, "browse window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	browser, err := discovery.NewBrowser(discovery.Config{
		BrowseTimeout: *browseTimeout,
		LoggerFactory: a.loggerFactory(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services, err := browser.Browse(ctx)
	if err != nil {
		return err
	}
	for _, service := range services {
		fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", service.Instance, service.DeviceID, service.Addr())
	}
	return nil
}

// cmdMonitor keeps a session alive and reports the speaker state
// every polling interval as "volume=N mute=BOOL" lines. A lost
// session reconnects with exponential backoff; pairing credentials
// are never re-established automatically.
func (a *app) cmdMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	interval := fs.Duration("interval", monitorInterval, "polling interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	controller, address, err := a.controller()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0 // reconnect until interrupted

	for {
		session, err := controller.Connect(ctx, address)
		if err != nil {
			if isAuthError(err) || errors.Is(err, hap.ErrNotPaired) {
				return err
			}
			fmt.Fprintf(a.stderr, "cliairplay: connect failed: %v\n", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retry.NextBackOff()):
			}
			continue
		}
		retry.Reset()

		if err := a.poll(ctx, session, *interval); err != nil {
			fmt.Fprintf(a.stderr, "cliairplay: session lost: %v\n", err)
		}
		session.Close()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// poll reports the speaker state until the session dies or ctx ends.
func (a *app) poll(ctx context.Context, session *hap.Session, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		volume, err := session.Volume(ctx)
		if err != nil {
			return err
		}
		mute, err := session.Mute(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "volume=%d mute=%t\n", volume, mute)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// parseVolume parses and bounds a volume argument.
func parseVolume(s string) (int, error) {
	volume, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("volume: %q is not a number", s)
	}
	if volume < 0 || volume > 100 {
		return 0, fmt.Errorf("volume: %d out of range 0..100", volume)
	}
	return volume, nil
}

// parseOnOff parses a mute argument.
func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("mute: %q is not on/off", s)
	}
}

// isAuthError reports whether err means the stored credentials or the
// setup code were rejected, as opposed to a transient failure.
func isAuthError(err error) bool {
	return errors.Is(err, pairing.ErrAuthentication) ||
		errors.Is(err, srp.ErrProofMismatch) ||
		errors.Is(err, pairsetup.ErrSignatureInvalid) ||
		errors.Is(err, pairverify.ErrSignatureInvalid) ||
		errors.Is(err, pairverify.ErrIdentityMismatch)
}
