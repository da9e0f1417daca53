// Package discovery finds AirPlay speakers and HAP accessories on the
// local network via DNS-SD (mDNS) browsing.
//
// The underlying resolver is injectable, so tests run against a mock
// without real network I/O; production uses grandcat/zeroconf.
package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// Browsable service types.
const (
	// ServiceAirPlay is the AirPlay advertisement. AirPlay 2 speakers
	// advertise their HAP control channel under it.
	ServiceAirPlay = "_airplay._tcp"

	// ServiceHAP is the plain HomeKit accessory advertisement.
	ServiceHAP = "_hap._tcp"
)

// DefaultDomain is the DNS-SD browse domain.
const DefaultDomain = "local."

// DefaultBrowseTimeout bounds a Browse when the caller's context
// carries no deadline.
const DefaultBrowseTimeout = 10 * time.Second

// ErrNoResolver reports a Browser built without any usable resolver.
var ErrNoResolver = errors.New("discovery: no mDNS resolver available")

// Service is one discovered accessory advertisement.
type Service struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised target host name.
	Host string

	// Port is the service port.
	Port int

	// Addrs contains the resolved addresses, IPv4 first.
	Addrs []net.IP

	// DeviceID is the accessory's device identifier from the TXT
	// record ("deviceid" for AirPlay, "id" for HAP). Empty when the
	// advertisement carries neither.
	DeviceID string

	// Txt contains the raw TXT record key-value pairs.
	Txt map[string]string
}

// Addr returns the service's "host:port" dial address, preferring a
// resolved IP over the host name.
func (s *Service) Addr() string {
	host := s.Host
	if len(s.Addrs) > 0 {
		host = s.Addrs[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Config configures a Browser.
type Config struct {
	// Service is the service type to browse for.
	// Empty means ServiceAirPlay.
	Service string

	// Domain is the browse domain. Empty means DefaultDomain.
	Domain string

	// Resolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	Resolver Resolver

	// BrowseTimeout bounds a Browse when the context has no deadline.
	// Zero means DefaultBrowseTimeout.
	BrowseTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Browser discovers accessory advertisements.
type Browser struct {
	service  string
	domain   string
	timeout  time.Duration
	resolver Resolver
	log      logging.LeveledLogger
}

// NewBrowser creates a browser with the given configuration.
func NewBrowser(config Config) (*Browser, error) {
	b := &Browser{
		service:  config.Service,
		domain:   config.Domain,
		timeout:  config.BrowseTimeout,
		resolver: config.Resolver,
	}
	if b.service == "" {
		b.service = ServiceAirPlay
	}
	if b.domain == "" {
		b.domain = DefaultDomain
	}
	if b.timeout == 0 {
		b.timeout = DefaultBrowseTimeout
	}
	if b.resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		b.resolver = zr
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("discovery")
	}
	return b, nil
}

// Browse collects advertisements until the context is done or the
// browse timeout elapses, whichever comes first. Services are
// deduplicated by instance name and returned sorted by it.
func (b *Browser) Browse(ctx context.Context) ([]Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := b.resolver.Browse(ctx, b.service, b.domain, entries); err != nil {
		return nil, err
	}

	// The resolver closes entries when the browse ends; expiry of the
	// collection window is the normal outcome, not a failure.
	found := make(map[string]Service)
	for entry := range entries {
		service := fromEntry(entry)
		if b.log != nil {
			b.log.Debugf("found %s at %s", service.Instance, service.Addr())
		}
		found[service.Instance] = service
	}

	services := make([]Service, 0, len(found))
	for _, service := range found {
		services = append(services, service)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Instance < services[j].Instance })
	return services, nil
}

// fromEntry converts a zeroconf entry to a Service.
func fromEntry(entry *zeroconf.ServiceEntry) Service {
	txt := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				txt[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	addrs := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	addrs = append(addrs, entry.AddrIPv4...)
	addrs = append(addrs, entry.AddrIPv6...)

	deviceID := txt["deviceid"]
	if deviceID == "" {
		deviceID = txt["id"]
	}

	return Service{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		Addrs:    addrs,
		DeviceID: deviceID,
		Txt:      txt,
	}
}
