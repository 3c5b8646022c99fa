// Package discovery finds registration servers announced in DNS and
// validates user supplied server URLs.
//
// Servers are published as SRV records of _registration._tcp.<domain>:
//
//	_registration._tcp.example.com. 3600 IN SRV 10 5 443 smt.example.com.
//
// and are returned as https URLs ordered by priority and weight.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/registration-client/interfaces"
)

// ServicePrefix is prepended to the searched domain.
const ServicePrefix = "_registration._tcp."

// DefaultResolvConf is read for name servers when none is configured.
const DefaultResolvConf = "/etc/resolv.conf"

// fallbackServer is the local stub resolver.
const fallbackServer = "127.0.0.53:53"

// ErrInvalidURL is returned by ValidateURL.
var ErrInvalidURL = errors.New("invalid registration server URL")

// Server is a registration server found in DNS.
type Server struct {
	URL      string
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Resolver queries SRV records at a single name server.
type Resolver struct {
	server string
	client *dns.Client
	log    *slog.Logger
}

// NewResolver creates a resolver using server ("host:port"). An empty
// server means the first name server of /etc/resolv.conf.
func NewResolver(server string, log *slog.Logger) *Resolver {
	if server == "" {
		server = systemServer(DefaultResolvConf)
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

func systemServer(resolvConf string) string {
	config, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil || len(config.Servers) == 0 {
		return fallbackServer
	}
	return net.JoinHostPort(config.Servers[0], config.Port)
}

// LookupRegistrationServers returns the registration servers announced for
// domain, best first. A domain without records yields an empty list.
func (r *Resolver) LookupRegistrationServers(ctx context.Context, domain string) ([]Server, error) {
	name := dns.Fqdn(ServicePrefix + strings.TrimSuffix(domain, "."))

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeSRV)
	msg.RecursionDesired = true

	r.log.Debug("Looking up registration servers", "name", name, "server", r.server)
	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		if ctx.Err() != nil {
			return nil, interfaces.TimeoutError(err)
		}
		return nil, fmt.Errorf("%w: SRV lookup of %s: %w", interfaces.ErrTransport, name, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return []Server{}, nil
	default:
		return nil, fmt.Errorf("%w: SRV lookup of %s failed: %s", interfaces.ErrTransport, name, dns.RcodeToString[in.Rcode])
	}

	servers := []Server{}
	for _, answer := range in.Answer {
		srv, ok := answer.(*dns.SRV)
		if !ok {
			continue
		}
		target := strings.TrimSuffix(srv.Target, ".")
		if target == "" {
			// "." means the service is not available at this domain
			continue
		}
		servers = append(servers, Server{
			URL:      serverURL(target, srv.Port),
			Target:   target,
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}

	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})

	r.log.Info("Found registration servers", "domain", domain, "count", len(servers))
	return servers, nil
}

func serverURL(target string, port uint16) string {
	host := target
	if port != 0 && port != 443 {
		host = net.JoinHostPort(target, strconv.Itoa(int(port)))
	}
	return (&url.URL{Scheme: "https", Host: host, Path: "/"}).String()
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q needs an http or https scheme", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return u, nil
}
