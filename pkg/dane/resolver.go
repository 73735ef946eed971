// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package dane

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/jeremyhahn/go-certpin/pkg/certstore"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultDNSPort    = "53"
	defaultDoTPort    = "853"
	defaultResolvConf = "/etc/resolv.conf"

	// DefaultPinValidity bounds fallback entries discovered through DNS.
	DefaultPinValidity = 24 * time.Hour

	maxHostnameLength = 253
)

// Resolver looks up TLSA records, optionally over DNS-over-TLS and with
// DNSSEC enforcement.
type Resolver struct {
	config ResolverConfig
	client *dns.Client
	server string
	now    func() time.Time
}

// NewResolver validates cfg and applies defaults.
func NewResolver(cfg *ResolverConfig) (*Resolver, error) {
	if cfg == nil {
		return nil, ErrResolverConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &dns.Client{Timeout: timeout, Net: "udp"}

	port := defaultDNSPort
	if cfg.UseTLS {
		client.Net = "tcp-tls"
		client.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.TLSServerName,
		}
		port = defaultDoTPort
	}

	server := cfg.Server
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, port)
		}
	} else {
		path := cfg.ResolvConf
		if path == "" {
			path = defaultResolvConf
		}
		systemCfg, err := dns.ClientConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolverConfig, err)
		}
		if len(systemCfg.Servers) == 0 {
			return nil, fmt.Errorf("%w: no nameservers in %s", ErrResolverConfig, path)
		}
		if systemCfg.Port != "" && !cfg.UseTLS {
			port = systemCfg.Port
		}
		server = net.JoinHostPort(systemCfg.Servers[0], port)
	}

	return &Resolver{config: *cfg, client: client, server: server, now: time.Now}, nil
}

// Server returns the resolver address queries are sent to.
func (r *Resolver) Server() string {
	return r.server
}

// LookupTLSA queries _<port>._tcp.<hostname>. for TLSA records. The query
// sets the DO bit so a validating resolver returns the AD flag, which is
// enforced when RequireAD is set. Answers whose association data is not
// valid hex are skipped. ErrNoTLSARecords is returned when no usable record
// remains.
func (r *Resolver) LookupTLSA(ctx context.Context, hostname string, port uint16) ([]*Record, error) {
	if hostname == "" || strings.ContainsRune(hostname, 0) || len(hostname) > maxHostnameLength {
		return nil, ErrInvalidHostname
	}
	if port == 0 {
		return nil, ErrInvalidPort
	}

	msg := new(dns.Msg)
	msg.SetQuestion(formatTLSAName(hostname, port), dns.TypeTLSA)
	msg.SetEdns0(4096, true)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDNSLookupFailed, err)
	}
	if resp == nil {
		return nil, ErrDNSLookupFailed
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: rcode %s", ErrDNSLookupFailed, dns.RcodeToString[resp.Rcode])
	}
	if r.config.RequireAD && !resp.AuthenticatedData {
		return nil, ErrDNSSECRequired
	}

	records := make([]*Record, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		tlsa, ok := rr.(*dns.TLSA)
		if !ok {
			continue
		}
		data, err := hex.DecodeString(tlsa.Certificate)
		if err != nil {
			continue
		}
		records = append(records, &Record{
			Usage:        tlsa.Usage,
			Selector:     tlsa.Selector,
			MatchingType: tlsa.MatchingType,
			CertData:     data,
			TTL:          time.Duration(tlsa.Hdr.Ttl) * time.Second,
		})
	}
	if len(records) == 0 {
		return nil, ErrNoTLSARecords
	}
	return records, nil
}

// LookupPins returns the pin entries published for hostname, valid for
// validity from now. A non-positive validity uses DefaultPinValidity.
//
// Only 3 0 1 and 1 0 1 records with a 32-byte digest become entries (see
// Record.IsPin). The entries are unsigned; they are meant as fallback data
// and never replace the signed database. ErrNoPinRecords is returned when
// the answer holds TLSA records but none of them is a pin.
func (r *Resolver) LookupPins(ctx context.Context, hostname string, port uint16, validity time.Duration) ([]certstore.Entry, error) {
	records, err := r.LookupTLSA(ctx, hostname, port)
	if err != nil {
		return nil, err
	}
	if validity <= 0 {
		validity = DefaultPinValidity
	}
	entries := Entries(records, strings.TrimSuffix(hostname, "."), r.now().Add(validity))
	if len(entries) == 0 {
		return nil, ErrNoPinRecords
	}
	return entries, nil
}

// formatTLSAName returns the fully qualified TLSA owner name.
func formatTLSAName(hostname string, port uint16) string {
	if !strings.HasSuffix(hostname, ".") {
		hostname += "."
	}
	return fmt.Sprintf("_%d._tcp.%s", port, hostname)
}
