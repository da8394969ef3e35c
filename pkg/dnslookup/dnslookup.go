// Package dnslookup performs a single-shot A-record query against one
// explicit nameserver, classifying the outcome per the coordinator's
// status model. It never consults the system resolver, never appends a
// search path, and never caches across calls -- every Lookup issues a
// fresh query on the wire.
package dnslookup

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/cuemby/appcluster/pkg/metrics"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

const (
	// Attempts is the number of tries before giving up with TRY_AGAIN.
	Attempts = 2
	// Timeout is the per-attempt resolver query timeout.
	Timeout = 30 * time.Second
)

// Lookup issues A-record queries against explicit nameservers, memoizing
// one *dns.Client per nameserver hostname the way the original memoized
// one resolver per nameserver.
type Lookup struct {
	mu      sync.Mutex
	clients map[string]*dns.Client
}

// New returns a Lookup with an empty resolver memo.
func New() *Lookup {
	return &Lookup{clients: make(map[string]*dns.Client)}
}

func (l *Lookup) clientFor(ns model.Nameserver) *dns.Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[ns.Hostname]; ok {
		return c
	}
	c := &dns.Client{Net: "udp", Timeout: Timeout}
	l.clients[ns.Hostname] = c
	return c
}

func addrWithPort(hostname string) string {
	if _, _, err := net.SplitHostPort(hostname); err == nil {
		return hostname
	}
	return net.JoinHostPort(hostname, "53")
}

// Query performs up to Attempts queries for hostname's A records against
// nameserver, applying the TTL rule when isMasterRecord is true.
func (l *Lookup) Query(ctx context.Context, hostname string, nameserver model.Nameserver, isMasterRecord bool, masterRecordsTTL int) model.DnsLookupResult {
	start := time.Now()
	defer func() { metrics.DnsLookupDuration.Observe(time.Since(start).Seconds()) }()

	client := l.clientFor(nameserver)
	addr := addrWithPort(nameserver.Hostname)

	var lastErr error
	for attempt := 0; attempt < Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return model.NewDnsLookupResult(hostname, status.LookupError, []string{ctx.Err().Error()}, nil)
		default:
		}

		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(hostname), dns.TypeA)
		msg.RecursionDesired = true

		resp, _, err := client.ExchangeContext(ctx, msg, addr)
		if err != nil {
			lastErr = err
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			return classifySuccess(hostname, resp, isMasterRecord, nameserver.StrictTTL, masterRecordsTTL)
		case dns.RcodeNameError:
			return model.NewDnsLookupResult(hostname, status.LookupHostNotFound, []string{"host not found"}, nil)
		case dns.RcodeNotImplemented:
			return model.NewDnsLookupResult(hostname, status.LookupTypeNotFound, []string{"type not found"}, nil)
		case dns.RcodeServerFailure:
			lastErr = fmt.Errorf("server failure (try again)")
			continue
		case dns.RcodeRefused:
			return model.NewDnsLookupResult(hostname, status.LookupUnrecoverable, []string{"refused"}, nil)
		default:
			return model.NewDnsLookupResult(hostname, status.LookupError, []string{fmt.Sprintf("unknown rcode %d", resp.Rcode)}, nil)
		}
	}

	if lastErr != nil {
		return model.NewDnsLookupResult(hostname, status.LookupTryAgain, []string{"try again: " + lastErr.Error()}, nil)
	}
	return model.NewDnsLookupResult(hostname, status.LookupTryAgain, []string{"try again: retries exhausted"}, nil)
}

func classifySuccess(hostname string, resp *dns.Msg, isMasterRecord, strictTTL bool, masterRecordsTTL int) model.DnsLookupResult {
	var addrs []string
	var ttls []uint32
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		addrs = append(addrs, a.A.String())
		ttls = append(ttls, a.Hdr.Ttl)
	}

	if len(addrs) == 0 {
		return model.NewDnsLookupResult(hostname, status.LookupHostNotFound, []string{"no A records"}, nil)
	}

	var messages []string
	st := status.LookupSuccessful
	if isMasterRecord {
		for _, ttl := range ttls {
			if strictTTL {
				if int(ttl) != masterRecordsTTL {
					st = status.LookupWarning
					messages = append(messages, fmt.Sprintf("ttl mismatch for %s: expected=%d actual=%d", hostname, masterRecordsTTL, ttl))
				}
			} else {
				if !(ttl > 0 && int(ttl) <= masterRecordsTTL) {
					st = status.LookupWarning
					messages = append(messages, fmt.Sprintf("ttl out of range for %s: expected<=%d actual=%d", hostname, masterRecordsTTL, ttl))
				}
			}
		}
	}

	return model.NewDnsLookupResult(hostname, st, messages, addrs)
}
