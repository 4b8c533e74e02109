package netstack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/logger"
)

// DefaultDNSServers — публичные серверы, как в прошивке ESP8266 (8.8.8.8, 8.8.4.4).
var DefaultDNSServers = []string{"8.8.8.8", "8.8.4.4"}

const defaultDNSTimeout = 2 * time.Second

var errNoAddress = errors.New("dns: no A record")

// Resolver разрешает имя сервера в IPv4 адрес. При заданных Servers запрашивает
// их по очереди (miekg/dns), иначе использует системный резолвер.
type Resolver struct {
	stack   *Stack
	servers []string
	timeout time.Duration
	client  *dns.Client
	system  *net.Resolver
}

// NewResolver создаёт резолвер. servers — адреса DNS серверов ("8.8.8.8" или "host:port");
// пустой список — системный резолвер. timeout 0 = 2s на один запрос.
func NewResolver(stack *Stack, servers []string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	addrs := make([]string, 0, len(servers))
	for _, s := range servers {
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		addrs = append(addrs, s)
	}
	return &Resolver{
		stack:   stack,
		servers: addrs,
		timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		system:  net.DefaultResolver,
	}
}

// ResolveHostname разрешает name в фоне и доставляет результат через стек.
// Литеральный адрес возвращается без запроса. done получает nil при неудаче.
func (r *Resolver) ResolveHostname(name string, done func(net.IP)) {
	go func() {
		ip, err := r.Lookup(context.Background(), name)
		if err != nil {
			logger.Debugf("dns %s: %v", name, err)
			ip = nil
		}
		if err := r.stack.Post(func() { done(ip) }); err != nil {
			logger.Debugf("dns %s: %v", name, err)
		}
	}()
}

// Lookup синхронно разрешает name в IPv4 адрес.
func (r *Resolver) Lookup(ctx context.Context, name string) (net.IP, error) {
	if ip := net.ParseIP(name); ip != nil {
		return ip, nil
	}
	if len(r.servers) == 0 {
		return r.lookupSystem(ctx, name)
	}
	var lastErr error
	for _, server := range r.servers {
		ip, err := r.exchange(ctx, name, server)
		if err == nil {
			return ip, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Resolver) exchange(ctx context.Context, name, server string) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.RecursionDesired = true

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	in, _, err := r.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("dns %s via %s: %w", name, server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns %s via %s: %s", name, server, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("dns %s via %s: %w", name, server, errNoAddress)
}

func (r *Resolver) lookupSystem(ctx context.Context, name string) (net.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	addrs, err := r.system.LookupIPAddr(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, fmt.Errorf("dns %s: %w", name, errNoAddress)
}
