package netstack

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStack(t *testing.T) *Stack {
	t.Helper()
	s := NewStack(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func TestStack(t *testing.T) {
	t.Run("events run in order", func(t *testing.T) {
		s := runStack(t)
		var got []int
		for i := 0; i < 5; i++ {
			i := i
			require.NoError(t, s.Post(func() { got = append(got, i) }))
		}
		require.NoError(t, s.Do(context.Background(), func() {}))
		assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	})

	t.Run("post after stop", func(t *testing.T) {
		s := NewStack(1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.Run(ctx), context.Canceled)
		assert.ErrorIs(t, s.Post(func() {}), ErrStopped)
		assert.ErrorIs(t, s.Do(context.Background(), func() {}), ErrStopped)
	})

	t.Run("second run", func(t *testing.T) {
		s := NewStack(1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.Run(ctx), context.Canceled)
		assert.NotPanics(t, func() {
			assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRun)
		})
	})
}

// udpServer отвечает на каждую датаграмму результатом reply (nil — молчит).
func udpServer(t *testing.T, reply func(req []byte) []byte) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if out := reply(buf[:n]); out != nil {
				_, _ = conn.WriteToUDP(out, addr)
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr)
}

type received struct {
	buf    []byte
	length int
}

func TestUDP(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		s := runStack(t)
		addr := udpServer(t, func(req []byte) []byte {
			out := make([]byte, 48)
			out[0] = req[0]
			out[43] = 9
			return out
		})

		u := NewUDP(s)
		ch := make(chan received, 2)
		u.SetReceiveCallback(func(buf []byte, length int) { ch <- received{buf, length} })
		require.NoError(t, u.Initialize(addr.IP, nil, addr.Port, time.Second))

		sent := make(chan error, 1)
		req := make([]byte, 48)
		req[0] = 0x1B
		u.SendDatagram(req, func(err error) { sent <- err })

		require.NoError(t, <-sent)
		select {
		case r := <-ch:
			assert.Equal(t, 48, r.length)
			assert.Equal(t, byte(0x1B), r.buf[0])
			assert.Equal(t, byte(9), r.buf[43])
		case <-time.After(3 * time.Second):
			t.Fatal("no receive event")
		}
	})

	t.Run("timeout reports zero length", func(t *testing.T) {
		s := runStack(t)
		addr := udpServer(t, func([]byte) []byte { return nil })

		u := NewUDP(s)
		ch := make(chan received, 2)
		u.SetReceiveCallback(func(buf []byte, length int) { ch <- received{buf, length} })
		require.NoError(t, u.Initialize(addr.IP, nil, addr.Port, 100*time.Millisecond))

		start := time.Now()
		u.SendDatagram(make([]byte, 48), func(err error) { assert.NoError(t, err) })
		select {
		case r := <-ch:
			assert.Zero(t, r.length)
			assert.Nil(t, r.buf)
			assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
		case <-time.After(3 * time.Second):
			t.Fatal("no timeout event")
		}
		select {
		case r := <-ch:
			t.Fatalf("second receive event: %+v", r)
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("not initialized", func(t *testing.T) {
		s := runStack(t)
		u := NewUDP(s)
		assert.Error(t, u.Initialize(nil, nil, 123, time.Second))

		sent := make(chan error, 1)
		u.SendDatagram(make([]byte, 48), func(err error) { sent <- err })
		assert.ErrorIs(t, <-sent, errNotInitialized)
	})
}

func dnsServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			switch req.Question[0].Name {
			case "ntp.test.":
				rr, _ := dns.NewRR("ntp.test. 60 IN A 192.0.2.7")
				m.Answer = append(m.Answer, rr)
			case "v6only.test.":
				rr, _ := dns.NewRR("v6only.test. 60 IN AAAA 2001:db8::1")
				m.Answer = append(m.Answer, rr)
			default:
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestResolver(t *testing.T) {
	server := dnsServer(t)

	tests := []struct {
		name    string
		servers []string
		host    string
		want    net.IP
		wantErr bool
	}{
		{"literal ipv4", nil, "192.0.2.55", net.IPv4(192, 0, 2, 55), false},
		{"a record", []string{server}, "ntp.test", net.IPv4(192, 0, 2, 7), false},
		{"fqdn", []string{server}, "ntp.test.", net.IPv4(192, 0, 2, 7), false},
		{"nxdomain", []string{server}, "missing.test", nil, true},
		{"no a record", []string{server}, "v6only.test", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(NewStack(0), tt.servers, time.Second)
			ip, err := r.Lookup(context.Background(), tt.host)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ip), "got %v", ip)
		})
	}
}

func TestResolver_ServerFallback(t *testing.T) {
	dead := udpServer(t, func([]byte) []byte { return nil })
	r := NewResolver(NewStack(0), []string{dead.String(), dnsServer(t)}, 200*time.Millisecond)
	ip, err := r.Lookup(context.Background(), "ntp.test")
	require.NoError(t, err)
	assert.True(t, net.IPv4(192, 0, 2, 7).Equal(ip))
}

func TestResolver_ResolveHostnameViaStack(t *testing.T) {
	s := runStack(t)
	r := NewResolver(s, []string{dnsServer(t)}, time.Second)

	ch := make(chan net.IP, 2)
	r.ResolveHostname("ntp.test", func(ip net.IP) { ch <- ip })
	r.ResolveHostname("missing.test", func(ip net.IP) { ch <- ip })

	var got []net.IP
	for i := 0; i < 2; i++ {
		select {
		case ip := <-ch:
			got = append(got, ip)
		case <-time.After(3 * time.Second):
			t.Fatal("no resolve event")
		}
	}
	var ok, failed int
	for _, ip := range got {
		if ip == nil {
			failed++
		} else if ip.Equal(net.IPv4(192, 0, 2, 7)) {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestNewResolver_DefaultPort(t *testing.T) {
	r := NewResolver(NewStack(0), []string{"8.8.8.8", "", "[2001:db8::53]:5353"}, 0)
	assert.Equal(t, []string{"8.8.8.8:53", "[2001:db8::53]:5353"}, r.servers)
	assert.Equal(t, defaultDNSTimeout, r.timeout)
}
