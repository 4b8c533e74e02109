package ntpclient

import (
	"fmt"
	"time"

	sntp "github.com/beevik/ntp"
)

// Comparison — сверка сэмпла с независимым полным запросом к тому же серверу.
type Comparison struct {
	Server      string
	ServerTime  time.Time     // время сервера по полному запросу (RFC 5905, с дробной частью)
	Difference  time.Duration // ServerTime минус время сэмпла, приведённое к моменту запроса
	ClockOffset time.Duration // смещение локальных часов по полному запросу
	RTT         time.Duration
	Stratum     uint8
}

// Compare повторно опрашивает сервер сэмпла через beevik/ntp. Сэмпл содержит только
// целые секунды, поэтому |Difference| до 1s — норма.
func Compare(s Sample, port int, timeout time.Duration) (Comparison, error) {
	if !s.OK() || s.Server == "" {
		return Comparison{}, fmt.Errorf("compare: no successful sample")
	}
	resp, err := sntp.QueryWithOptions(s.Server, sntp.QueryOptions{
		Timeout: timeout,
		Port:    port,
	})
	if err != nil {
		return Comparison{}, fmt.Errorf("compare %s: %w", s.Server, err)
	}
	if err := resp.Validate(); err != nil {
		return Comparison{}, fmt.Errorf("compare %s: %w", s.Server, err)
	}
	expected := s.Time().Add(time.Since(s.Received))
	return Comparison{
		Server:      s.Server,
		ServerTime:  resp.Time,
		Difference:  resp.Time.Sub(expected),
		ClockOffset: resp.ClockOffset,
		RTT:         resp.RTT,
		Stratum:     resp.Stratum,
	}, nil
}
