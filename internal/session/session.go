// Package session — сессия синхронизации SNTP: выбор сервера, DNS → запрос → ожидание
// ответа, повторы с переходом на следующий сервер и перевод метки времени в
// календарное время пояса пользователя.
//
// Все переходы выполняются внутри обработчиков событий (OnResolved, OnReceive),
// которые стек вызывает из одного контекста; блокировок нет, и сессию нельзя
// вызывать из нескольких горутин одновременно.
package session

import (
	"net"
	"time"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/civil"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/logger"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/ntp"
)

// Session владеет конфигурацией, счётчиками и результатом одного клиента.
type Session struct {
	resolver  Resolver
	transport Transport
	handler   Handler

	servers [MaxServers]string
	count   int
	tz      Timezone
	timeout time.Duration
	port    int
	local   net.IP
	request [ntp.PacketSize]byte

	result  *Result
	phase   Phase
	server  int // текущий сервер, 1-based
	retries int
	cycles  uint64 // успешные циклы, для диагностики
}

// New создаёт сессию поверх резолвера и транспорта стека и подписывается на приём.
// До Configure сессия не имеет серверов и TriggerSync возвращает ErrNotConfigured.
func New(resolver Resolver, transport Transport) *Session {
	s := &Session{
		resolver:  resolver,
		transport: transport,
		handler:   HandlerFuncs{},
		result:    &Result{},
		server:    1,
	}
	transport.SetReceiveCallback(s.OnReceive)
	return s
}

// Configure задаёт серверы, пояс и таймаут, сбрасывает результат (StateOK, метка 0)
// и готовит 48-байтный запрос. Число серверов — до первого пустого слота.
// Без серверов возвращает ErrNoServers, и последующие TriggerSync ничего не делают.
func (s *Session) Configure(cfg Config) error {
	if s.phase != PhaseIdle {
		return ErrBusy
	}
	if len(cfg.Servers) > MaxServers {
		s.count = 0
		logger.Error("ntp: %d servers configured, max %d", len(cfg.Servers), MaxServers)
		return ErrTooManyServers
	}

	count := 0
	for count < len(cfg.Servers) && cfg.Servers[count] != "" {
		count++
	}
	s.servers = [MaxServers]string{}
	copy(s.servers[:], cfg.Servers[:count])

	s.tz = cfg.Timezone
	s.timeout = cfg.Timeout
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	s.port = cfg.Port
	if s.port == 0 {
		s.port = ntp.Port
	}
	s.local = cfg.LocalAddr

	*s.result = Result{State: StateOK}
	s.request = ntp.Request()
	s.server = 1
	s.retries = 0
	s.count = count

	if count == 0 {
		logger.Error("ntp: no server configured")
		return ErrNoServers
	}
	logger.Debugf("ntp: configured %d server(s) %v, tz %+03d:%02d, timeout %v",
		count, s.servers[:count], s.tz.Hours, s.tz.Minutes, s.timeout)
	return nil
}

// SetCallbacks заменяет получателя событий; nil — без уведомлений.
func (s *Session) SetCallbacks(h Handler) {
	if h == nil {
		h = HandlerFuncs{}
	}
	s.handler = h
}

// TriggerSync запускает один цикл измерения с первого сервера.
// Результат приходит асинхронно через Handler.OnDataReady.
func (s *Session) TriggerSync() error {
	if s.count == 0 {
		return ErrNotConfigured
	}
	if s.phase != PhaseIdle {
		return ErrBusy
	}
	s.server = 1
	s.retries = 0
	s.resolve()
	return nil
}

// FireAlarm передаёт внешний периодический сигнал получателю событий.
func (s *Session) FireAlarm() {
	s.handler.OnAlarm()
}

// OnResolved — завершение разрешения имени текущего сервера; ip == nil при неудаче.
func (s *Session) OnResolved(ip net.IP) {
	if s.phase != PhaseResolving {
		logger.Debugf("ntp: dns result ignored in phase %v", s.phase)
		return
	}
	if ip == nil {
		logger.Debugf("ntp: dns resolution FAIL for server %d %s", s.server, s.serverName())
		s.failover()
		return
	}
	logger.Debugf("ntp: dns resolution OK %s -> %s", s.serverName(), ip)
	s.result.State = StateDNSResolved

	if err := s.transport.Initialize(ip, s.local, s.port, s.timeout); err != nil {
		logger.Debugf("ntp: udp init %s: %v", ip, err)
		s.failover()
		return
	}
	s.phase = PhaseAwaitingReply
	logger.Debugf("ntp: sending request to server %d", s.server)
	s.transport.SendDatagram(s.request[:], s.onSent)
}

func (s *Session) onSent(err error) {
	if err == nil || s.phase != PhaseAwaitingReply {
		return
	}
	logger.Debugf("ntp: send to server %d: %v", s.server, err)
	s.failover()
}

// OnReceive — приём от транспорта. length == 0 означает таймаут ответа.
func (s *Session) OnReceive(buf []byte, length int) {
	if s.phase != PhaseAwaitingReply {
		logger.Debugf("ntp: datagram ignored in phase %v", s.phase)
		return
	}
	if length <= 0 {
		logger.Debugf("ntp: no reply from server %d %s", s.server, s.serverName())
		s.failover()
		return
	}
	if length > len(buf) {
		length = len(buf)
	}
	sec, err := ntp.TransmitSeconds(buf[:length])
	if err != nil {
		logger.Debugf("ntp: reply from server %d: %v", s.server, err)
		s.failover()
		return
	}

	s.result.LastServerUsed = s.server
	s.server = 1
	s.retries = 0
	s.result.State = StateOK
	s.result.Timestamp = sec
	s.result.DateTime = civil.Convert(sec, s.tz.Hours, s.tz.Minutes)
	s.cycles++
	s.phase = PhaseIdle

	logger.Debugf("ntp: data received of length %d, timestamp = %d", length, sec)
	s.handler.OnDataReady(s.result, length)
}

// failover расходует один повтор и переходит к следующему серверу по кругу;
// при исчерпанном бюджете завершает цикл с StateError.
func (s *Session) failover() {
	if s.retries < MaxRetries {
		s.retries++
		s.server = s.server%s.count + 1
		s.resolve()
		return
	}

	logger.Debugf("ntp: retries finished, terminated")
	s.result.State = StateError
	s.server = 1
	s.retries = 0
	s.phase = PhaseIdle
	s.handler.OnDataReady(s.result, 0)
}

func (s *Session) resolve() {
	s.phase = PhaseResolving
	logger.Debugf("ntp: started dns resolve of server %d %s", s.server, s.serverName())
	s.resolver.ResolveHostname(s.serverName(), s.OnResolved)
}

func (s *Session) serverName() string {
	return s.servers[s.server-1]
}

// TimezoneHour возвращает часы смещения пояса.
func (s *Session) TimezoneHour() int8 { return s.tz.Hours }

// TimezoneMinute возвращает минуты смещения пояса.
func (s *Session) TimezoneMinute() uint8 { return s.tz.Minutes }

// LastServerUsed возвращает 1-based номер сервера последнего успешного ответа (0 — не было).
func (s *Session) LastServerUsed() int { return s.result.LastServerUsed }

// State возвращает состояние общего результата.
func (s *Session) State() State { return s.result.State }

// Result возвращает общий результат; он перезаписывается следующим циклом.
func (s *Session) Result() *Result { return s.result }

// Phase возвращает фазу цикла.
func (s *Session) Phase() Phase { return s.phase }

// ServerCount возвращает число настроенных серверов (0–3).
func (s *Session) ServerCount() int { return s.count }

// Server возвращает имя сервера по 1-based номеру или "" вне диапазона.
func (s *Session) Server(n int) string {
	if n < 1 || n > s.count {
		return ""
	}
	return s.servers[n-1]
}

// Cycles возвращает число успешных циклов.
func (s *Session) Cycles() uint64 { return s.cycles }
