package session

import (
	"errors"
	"net"
	"time"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/civil"
)

const (
	// MaxServers — число слотов для серверов времени.
	MaxServers = 3
	// MaxRetries — общий на все серверы бюджет повторов за один цикл.
	MaxRetries = 5
	// DefaultTimeout — ожидание ответа сервера по умолчанию.
	DefaultTimeout = time.Second
)

var (
	// ErrNoServers — при настройке не задан ни один сервер; TriggerSync становится no-op.
	ErrNoServers = errors.New("session: no ntp server configured")
	// ErrTooManyServers — задано больше MaxServers слотов.
	ErrTooManyServers = errors.New("session: too many ntp servers")
	// ErrNotConfigured — TriggerSync без серверов.
	ErrNotConfigured = errors.New("session: not configured")
	// ErrBusy — TriggerSync во время незавершённого цикла.
	ErrBusy = errors.New("session: sync cycle in progress")
)

// State — состояние результата (как ESP8266_NTP_STATE).
type State int

const (
	StateOK          State = iota
	StateError             // повторы исчерпаны, метка времени недействительна
	StateDNSResolved       // промежуточная отметка: адрес текущего сервера получен
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateError:
		return "error"
	case StateDNSResolved:
		return "dns_resolved"
	default:
		return "unknown"
	}
}

// Phase — фаза цикла синхронизации.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseAwaitingReply
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolving:
		return "resolving"
	case PhaseAwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// Timezone — смещение пояса: часы со знаком и минуты, складываются.
type Timezone struct {
	Hours   int8
	Minutes uint8
}

// Offset возвращает смещение как time.Duration.
func (tz Timezone) Offset() time.Duration {
	return time.Duration(tz.Hours)*time.Hour + time.Duration(tz.Minutes)*time.Minute
}

// Result — общий результат сессии; перезаписывается каждым циклом.
// Календарные поля согласованы с Timestamp только при State == StateOK.
type Result struct {
	State          State
	Timestamp      uint32 // секунды NTP transmit timestamp
	LastServerUsed int    // 1-based; 0 — успешных ответов ещё не было
	civil.DateTime
}

// Config — параметры сессии, неизменные во время цикла.
type Config struct {
	// Servers — до трёх имён или адресов; список заканчивается на первом пустом.
	Servers  []string
	Timezone Timezone
	// Timeout — ожидание ответа; передаётся транспорту, который сам сообщает о таймауте.
	Timeout time.Duration
	// Port — UDP порт сервера (0 = 123).
	Port int
	// LocalAddr — опциональный локальный адрес.
	LocalAddr net.IP
}

// Handler — получатель событий сессии.
type Handler interface {
	// OnDataReady вызывается ровно один раз за цикл; length == 0 означает неудачу.
	OnDataReady(r *Result, length int)
	// OnAlarm вызывается по внешнему периодическому сигналу.
	OnAlarm()
}

// HandlerFuncs — Handler из функций; nil-поля игнорируются.
type HandlerFuncs struct {
	DataReady func(r *Result, length int)
	Alarm     func()
}

// OnDataReady вызывает DataReady, если задана.
func (h HandlerFuncs) OnDataReady(r *Result, length int) {
	if h.DataReady != nil {
		h.DataReady(r, length)
	}
}

// OnAlarm вызывает Alarm, если задана.
func (h HandlerFuncs) OnAlarm() {
	if h.Alarm != nil {
		h.Alarm()
	}
}

// Resolver — однократное разрешение имени. done получает nil при неудаче.
// done вызывается в контексте обработки событий стека, не синхронно из ResolveHostname.
type Resolver interface {
	ResolveHostname(name string, done func(ip net.IP))
}

// Transport — UDP транспорт стека.
// Initialize задаёт адресата и таймаут следующей отправки. После успешной отправки
// транспорт ровно один раз вызывает обработчик приёма: с данными ответа или с
// length == 0 по собственному таймауту.
type Transport interface {
	Initialize(server, local net.IP, port int, timeout time.Duration) error
	SetReceiveCallback(fn func(buf []byte, length int))
	SendDatagram(buf []byte, done func(err error))
}
