package netstack

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/logger"
)

// maxDatagram — буфер приёма; ответ NTP с расширениями помещается с запасом.
const maxDatagram = 512

var errNotInitialized = errors.New("udp: destination not initialized")

// UDP — транспорт с таймаутом ответа: после успешной отправки ровно один раз
// вызывает обработчик приёма с данными или с length == 0 по истечении таймаута.
// Каждая отправка идёт через новый сокет, поэтому запоздавший ответ прошлой
// попытки не попадает в следующую.
type UDP struct {
	stack *Stack

	mu      sync.Mutex
	remote  *net.UDPAddr
	local   *net.UDPAddr
	timeout time.Duration
	recv    func(buf []byte, length int)
}

// NewUDP создаёт транспорт поверх стека.
func NewUDP(stack *Stack) *UDP {
	return &UDP{stack: stack}
}

// Initialize задаёт адресата, локальный адрес (nil — любой) и таймаут следующей отправки.
func (u *UDP) Initialize(server, local net.IP, port int, timeout time.Duration) error {
	if server == nil {
		return errNotInitialized
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.remote = &net.UDPAddr{IP: server, Port: port}
	u.local = nil
	if local != nil {
		u.local = &net.UDPAddr{IP: local}
	}
	u.timeout = timeout
	return nil
}

// SetReceiveCallback задаёт обработчик приёма.
func (u *UDP) SetReceiveCallback(fn func(buf []byte, length int)) {
	u.mu.Lock()
	u.recv = fn
	u.mu.Unlock()
}

// SendDatagram отправляет buf адресату из Initialize. done получает результат
// отправки; при успехе затем приходит ровно одно событие приёма.
func (u *UDP) SendDatagram(buf []byte, done func(err error)) {
	u.mu.Lock()
	remote, local, timeout, recv := u.remote, u.local, u.timeout, u.recv
	u.mu.Unlock()

	payload := append([]byte(nil), buf...)
	go func() {
		if remote == nil {
			u.post(func() { done(errNotInitialized) })
			return
		}
		conn, err := net.DialUDP("udp", local, remote)
		if err != nil {
			u.post(func() { done(err) })
			return
		}
		defer conn.Close()

		if _, err := conn.Write(payload); err != nil {
			u.post(func() { done(err) })
			return
		}
		u.post(func() { done(nil) })

		reply := make([]byte, maxDatagram)
		n, err := readWithTimeout(conn, reply, timeout)
		if err != nil {
			logger.Debugf("udp %s: %v", remote, err)
			n = 0
		}
		if recv == nil {
			return
		}
		if n == 0 {
			u.post(func() { recv(nil, 0) })
			return
		}
		u.post(func() { recv(reply[:n], n) })
	}()
}

func readWithTimeout(conn *net.UDPConn, buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	return conn.Read(buf)
}

func (u *UDP) post(fn func()) {
	if err := u.stack.Post(fn); err != nil {
		logger.Debugf("udp: %v", err)
	}
}
