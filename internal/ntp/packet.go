// Package ntp — формат пакета NTP (RFC 5905) в объёме, нужном SNTP-клиенту:
// 48-байтный запрос клиента и чтение секунд transmit timestamp из ответа.
package ntp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// PacketSize — размер заголовка NTP без расширений и аутентификации.
	PacketSize = 48
	// Port — стандартный UDP порт NTP.
	Port = 123

	// ClientRequest — первый байт запроса: LI=0, VN=3, Mode=3 (client).
	ClientRequest byte = 0x1B

	transmitSecOffset = 40
)

// UnixOffset — секунды между эпохой NTP (1900-01-01) и эпохой Unix (1970-01-01).
const UnixOffset = 2208988800

// ErrShortPacket — ответ слишком короткий, чтобы содержать transmit timestamp.
var ErrShortPacket = errors.New("ntp: short packet")

// Request возвращает запрос клиента: байт 0 = 0x1B, остальные 47 байт нулевые.
func Request() [PacketSize]byte {
	var p [PacketSize]byte
	p[0] = ClientRequest
	return p
}

// TransmitSeconds читает секунды transmit timestamp (байты 40–43, big-endian).
// Остальные поля ответа игнорируются.
func TransmitSeconds(reply []byte) (uint32, error) {
	if len(reply) < transmitSecOffset+4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(reply))
	}
	return binary.BigEndian.Uint32(reply[transmitSecOffset : transmitSecOffset+4]), nil
}

// ToTime переводит секунды NTP (эра 0) во время UTC.
func ToTime(sec uint32) time.Time {
	return time.Unix(int64(sec)-UnixOffset, 0).UTC()
}

// FromTime переводит время в секунды NTP эры 0 (усечение до 32 бит).
func FromTime(t time.Time) uint32 {
	return uint32(t.Unix() + UnixOffset)
}
