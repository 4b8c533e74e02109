// Package serialout публикует полученное время на последовательный порт: NMEA ZDA
// (UTC + смещение пояса) для ведомых устройств и строку текста для табло/консоли.
package serialout

import (
	"fmt"
	"io"
	"strings"

	"github.com/tarm/serial"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/civil"
)

// Publisher пишет сэмплы времени в порт.
type Publisher struct {
	w    io.WriteCloser
	name string
}

// Open открывает последовательный порт (baud 0 = 9600).
func Open(device string, baud int) (*Publisher, error) {
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return &Publisher{w: port, name: device}, nil
}

// New создаёт Publisher поверх произвольного writer (для тестов и pty).
func New(w io.WriteCloser, name string) *Publisher {
	return &Publisher{w: w, name: name}
}

// Name возвращает имя порта
func (p *Publisher) Name() string {
	return p.name
}

// Publish пишет ZDA и текстовую строку для метки raw и смещения пояса.
func (p *Publisher) Publish(raw uint32, tzHours int8, tzMinutes uint8) error {
	utc := civil.Convert(raw, 0, 0)
	local := civil.Convert(raw, tzHours, tzMinutes)
	out := FormatZDA(utc, tzHours, tzMinutes) + FormatLine(local, tzHours, tzMinutes)
	if _, err := p.w.Write([]byte(out)); err != nil {
		return fmt.Errorf("serial write %s: %w", p.name, err)
	}
	return nil
}

// Close закрывает порт
func (p *Publisher) Close() error {
	if p.w == nil {
		return nil
	}
	return p.w.Close()
}

// FormatZDA собирает $GPZDA,hhmmss.00,dd,mm,yyyy,±zh,zm*CS\r\n.
// Смещение пояса приводится к одному знаку: -3 ч + 30 мин → -02,30.
func FormatZDA(utc civil.DateTime, tzHours int8, tzMinutes uint8) string {
	sign, zh, zm := zone(tzHours, tzMinutes)
	body := fmt.Sprintf("GPZDA,%02d%02d%02d.00,%02d,%02d,%04d,%c%02d,%02d",
		utc.Hour, utc.Min, utc.Sec, utc.Date, int(utc.Month), utc.Year, sign, zh, zm)
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}

// FormatLine — строка вида "Friday, 1 March 2024 03:45:00 UTC+05:30\r\n".
func FormatLine(local civil.DateTime, tzHours int8, tzMinutes uint8) string {
	sign, zh, zm := zone(tzHours, tzMinutes)
	return fmt.Sprintf("%s, %d %s %d %02d:%02d:%02d UTC%c%02d:%02d\r\n",
		local.DayName(), local.Date, local.MonthName(), local.Year,
		local.Hour, local.Min, local.Sec, sign, zh, zm)
}

// Checksum — XOR всех байт между '$' и '*'.
func Checksum(body string) byte {
	body = strings.TrimPrefix(body, "$")
	if i := strings.IndexByte(body, '*'); i >= 0 {
		body = body[:i]
	}
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

func zone(tzHours int8, tzMinutes uint8) (sign byte, hours, minutes int) {
	total := int(tzHours)*60 + int(tzMinutes)
	sign = '+'
	if total < 0 {
		sign = '-'
		total = -total
	}
	return sign, total / 60, total % 60
}
