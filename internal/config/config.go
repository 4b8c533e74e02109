package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/netstack"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/session"
)

// Config — конфигурация tc-ntp (YAML)
type Config struct {
	NTP          NTPConfig          `yaml:"ntp"`
	Debug        bool               `yaml:"debug"`
	Clock        ClockConfig        `yaml:"clock"`
	SerialOutput SerialOutputConfig `yaml:"serial_output"`
}

// NTPConfig — серверы, пояс, таймаут и период опроса
type NTPConfig struct {
	Servers      []string       `yaml:"servers"` // 1–3, список заканчивается на первом пустом
	Timezone     TimezoneConfig `yaml:"timezone"`
	Timeout      string         `yaml:"timeout"` // ожидание ответа, например "1s"
	Port         int            `yaml:"port"`
	LocalAddress string         `yaml:"local_address"`
	// DNS: пустой список — системный резолвер; use_default_dns подставляет 8.8.8.8/8.8.4.4
	DNSServers    []string `yaml:"dns_servers"`
	UseDefaultDNS bool     `yaml:"use_default_dns"`
	PollInterval  string   `yaml:"poll_interval"`  // период TriggerSync в режиме daemon
	AlarmInterval string   `yaml:"alarm_interval"` // период OnAlarm; пусто = выключено
}

// TimezoneConfig — смещение пояса; минуты прибавляются к часам независимо от знака
type TimezoneConfig struct {
	Hours   int8  `yaml:"hours"`
	Minutes uint8 `yaml:"minutes"`
}

// ClockConfig — установка системных часов по полученному времени
type ClockConfig struct {
	AdjustClock bool   `yaml:"adjust_clock"`
	StepLimit   string `yaml:"step_limit"` // порог step vs slew, например "200ms"; пусто = 500ms; больше 500ms обрезается (предел adjtimex)
}

// SerialOutputConfig — вывод времени на последовательный порт (NMEA ZDA + строка текста)
type SerialOutputConfig struct {
	Port string `yaml:"port"` // пусто = выключено
	Baud int    `yaml:"baud"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		NTP: NTPConfig{
			Servers:      []string{"pool.ntp.org"},
			Timeout:      "1s",
			Port:         123,
			PollInterval: "1m",
		},
		Clock: ClockConfig{
			StepLimit: "500ms",
		},
		SerialOutput: SerialOutputConfig{
			Baud: 9600,
		},
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// validate проверяет значения, которые иначе молча заменились бы умолчаниями.
func validate(c *Config) error {
	durations := []struct {
		key      string
		val      string
		positive bool
	}{
		{"ntp.timeout", c.NTP.Timeout, true},
		{"ntp.poll_interval", c.NTP.PollInterval, true},
		{"ntp.alarm_interval", c.NTP.AlarmInterval, false},
		{"clock.step_limit", c.Clock.StepLimit, false},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		v, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("%s: %q must be positive", d.key, d.val)
		}
	}
	if c.NTP.LocalAddress != "" && net.ParseIP(c.NTP.LocalAddress) == nil {
		return fmt.Errorf("ntp.local_address: invalid IP %q", c.NTP.LocalAddress)
	}
	return nil
}

func applyDefaults(c *Config) {
	d := Default()
	if len(c.NTP.Servers) == 0 {
		c.NTP.Servers = d.NTP.Servers
	}
	if c.NTP.Timeout == "" {
		c.NTP.Timeout = d.NTP.Timeout
	}
	if c.NTP.Port == 0 {
		c.NTP.Port = d.NTP.Port
	}
	if c.NTP.PollInterval == "" {
		c.NTP.PollInterval = d.NTP.PollInterval
	}
	if len(c.NTP.DNSServers) == 0 && c.NTP.UseDefaultDNS {
		c.NTP.DNSServers = append([]string(nil), netstack.DefaultDNSServers...)
	}
	if c.Clock.StepLimit == "" {
		c.Clock.StepLimit = d.Clock.StepLimit
	}
	if c.SerialOutput.Baud == 0 {
		c.SerialOutput.Baud = d.SerialOutput.Baud
	}
}

// Session возвращает конфигурацию сессии NTP.
func (c *Config) Session() session.Config {
	cfg := session.Config{
		Servers: c.NTP.Servers,
		Timezone: session.Timezone{
			Hours:   c.NTP.Timezone.Hours,
			Minutes: c.NTP.Timezone.Minutes,
		},
		Timeout: ParseDuration(c.NTP.Timeout, session.DefaultTimeout),
		Port:    c.NTP.Port,
	}
	if c.NTP.LocalAddress != "" {
		cfg.LocalAddr = net.ParseIP(c.NTP.LocalAddress)
	}
	return cfg
}

// ParseDuration парсит длительность из конфига; пустая строка или ошибка — defaultVal.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
