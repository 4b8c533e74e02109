// tc-ntp — SNTP-клиент для устройств без RTC: до трёх серверов с переходом на
// следующий при таймауте, одна метка времени за цикл, вывод календарного времени
// в заданном поясе.
//
// Использование:
//
//	tc-ntp -server pool.ntp.org -tz-hours 3      — один цикл, вывести время и выйти
//	tc-ntp -run -config tc-ntp.yml               — daemon: опрос каждые poll_interval
//	tc-ntp -compare -server time.google.com      — сверить с полным запросом RFC 5905
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/config"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/logger"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/session"
	"github.com/shiwa/timecard-mini/tc-ntp/pkg/ntpclient"
)

// serverList — повторяемый флаг -server.
type serverList []string

func (s *serverList) String() string { return strings.Join(*s, ",") }

func (s *serverList) Set(v string) error {
	if len(*s) >= session.MaxServers {
		return fmt.Errorf("не больше %d серверов", session.MaxServers)
	}
	*s = append(*s, v)
	return nil
}

func main() {
	var servers serverList
	flag.Var(&servers, "server", "NTP сервер (до 3 раз, переопределяет config)")
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию tc-ntp.yml)")
	tzHours := flag.Int("tz-hours", 0, "часы смещения пояса (переопределяет config)")
	tzMinutes := flag.Uint("tz-minutes", 0, "минуты смещения пояса, прибавляются к часам")
	timeout := flag.Duration("timeout", 0, "таймаут ответа (переопределяет config)")
	run := flag.Bool("run", false, "daemon: периодический опрос до SIGINT/SIGTERM")
	compare := flag.Bool("compare", false, "после успешного цикла сверить время полным запросом")
	debug := flag.Bool("debug", false, "отладочный вывод сессии")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *tzHours < -128 || *tzHours > 127 || *tzMinutes > 255 {
		log.Fatalf("смещение пояса вне диапазона: %d:%d", *tzHours, *tzMinutes)
	}
	if len(servers) > 0 {
		cfg.NTP.Servers = servers
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tz-hours":
			cfg.NTP.Timezone.Hours = int8(*tzHours)
		case "tz-minutes":
			cfg.NTP.Timezone.Minutes = uint8(*tzMinutes)
		}
	})
	if *timeout > 0 {
		cfg.NTP.Timeout = timeout.String()
	}
	if *debug {
		cfg.Debug = true
	}
	logger.Quiet = *quiet

	client, err := ntpclient.New(cfg, ntpclient.Options{})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *run {
		if err := client.RunDaemon(ctx); err != nil && err != context.Canceled {
			logger.Error("%v", err)
		}
		return
	}

	if !runOnce(ctx, client, cfg, *compare) {
		client.Close()
		os.Exit(1)
	}
}

// defaultConfigPath читается, если -config не задан и файл существует.
var defaultConfigPath = "tc-ntp.yml"

// loadConfig читает явно заданный конфиг (ошибка фатальна) или необязательный
// файл по умолчанию: его ошибка выводится, и работа идёт с умолчаниями.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	cfg, err := config.Load(defaultConfigPath)
	if err != nil {
		logger.Error("config %s: %v; using defaults", defaultConfigPath, err)
		return config.Default(), nil
	}
	return cfg, nil
}

func runOnce(ctx context.Context, client *ntpclient.Client, cfg *config.Config, compare bool) bool {
	s, err := client.RunOnce(ctx)
	if err != nil {
		logger.Error("%v", err)
		return false
	}
	tz := cfg.Session().Timezone
	fmt.Printf("%s, %d %s %d %02d:%02d:%02d (UTC%+03d:%02d) server %d %s, timestamp %d\n",
		s.DayName(), s.Date, s.MonthName(), s.Year, s.Hour, s.Min, s.Sec,
		tz.Hours, tz.Minutes, s.LastServerUsed, s.Server, s.Timestamp)

	if compare {
		cmp, err := ntpclient.Compare(s, cfg.NTP.Port, config.ParseDuration(cfg.NTP.Timeout, time.Second))
		if err != nil {
			logger.Error("%v", err)
			return false
		}
		fmt.Printf("compare %s: difference %v (sample has 1s resolution), clock offset %v, rtt %v, stratum %d\n",
			cmp.Server, cmp.Difference, cmp.ClockOffset, cmp.RTT, cmp.Stratum)
	}
	return true
}
