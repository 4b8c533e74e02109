// Package ntpclient собирает SNTP-клиент целиком: конфиг → сетевой стек → сессия,
// и запускает один цикл (RunOnce) или периодический опрос (RunDaemon).
package ntpclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shiwa/timecard-mini/tc-ntp/internal/clockadj"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/config"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/logger"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/netstack"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/ntp"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/serialout"
	"github.com/shiwa/timecard-mini/tc-ntp/internal/session"
)

// ErrSyncFailed — все повторы цикла исчерпаны.
var ErrSyncFailed = errors.New("ntpclient: all ntp servers failed")

// Sample — копия результата одного цикла.
type Sample struct {
	session.Result
	Length   int       // длина ответа; 0 — неудача
	Server   string    // имя сервера, давшего ответ
	Received time.Time // локальное время получения
}

// OK сообщает, что цикл завершился ответом сервера.
func (s Sample) OK() bool {
	return s.State == session.StateOK && s.Length > 0
}

// Time возвращает метку сервера как время UTC.
func (s Sample) Time() time.Time {
	return ntp.ToTime(s.Timestamp)
}

// defaultPoll — период опроса, если poll_interval не задан или не положителен.
const defaultPoll = time.Minute

// Options — необязательные получатели событий и вывод.
type Options struct {
	OnSample func(Sample)
	OnAlarm  func()
	// Output заменяет порт из serial_output (например, для тестов).
	Output *serialout.Publisher
}

// Client — SNTP-клиент. RunOnce или RunDaemon вызывается один раз;
// повторный запуск возвращает netstack.ErrStopped.
type Client struct {
	cfg      *config.Config
	opts     Options
	stack    *netstack.Stack
	session  *session.Session
	adjuster *clockadj.Adjuster
	output   *serialout.Publisher
	samples  chan Sample
	started  atomic.Bool
}

// New создаёт клиент по конфигу. Ошибка конфигурации сессии (нет серверов) возвращается как есть.
func New(cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger.Debug = cfg.Debug

	stack := netstack.NewStack(0)
	resolver := netstack.NewResolver(stack, cfg.NTP.DNSServers, 0)
	transport := netstack.NewUDP(stack)
	sess := session.New(resolver, transport)
	if err := sess.Configure(cfg.Session()); err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		opts:    opts,
		stack:   stack,
		session: sess,
		output:  opts.Output,
		samples: make(chan Sample, 1),
	}
	if cfg.Clock.AdjustClock {
		c.adjuster = clockadj.NewAdjuster(config.ParseDuration(cfg.Clock.StepLimit, clockadj.DefaultStepLimit))
	}
	if c.output == nil && cfg.SerialOutput.Port != "" {
		out, err := serialout.Open(cfg.SerialOutput.Port, cfg.SerialOutput.Baud)
		if err != nil {
			return nil, err
		}
		c.output = out
	}
	sess.SetCallbacks(session.HandlerFuncs{
		DataReady: c.onDataReady,
		Alarm:     c.onAlarm,
	})
	return c, nil
}

// Session возвращает сессию; обращаться к ней можно только из обработчиков стека.
func (c *Client) Session() *session.Session {
	return c.session
}

// Close закрывает последовательный порт.
func (c *Client) Close() error {
	if c.output != nil {
		return c.output.Close()
	}
	return nil
}

// RunOnce выполняет один цикл и возвращает результат; при исчерпании повторов — ErrSyncFailed.
func (c *Client) RunOnce(ctx context.Context) (Sample, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.start(ctx); err != nil {
		return Sample{}, err
	}
	if err := c.trigger(ctx); err != nil {
		return Sample{}, err
	}
	select {
	case s := <-c.samples:
		if !s.OK() {
			return s, ErrSyncFailed
		}
		return s, nil
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}

// RunDaemon запускает цикл каждые poll_interval (первый — сразу) и сигнал alarm
// каждые alarm_interval до отмены ctx.
func (c *Client) RunDaemon(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.start(ctx); err != nil {
		return err
	}

	poll := config.ParseDuration(c.cfg.NTP.PollInterval, defaultPoll)
	if poll <= 0 {
		poll = defaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var alarmC <-chan time.Time
	if d := config.ParseDuration(c.cfg.NTP.AlarmInterval, 0); d > 0 {
		alarm := time.NewTicker(d)
		defer alarm.Stop()
		alarmC = alarm.C
	}

	logger.Info("ntp: servers=%d poll=%v timeout=%v adjust_clock=%v",
		c.session.ServerCount(), poll, c.cfg.Session().Timeout, c.adjuster != nil)

	if err := c.trigger(ctx); err != nil && !errors.Is(err, session.ErrBusy) {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.trigger(ctx); err != nil {
				if !errors.Is(err, session.ErrBusy) {
					return err
				}
				logger.Info("ntp: previous cycle still in progress, skipping")
			}
		case <-alarmC:
			if err := c.stack.Post(c.session.FireAlarm); err != nil {
				return err
			}
		}
	}
}

// start запускает стек; стек живёт один запуск клиента.
func (c *Client) start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return netstack.ErrStopped
	}
	go func() { _ = c.stack.Run(ctx) }()
	return nil
}

func (c *Client) trigger(ctx context.Context) error {
	var err error
	if doErr := c.stack.Do(ctx, func() { err = c.session.TriggerSync() }); doErr != nil {
		return doErr
	}
	return err
}

// onDataReady выполняется в контексте стека.
func (c *Client) onDataReady(r *session.Result, length int) {
	s := Sample{
		Result:   *r,
		Length:   length,
		Received: time.Now(),
	}
	if s.OK() {
		s.Server = c.session.Server(r.LastServerUsed)
		logger.Info("ntp: %s, %d %s %d %02d:%02d:%02d (server %d %s)",
			s.DayName(), s.Date, s.MonthName(), s.Year, s.Hour, s.Min, s.Sec,
			s.LastServerUsed, s.Server)
		c.apply(s)
	} else {
		logger.Error("ntp: no reply from %d server(s), retries exhausted", c.session.ServerCount())
	}

	if c.opts.OnSample != nil {
		c.opts.OnSample(s)
	}
	select {
	case c.samples <- s:
	default:
	}
}

func (c *Client) apply(s Sample) {
	if c.adjuster != nil {
		action, offset, err := c.adjuster.Apply(s.Time())
		if err != nil {
			logger.Error("%v", err)
		} else {
			logger.Info("ntp: clock %v, offset %v", action, offset)
		}
	}
	if c.output != nil {
		if err := c.output.Publish(s.Timestamp, c.session.TimezoneHour(), c.session.TimezoneMinute()); err != nil {
			logger.Error("%v", err)
		}
	}
}

func (c *Client) onAlarm() {
	logger.Debugf("ntp: alarm")
	if c.opts.OnAlarm != nil {
		c.opts.OnAlarm()
	}
}
