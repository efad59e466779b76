package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// DispatcherConfig controls queueing.
type DispatcherConfig struct {
	BufferSize  int
	SendTimeout time.Duration
}

// Stats are delivery counters.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// Dispatcher delivers messages from a bounded queue on one goroutine.
// Enqueue never blocks: a full queue drops the message.
type Dispatcher struct {
	mailer  Mailer
	logger  *zap.Logger
	timeout time.Duration

	ch   chan Message
	done chan struct{}
	wg   sync.WaitGroup

	sent      atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. A nil logger discards logs.
func NewDispatcher(cfg DispatcherConfig, mailer Mailer, logger *zap.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}

	d := &Dispatcher{
		mailer:  mailer,
		logger:  logger.Named("notify"),
		timeout: cfg.SendTimeout,
		ch:      make(chan Message, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Warn("mail delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return
	}
	d.sent.Add(1)
}

// Enqueue schedules msg and reports whether it was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	select {
	case d.ch <- msg:
		return true
	case <-d.done:
		return false
	default:
		d.dropped.Add(1)
		d.logger.Warn("mail queue full, message dropped",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
		)
		return false
	}
}

// Close stops accepting messages and waits for the queue to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Stats returns the delivery counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}
