// Package remote applies configuration commands received over the LoRa
// control link to the live beacon configuration.
package remote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/logging"
	"github.com/dougsko/cwbeacon/pkg/lora"
	"github.com/dougsko/cwbeacon/pkg/protocol"
)

// Command sources
const (
	SourceLoRa = "lora"
	SourceHTTP = "http"
)

// Outcomes recorded in the command journal
const (
	StatusApplied       = "applied"
	StatusRejected      = "rejected"
	StatusPersisted     = "persisted"
	StatusPersistFailed = "persist_failed"
)

// LEDPulse is how long the activity LED stays lit per accepted packet
const LEDPulse = 100 * time.Millisecond

// queueSize bounds the packets received but not yet applied
const queueSize = 16

// ConfigStore persists the live settings
type ConfigStore interface {
	Save(beacon.Settings) error
}

// CommandRecord describes one command and what became of it
type CommandRecord struct {
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	Line   string    `json:"line"`
	Field  string    `json:"field"`
	Value  string    `json:"value"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	RSSI   *int      `json:"rssi,omitempty"`
	SNR    *float64  `json:"snr,omitempty"`
}

// CommandRecorder journals commands
type CommandRecorder interface {
	RecordCommand(CommandRecord) error
}

// ActivityIndicator signals packet reception
type ActivityIndicator interface {
	PulseLoRaLED(d time.Duration) error
}

// Options configures a Listener. Zero values select the defaults used by
// the daemon, except Timeout which must be set.
type Options struct {
	Timeout    time.Duration
	Jitter     int // seconds; each wait adds 1..Jitter
	StartDelay time.Duration

	Store     ConfigStore
	Recorder  CommandRecorder
	Indicator ActivityIndicator
	Heartbeat beacon.Heartbeat
	Sleeper   beacon.Sleeper

	// Rand returns a value in [0, n); math/rand/v2 when nil
	Rand func(n int) int
}

// Listener receives remote control packets and applies them
type Listener struct {
	radio  lora.Receiver
	config *beacon.Config
	opts   Options

	wg sync.WaitGroup
	// serializes command execution across LoRa packets and local submits
	execMu sync.Mutex

	mu       sync.Mutex
	received uint64
	applied  uint64
}

// NewListener creates a listener for radio writing into cfg
func NewListener(radio lora.Receiver, cfg *beacon.Config, opts Options) *Listener {
	if opts.Sleeper == nil {
		opts.Sleeper = beacon.TimerSleeper{}
	}
	if opts.Heartbeat == nil {
		opts.Heartbeat = quietHeartbeat{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.Intn
	}
	return &Listener{radio: radio, config: cfg, opts: opts}
}

type quietHeartbeat struct{}

func (quietHeartbeat) Beat()                {}
func (quietHeartbeat) Expect(time.Duration) {}

// Stats returns the number of packets received and commands applied
func (l *Listener) Stats() (received, applied uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received, l.applied
}

// NextTimeout returns the receive window: the base timeout plus a random
// 1..Jitter seconds so neighbouring beacons drift apart
func (l *Listener) NextTimeout() time.Duration {
	timeout := l.opts.Timeout
	if l.opts.Jitter > 0 {
		timeout += time.Duration(1+l.opts.Rand(l.opts.Jitter)) * time.Second
	}
	return timeout
}

// Run receives packets until ctx is cancelled or the radio fails. Packets
// are handed to a single worker and applied in arrival order; Run waits for
// the worker to drain the queue before returning.
func (l *Listener) Run(ctx context.Context) error {
	queue := make(chan lora.Packet, queueSize)
	l.wg.Add(1)
	go l.work(queue)
	defer l.wg.Wait()
	defer close(queue)

	if l.opts.StartDelay > 0 {
		l.opts.Heartbeat.Expect(l.opts.StartDelay)
		if err := l.opts.Sleeper.Sleep(ctx, l.opts.StartDelay); err != nil {
			return err
		}
	}
	logging.Info("lora", "Listener started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		timeout := l.NextTimeout()
		logging.Debugf("lora", "Waiting for lora packet (timeout:%v)", timeout)

		l.opts.Heartbeat.Expect(timeout)
		packet, err := l.radio.Receive(ctx, timeout)
		l.opts.Heartbeat.Beat()

		switch {
		case err == nil:
			select {
			case queue <- packet:
			case <-ctx.Done():
				return ctx.Err()
			}
		case errors.Is(err, lora.ErrTimeout):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, lora.ErrClosed):
			return fmt.Errorf("lora receive: %w", err)
		default:
			logging.Errorf("lora", "Receive failed: %v", err)
			l.opts.Heartbeat.Expect(time.Second)
			if err := l.opts.Sleeper.Sleep(ctx, time.Second); err != nil {
				return err
			}
		}
	}
}

func (l *Listener) work(queue <-chan lora.Packet) {
	defer l.wg.Done()
	for packet := range queue {
		l.HandlePacket(packet)
	}
}

// HandlePacket decodes one packet and executes every command line in it
func (l *Listener) HandlePacket(packet lora.Packet) {
	text, err := protocol.Decode(packet.Payload)
	if errors.Is(err, protocol.ErrBadMagic) {
		logging.Debugf("lora", "Ignoring foreign packet (%d bytes)", len(packet.Payload))
		return
	}
	if err != nil {
		logging.Warnf("lora", "Lost packet, unable to decode, skipping: %v", err)
		return
	}

	l.mu.Lock()
	l.received++
	l.mu.Unlock()

	logging.Info("lora", "RX", logging.Fields{"rssi": packet.RSSI, "snr": packet.SNR, "data": text})

	if l.opts.Indicator != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := l.opts.Indicator.PulseLoRaLED(LEDPulse); err != nil {
				logging.Warnf("lora", "LED pulse failed: %v", err)
			}
		}()
	}

	l.execMu.Lock()
	defer l.execMu.Unlock()

	station := l.config.Snapshot().StationName
	for _, line := range protocol.Lines(text) {
		cmd, err := protocol.ParseLine(station, line)
		if err != nil {
			l.reject(SourceLoRa, line, err, &packet)
			continue
		}
		l.execute(cmd, SourceLoRa, line, &packet)
	}
}

// Submit parses and executes a "field=value" command from a local source
func (l *Listener) Submit(source, text string) (protocol.Command, error) {
	l.execMu.Lock()
	defer l.execMu.Unlock()

	cmd, err := protocol.ParseCommand(text)
	if err != nil {
		l.reject(source, text, err, nil)
		return nil, err
	}
	return cmd, l.execute(cmd, source, text, nil)
}

func (l *Listener) reject(source, line string, err error, packet *lora.Packet) {
	var verr *protocol.ValidationError
	if !errors.As(err, &verr) {
		// other stations' traffic and unknown fields are not our business
		logging.Debugf("lora", "Ignoring %q: %v", line, err)
		return
	}

	logging.Warnf("lora", "Rejected %q: %v", line, err)
	l.record(CommandRecord{
		Source: source,
		Line:   line,
		Field:  verr.Field,
		Value:  verr.Value,
		Status: StatusRejected,
		Error:  err.Error(),
	}, packet)
}

func (l *Listener) execute(cmd protocol.Command, source, line string, packet *lora.Packet) error {
	rec := CommandRecord{
		Source: source,
		Line:   line,
		Field:  cmd.Field(),
		Value:  cmd.Value(),
	}

	if _, ok := cmd.(protocol.WriteConfig); ok {
		err := l.persist()
		if err != nil {
			rec.Status = StatusPersistFailed
			rec.Error = err.Error()
		} else {
			rec.Status = StatusPersisted
		}
		l.record(rec, packet)
		return err
	}

	if err := protocol.Apply(cmd, l.config); err != nil {
		rec.Status = StatusRejected
		rec.Error = err.Error()
		l.record(rec, packet)
		return err
	}

	l.mu.Lock()
	l.applied++
	l.mu.Unlock()

	logging.Infof("lora", "%s:%s", cmd.Field(), cmd.Value())
	rec.Status = StatusApplied
	l.record(rec, packet)
	return nil
}

func (l *Listener) persist() error {
	if l.opts.Store == nil {
		err := errors.New("no config store")
		logging.Errorf("lora", "Cannot write config: %v", err)
		return err
	}
	if err := l.opts.Store.Save(l.config.Snapshot()); err != nil {
		logging.Errorf("lora", "Failed to write config: %v (filesystem not available?)", err)
		return err
	}
	logging.Info("lora", "Wrote config")
	return nil
}

func (l *Listener) record(rec CommandRecord, packet *lora.Packet) {
	if l.opts.Recorder == nil {
		return
	}
	rec.Time = time.Now()
	if packet != nil {
		rssi, snr := packet.RSSI, packet.SNR
		rec.RSSI = &rssi
		rec.SNR = &snr
	}
	if err := l.opts.Recorder.RecordCommand(rec); err != nil {
		logging.Warnf("lora", "Failed to journal command: %v", err)
	}
}
