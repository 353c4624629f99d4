package lora

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/cwbeacon/pkg/logging"
	"go.bug.st/serial"
)

const (
	rcvPrefix = "+RCV="

	// ResponseTimeout bounds the wait for +OK or +ERR after an AT command
	ResponseTimeout = time.Second

	// maxHeaderField is the longest address or length field accepted
	maxHeaderField = 8
)

// errMalformed marks a frame that could not be parsed; the stream itself is
// still usable
var errMalformed = errors.New("malformed frame")

// ErrModule is returned when the module answers an AT command with +ERR
var ErrModule = errors.New("lora module error")

// SerialConfig configures a UART LoRa module speaking the RYLR896 AT
// command set
type SerialConfig struct {
	Device      string
	BaudRate    int
	Address     int
	NetworkID   int
	FrequencyHz int64
}

// SerialRadio receives frames from a UART LoRa module. A reader goroutine
// parses +RCV frames and queues them for Receive.
type SerialRadio struct {
	port      io.ReadWriteCloser
	packets   chan Packet
	responses chan string
	done      chan struct{}
	stopped   chan struct{}
	timeout   time.Duration
	errMu     sync.Mutex
	readErr   error

	writeMu sync.Mutex
	once    sync.Once
}

// OpenSerialRadio opens the serial device and configures the module
func OpenSerialRadio(cfg SerialConfig) (*SerialRadio, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	radio := NewSerialRadio(port)
	if err := radio.Configure(cfg); err != nil {
		radio.Close()
		return nil, err
	}

	logging.Infof("lora", "Radio on %s at %d baud (address %d, network %d)",
		cfg.Device, cfg.BaudRate, cfg.Address, cfg.NetworkID)
	return radio, nil
}

// NewSerialRadio wraps an already open port and starts the reader
func NewSerialRadio(port io.ReadWriteCloser) *SerialRadio {
	r := &SerialRadio{
		port:      port,
		packets:   make(chan Packet, 16),
		responses: make(chan string, 4),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		timeout:   ResponseTimeout,
	}
	go r.readLoop()
	return r
}

// Configure sends the module address, network and band settings. Each
// command must be acknowledged before the next is sent.
func (r *SerialRadio) Configure(cfg SerialConfig) error {
	commands := []string{
		fmt.Sprintf("AT+ADDRESS=%d", cfg.Address),
		fmt.Sprintf("AT+NETWORKID=%d", cfg.NetworkID),
	}
	if cfg.FrequencyHz > 0 {
		commands = append(commands, fmt.Sprintf("AT+BAND=%d", cfg.FrequencyHz))
	}

	for _, cmd := range commands {
		if err := r.command(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Send transmits payload to the given address
func (r *SerialRadio) Send(address int, payload []byte) error {
	cmd := fmt.Sprintf("AT+SEND=%d,%d,%s", address, len(payload), payload)
	return r.command(cmd)
}

// command writes one AT command and waits for the module's reply
func (r *SerialRadio) command(cmd string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	name := strings.SplitN(cmd, "=", 2)[0]

	// drop replies nobody waited for
	for len(r.responses) > 0 {
		<-r.responses
	}

	if _, err := io.WriteString(r.port, cmd+"\r\n"); err != nil {
		return fmt.Errorf("failed to write %q: %w", name, err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case reply := <-r.responses:
		if strings.HasPrefix(reply, "+ERR") {
			return fmt.Errorf("%w: %s answered %s", ErrModule, name, reply)
		}
		return nil
	case <-r.stopped:
		return fmt.Errorf("%s: %w", name, r.err())
	case <-timer.C:
		return fmt.Errorf("%w: no reply to %s within %v", ErrTimeout, name, r.timeout)
	}
}

// Receive waits for the next frame
func (r *SerialRadio) Receive(ctx context.Context, timeout time.Duration) (Packet, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case p, ok := <-r.packets:
		if !ok {
			return Packet{}, r.err()
		}
		return p, nil
	case <-timer.C:
		return Packet{}, ErrTimeout
	}
}

// Close stops the reader and closes the port
func (r *SerialRadio) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.port.Close()
	})
	return err
}

func (r *SerialRadio) err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, r.readErr)
	}
	return ErrClosed
}

func (r *SerialRadio) readLoop() {
	defer close(r.packets)
	defer close(r.stopped)
	reader := bufio.NewReader(r.port)

	for {
		packet, status, err := readFrame(reader)
		if errors.Is(err, errMalformed) {
			logging.Warnf("lora", "Dropping frame: %v", err)
			continue
		}
		if err != nil {
			select {
			case <-r.done:
			default:
				if err != io.EOF {
					logging.Errorf("lora", "Serial read failed: %v", err)
				}
				r.errMu.Lock()
				r.readErr = err
				r.errMu.Unlock()
			}
			return
		}

		if status != "" {
			if strings.HasPrefix(status, "+ERR") {
				logging.Warnf("lora", "Module reported %s", status)
			} else {
				logging.Debugf("lora", "Module: %s", status)
			}
			if strings.HasPrefix(status, "+OK") || strings.HasPrefix(status, "+ERR") {
				select {
				case r.responses <- status:
				default:
				}
			}
			continue
		}

		packet.Received = time.Now()
		select {
		case r.packets <- packet:
		case <-r.done:
			return
		}
	}
}

// readFrame reads either one +RCV frame or one status line. The payload is
// read by its declared length since it may contain commas or newlines.
func readFrame(r *bufio.Reader) (Packet, string, error) {
	head, err := r.Peek(len(rcvPrefix))
	if err != nil || string(head) != rcvPrefix {
		line, lerr := r.ReadString('\n')
		if lerr != nil && line == "" {
			return Packet{}, "", lerr
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return readFrame(r)
		}
		return Packet{}, line, nil
	}
	r.Discard(len(rcvPrefix))

	address, err := readField(r)
	if err != nil {
		return Packet{}, "", fmt.Errorf("%w: bad address: %v", errMalformed, err)
	}
	length, err := readField(r)
	if err != nil {
		return Packet{}, "", fmt.Errorf("%w: bad length: %v", errMalformed, err)
	}
	if length < 0 || length > 240 {
		skipLine(r)
		return Packet{}, "", fmt.Errorf("%w: bad length %d", errMalformed, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, "", fmt.Errorf("short payload: %w", err)
	}

	rest, err := r.ReadString('\n')
	if err != nil && rest == "" {
		return Packet{}, "", err
	}
	fields := strings.Split(strings.Trim(strings.TrimSpace(rest), ","), ",")
	if len(fields) != 2 {
		return Packet{}, "", fmt.Errorf("%w: bad trailer %q", errMalformed, rest)
	}

	rssi, err := strconv.Atoi(fields[0])
	if err != nil {
		return Packet{}, "", fmt.Errorf("%w: bad rssi: %v", errMalformed, err)
	}
	snr, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Packet{}, "", fmt.Errorf("%w: bad snr: %v", errMalformed, err)
	}

	return Packet{Address: address, Payload: payload, RSSI: rssi, SNR: snr}, "", nil
}

// readField reads one comma-terminated header integer. It never reads past
// the end of the line; on error the rest of the line is discarded.
func readField(r *bufio.Reader) (int, error) {
	var field []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch {
		case b == ',':
			n, err := strconv.Atoi(string(field))
			if err != nil {
				skipLine(r)
			}
			return n, err
		case b == '\n':
			return 0, fmt.Errorf("line ended in header after %q", field)
		case len(field) >= maxHeaderField:
			skipLine(r)
			return 0, fmt.Errorf("field longer than %d bytes", maxHeaderField)
		}
		field = append(field, b)
	}
}

func skipLine(r *bufio.Reader) {
	for {
		b, err := r.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}
