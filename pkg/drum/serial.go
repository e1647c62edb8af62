package drum

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Serial reads the trace stream from the drum's serial port.
type Serial struct {
	port     string
	baudRate int

	conn      serial.Port
	records   chan Record
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

var _ Device = (*Serial)(nil)

// NewSerial creates a device reading from the named port. Zero baudRate and
// bufSize select the defaults.
func NewSerial(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		records:  make(chan Record, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns the names of available serial ports.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts reading records.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readRecords()

	return nil
}

// Close stops reading and closes the port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// Records returns the channel of parsed trace records.
func (d *Serial) Records() <-chan Record {
	return d.records
}

// IsConnected reports whether the port is currently open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readRecords scans trace lines and forwards parsed records. Firmware log
// lines that are not trace records are skipped quietly. The records channel
// is closed here, by its only sender, so Close can never race a send against
// the close.
func (d *Serial) readRecords() {
	defer close(d.records)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readRecords: %v", r)
		}
	}()

	scanner := bufio.NewScanner(d.conn)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && err != io.EOF {
					log.Printf("Error reading from serial port: %v", err)
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			rec, err := parseLine(line)
			if err != nil {
				continue
			}

			select {
			case d.records <- rec:
			case <-d.ctx.Done():
				return
			default:
				// Channel full: the monitor is behind, skip.
			}
		}
	}
}
