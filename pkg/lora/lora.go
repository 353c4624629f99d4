// Package lora receives remote control packets over a LoRa link.
package lora

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Receive when no packet arrived in time
var ErrTimeout = errors.New("lora: receive timeout")

// ErrClosed is returned after the radio has been closed
var ErrClosed = errors.New("lora: radio closed")

// Packet is one received frame
type Packet struct {
	Address  int       `json:"address"`
	Payload  []byte    `json:"payload"`
	RSSI     int       `json:"rssi"`
	SNR      float64   `json:"snr"`
	Received time.Time `json:"received"`
}

// Receiver blocks until a packet arrives, the timeout elapses (ErrTimeout)
// or ctx is done
type Receiver interface {
	Receive(ctx context.Context, timeout time.Duration) (Packet, error)
}
