package ble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// DefaultBufferSize is the advertisement buffer between the adapter
// callback and the producer goroutine.
const DefaultBufferSize = 256

// scanStopTimeout bounds the wait for the adapter's scan loop to return
// after StopScan.
const scanStopTimeout = 2 * time.Second

// scanner is the part of *bluetooth.Adapter the source drives.
type scanner interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// BluetoothSource scans with the host's default Bluetooth adapter
// (BlueZ over D-Bus on Linux).
//
// The adapter callback never blocks: when the buffer is full the
// advertisement is dropped and counted.
type BluetoothSource struct {
	adapter     scanner
	bufferSize  int
	stopTimeout time.Duration
	logger      Logger

	enableMu sync.Mutex
	enabled  bool

	dropped atomic.Uint64
}

// NewBluetoothSource creates a source on bluetooth.DefaultAdapter.
// bufferSize <= 0 uses DefaultBufferSize.
func NewBluetoothSource(bufferSize int, logger Logger) *BluetoothSource {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &BluetoothSource{
		adapter:     bluetooth.DefaultAdapter,
		bufferSize:  bufferSize,
		stopTimeout: scanStopTimeout,
		logger:      logger,
	}
}

// Dropped returns how many advertisements were dropped on a full buffer.
func (s *BluetoothSource) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *BluetoothSource) enable() error {
	s.enableMu.Lock()
	defer s.enableMu.Unlock()

	if s.enabled {
		return nil
	}
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling bluetooth adapter: %w", err)
	}
	s.enabled = true
	return nil
}

// Scan implements Source.
func (s *BluetoothSource) Scan(ctx context.Context, handle func(Advertisement) error) error {
	if err := s.enable(); err != nil {
		return err
	}

	adverts := make(chan Advertisement, s.bufferSize)
	stopped := make(chan struct{})
	scanDone := make(chan error, 1)

	go func() {
		scanDone <- s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			adv := toAdvertisement(result, time.Now())
			select {
			case adverts <- adv:
			case <-stopped:
			default:
				if n := s.dropped.Add(1); n%1000 == 1 {
					s.logger.Warn("advertisement buffer full, dropping", "dropped_total", n)
				}
			}
		})
	}()

	// stop never waits on a scan loop that StopScan could not reach.
	stop := func() {
		close(stopped)
		if err := s.adapter.StopScan(); err != nil {
			s.logger.Warn("stopping scan", "error", err)
			return
		}
		timer := time.NewTimer(s.stopTimeout)
		defer timer.Stop()
		select {
		case <-scanDone:
		case <-timer.C:
			s.logger.Warn("scan loop did not stop in time", "timeout", s.stopTimeout)
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return ctx.Err()

		case err := <-scanDone:
			close(stopped)
			if err != nil {
				return fmt.Errorf("bluetooth scan: %w", err)
			}
			return nil

		case adv := <-adverts:
			if err := handle(adv); err != nil {
				stop()
				return err
			}
		}
	}
}

func toAdvertisement(result bluetooth.ScanResult, at time.Time) Advertisement {
	adv := Advertisement{
		Address:    result.Address.String(),
		RSSI:       int(result.RSSI),
		ObservedAt: at,
	}
	if result.AdvertisementPayload == nil {
		return adv
	}

	adv.Payload.LocalName = result.LocalName()
	for _, el := range result.ServiceData() {
		if !el.UUID.Is16Bit() {
			continue
		}
		adv.Payload.ServiceData = append(adv.Payload.ServiceData, ServiceData{
			UUID: el.UUID.Get16Bit(),
			Data: append([]byte(nil), el.Data...),
		})
	}
	return adv
}
