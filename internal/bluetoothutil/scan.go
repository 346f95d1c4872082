package bluetoothutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// ErrDeviceNotFound is returned when discovery ends without a name match.
var ErrDeviceNotFound = errors.New("bluetooth device not found")

// ScanDevice is one advertising peripheral seen during a scan.
type ScanDevice struct {
	Name           string
	Address        string
	RSSI           int
	HasUARTService bool

	addr bluetooth.Address
}

// BluetoothAddress returns the address usable with Adapter.Connect.
func (d ScanDevice) BluetoothAddress() bluetooth.Address {
	return d.addr
}

func StopScan(adapter *bluetooth.Adapter) error {
	err := adapter.StopScan()
	if err != nil && !IsBenignStopScanError(err) {
		return err
	}

	return nil
}

func NormalizeScanError(err error) error {
	if err == nil || IsBenignStopScanError(err) {
		return nil
	}

	return err
}

// Scan collects advertising devices until ctx is done. A deadline ending the
// scan is not an error.
func Scan(ctx context.Context, adapter *bluetooth.Adapter) ([]ScanDevice, error) {
	if err := StopScan(adapter); err != nil {
		return nil, fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	var (
		mu      sync.Mutex
		devices = make(map[string]ScanDevice)
	)
	scanErrCh := make(chan error, 1)

	go func() {
		scanErrCh <- runScan(adapter, func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			entry := scanDeviceFromResult(result)
			if entry.Address == "" {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			if existing, ok := devices[entry.Address]; ok {
				devices[entry.Address] = mergeScanDevice(existing, entry)
				return
			}
			devices[entry.Address] = entry
		})
	}()

	if err := awaitScanCompletion(ctx, adapter, scanErrCh); err != nil {
		return nil, err
	}

	mu.Lock()
	result := make([]ScanDevice, 0, len(devices))
	for _, device := range devices {
		result = append(result, device)
	}
	mu.Unlock()

	SortScanDevices(result)
	return result, nil
}

// Discover scans until the first device whose advertised name contains
// nameFilter (case-insensitive) and returns it.
func Discover(ctx context.Context, adapter *bluetooth.Adapter, nameFilter string) (ScanDevice, error) {
	nameFilter = strings.TrimSpace(nameFilter)
	if nameFilter == "" {
		return ScanDevice{}, errors.New("device name filter is empty")
	}
	found, err := FindFirst(ctx, adapter, func(d ScanDevice) bool { return MatchesName(d.Name, nameFilter) })
	if errors.Is(err, ErrDeviceNotFound) {
		return found, fmt.Errorf("%w: no device named like %q", err, nameFilter)
	}

	return found, err
}

// DiscoverAddress scans until addr advertises. On BlueZ this registers a
// device that was not seen since boot so it can be connected directly.
func DiscoverAddress(ctx context.Context, adapter *bluetooth.Adapter, addr bluetooth.Address) (ScanDevice, error) {
	want := strings.ToUpper(addr.String())
	found, err := FindFirst(ctx, adapter, func(d ScanDevice) bool { return d.Address == want })
	if errors.Is(err, ErrDeviceNotFound) {
		return found, fmt.Errorf("%w: %s did not advertise; power it on and keep it nearby", err, want)
	}

	return found, err
}

// FindFirst scans until match accepts a device or ctx is done.
func FindFirst(ctx context.Context, adapter *bluetooth.Adapter, match func(ScanDevice) bool) (ScanDevice, error) {
	if err := StopScan(adapter); err != nil {
		return ScanDevice{}, fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	foundCh := make(chan ScanDevice, 1)
	scanErrCh := make(chan error, 1)
	go func() {
		scanErrCh <- runScan(adapter, func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			entry := scanDeviceFromResult(result)
			if entry.Address == "" || !match(entry) {
				return
			}
			select {
			case foundCh <- entry:
				_ = a.StopScan()
			default:
			}
		})
	}()

	var (
		found ScanDevice
		ok    bool
	)
	select {
	case found = <-foundCh:
		ok = true
	case <-ctx.Done():
		_ = StopScan(adapter)
	}
	if err := NormalizeScanError(<-scanErrCh); err != nil {
		return ScanDevice{}, fmt.Errorf("scan bluetooth devices: %w", err)
	}
	if !ok {
		// A match may land while the scan is being stopped.
		select {
		case found = <-foundCh:
		default:
			return ScanDevice{}, ErrDeviceNotFound
		}
	}

	return found, nil
}

// MatchesName reports whether an advertised name contains the filter.
func MatchesName(name, filter string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	filter = strings.ToLower(strings.TrimSpace(filter))
	if name == "" || filter == "" {
		return false
	}

	return strings.Contains(name, filter)
}

func runScan(adapter *bluetooth.Adapter, callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		err := adapter.Scan(callback)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsScanAlreadyInProgressError(err) {
			return err
		}
		if stopErr := StopScan(adapter); stopErr != nil {
			return errors.Join(err, fmt.Errorf("stop stale bluetooth scan: %w", stopErr))
		}
	}
	return lastErr
}

func awaitScanCompletion(ctx context.Context, adapter *bluetooth.Adapter, scanErrCh <-chan error) error {
	select {
	case err := <-scanErrCh:
		if err = NormalizeScanError(err); err != nil {
			return fmt.Errorf("scan bluetooth devices: %w", err)
		}
		return nil
	case <-ctx.Done():
		if err := StopScan(adapter); err != nil {
			return fmt.Errorf("stop bluetooth scan: %w", err)
		}
		err := <-scanErrCh
		if err = NormalizeScanError(err); err != nil {
			return fmt.Errorf("scan bluetooth devices: %w", err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil
		}
		return ctx.Err()
	}
}

func scanDeviceFromResult(result bluetooth.ScanResult) ScanDevice {
	return ScanDevice{
		Name:           strings.TrimSpace(result.LocalName()),
		Address:        strings.ToUpper(strings.TrimSpace(result.Address.String())),
		RSSI:           int(result.RSSI),
		HasUARTService: result.HasServiceUUID(UARTServiceUUID()),
		addr:           result.Address,
	}
}

func mergeScanDevice(existing, next ScanDevice) ScanDevice {
	merged := existing

	if len(strings.TrimSpace(next.Name)) > len(strings.TrimSpace(merged.Name)) {
		merged.Name = next.Name
	}
	if next.RSSI > merged.RSSI {
		merged.RSSI = next.RSSI
	}
	merged.HasUARTService = merged.HasUARTService || next.HasUARTService

	return merged
}

// SortScanDevices orders UART-capable devices first, then by signal.
func SortScanDevices(devices []ScanDevice) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HasUARTService != devices[j].HasUARTService {
			return devices[i].HasUARTService
		}
		if devices[i].RSSI != devices[j].RSSI {
			return devices[i].RSSI > devices[j].RSSI
		}

		leftName := strings.ToLower(strings.TrimSpace(devices[i].Name))
		rightName := strings.ToLower(strings.TrimSpace(devices[j].Name))
		if leftName != rightName {
			return leftName < rightName
		}

		return devices[i].Address < devices[j].Address
	})
}
