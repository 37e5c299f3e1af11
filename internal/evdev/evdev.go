//go:build linux

// Package evdev reads Linux input devices (/dev/input/eventX) directly
// through the evdev character device interface.
package evdev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"keebie/internal/device"
	"keebie/internal/ledger"
)

// Event types and values from linux/input-event-codes.h.
const (
	evSyn = 0x00
	evKey = 0x01
	evLed = 0x11

	synReport = 0x00

	keyUp     = 0
	keyDown   = 1
	keyRepeat = 2

	ledMax = 0x0f
)

// ioctl request encoding (linux/ioctl.h _IOC).
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// evioCGrab is EVIOCGRAB = _IOW('E', 0x90, int).
func evioCGrab() uintptr {
	return ioc(iocWrite, 'E', 0x90, unsafe.Sizeof(int32(0)))
}

// evioCGBit is EVIOCGBIT(ev, len) = _IOC(_IOC_READ, 'E', 0x20 + ev, len).
func evioCGBit(ev, length uintptr) uintptr {
	return ioc(iocRead, 'E', 0x20+ev, length)
}

// evioCGName is EVIOCGNAME(len) = _IOC(_IOC_READ, 'E', 0x06, len).
func evioCGName(length uintptr) uintptr {
	return ioc(iocRead, 'E', 0x06, length)
}

// eventSize is sizeof(struct input_event): a timeval followed by
// type (u16), code (u16) and value (s32).
var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// Device is an open evdev node. It implements device.Handle.
type Device struct {
	mu       sync.Mutex
	path     string
	fd       int
	writable bool
	closed   bool
	buf      []byte
}

var _ device.Handle = (*Device)(nil)

// Open opens path non-blocking. It falls back to read-only when the node
// is not writable, in which case indicators cannot be set.
func Open(path string) (device.Handle, error) {
	return OpenDevice(path)
}

// OpenDevice is Open returning the concrete type.
func OpenDevice(path string) (*Device, error) {
	writable := true
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EROFS) {
		writable = false
		fd, err = unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	}
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	return &Device{
		path:     path,
		fd:       fd,
		writable: writable,
		buf:      make([]byte, eventSize*64),
	}, nil
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// Name returns the kernel's name for the device.
func (d *Device) Name() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", device.ErrClosed
	}

	buf := make([]byte, 256)
	if err := d.ioctlPtr(evioCGName(uintptr(len(buf))), unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("EVIOCGNAME %s: %w", d.path, err)
	}
	return unix.ByteSliceToString(buf), nil
}

// Grab implements device.Handle.
func (d *Device) Grab() error {
	return d.grab(1)
}

// Ungrab implements device.Handle.
func (d *Device) Ungrab() error {
	return d.grab(0)
}

func (d *Device) grab(v int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.ErrClosed
	}
	if err := unix.IoctlSetInt(d.fd, uint(evioCGrab()), v); err != nil {
		return fmt.Errorf("EVIOCGRAB %s: %w", d.path, err)
	}
	return nil
}

// Close implements device.Handle.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}

// Read implements device.Handle. Autorepeat events are dropped.
func (d *Device) Read() ([]ledger.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, device.ErrClosed
	}

	var events []ledger.Event
	for {
		n, err := unix.Read(d.fd, d.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				break
			}
			return events, fmt.Errorf("read %s: %w", d.path, err)
		}
		if n == 0 {
			return events, fmt.Errorf("read %s: %w", d.path, unix.ENODEV)
		}
		events = appendKeyEvents(events, d.buf[:n])
		if n < len(d.buf) {
			break
		}
	}

	if len(events) == 0 {
		return nil, device.ErrWouldBlock
	}
	return events, nil
}

// appendKeyEvents decodes the EV_KEY press/release records in data.
func appendKeyEvents(events []ledger.Event, data []byte) []ledger.Event {
	off := eventSize - 8
	for len(data) >= eventSize {
		rec := data[:eventSize]
		data = data[eventSize:]

		typ := binary.LittleEndian.Uint16(rec[off : off+2])
		code := binary.LittleEndian.Uint16(rec[off+2 : off+4])
		value := int32(binary.LittleEndian.Uint32(rec[off+4 : off+8]))

		if typ != evKey || value == keyRepeat {
			continue
		}
		events = append(events, ledger.Event{Key: KeyName(code), Down: value == keyDown})
	}
	return events
}

// SetIndicator implements device.Handle.
func (d *Device) SetIndicator(code int, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.ErrClosed
	}
	if !d.writable {
		return fmt.Errorf("set indicator on %s: %w", d.path, unix.EACCES)
	}

	value := int32(0)
	if on {
		value = 1
	}
	buf := make([]byte, 2*eventSize)
	encodeEvent(buf[:eventSize], evLed, uint16(code), value)
	encodeEvent(buf[eventSize:], evSyn, synReport, 0)

	if _, err := unix.Write(d.fd, buf); err != nil {
		return fmt.Errorf("set indicator %d on %s: %w", code, d.path, err)
	}
	return nil
}

func encodeEvent(rec []byte, typ, code uint16, value int32) {
	off := eventSize - 8
	clear(rec[:off])
	binary.LittleEndian.PutUint16(rec[off:], typ)
	binary.LittleEndian.PutUint16(rec[off+2:], code)
	binary.LittleEndian.PutUint32(rec[off+4:], uint32(value))
}

// Indicators implements device.Handle.
func (d *Device) Indicators() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}

	var bits [(ledMax + 8) / 8]byte
	if err := d.ioctlPtr(evioCGBit(evLed, uintptr(len(bits))), unsafe.Pointer(&bits[0])); err != nil {
		return nil
	}

	var codes []int
	for code := 0; code <= ledMax; code++ {
		if bits[code/8]&(1<<(code%8)) != 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

func (d *Device) ioctlPtr(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
