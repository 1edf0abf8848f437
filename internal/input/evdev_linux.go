//go:build linux

package input

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"pendrag/internal/report"
)

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

type absInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

// EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo)
func eviocgabs(code int) uintptr {
	return ioc(iocRead, 'E', uint32(0x40+code), uint32(unsafe.Sizeof(absInfo{})))
}

// EVIOCGRAB = _IOW('E', 0x90, int)
func eviocgrab() uintptr {
	return ioc(iocWrite, 'E', 0x90, uint32(unsafe.Sizeof(int32(0))))
}

func getAbsInfo(fd uintptr, code int) (absInfo, error) {
	var info absInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgabs(code), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return absInfo{}, errno
	}
	return info, nil
}

// Reader streams reports from a /dev/input/event* tablet node
type Reader struct {
	path string
	grab bool

	mu      sync.Mutex
	file    *os.File
	events  chan report.Event
	ranges  Ranges
	running bool
	wg      sync.WaitGroup
}

// NewReader creates a reader for the event device at path
func NewReader(path string, grab bool) *Reader {
	return &Reader{
		path:   path,
		grab:   grab,
		events: make(chan report.Event, 256),
	}
}

// Start opens the device, reads its axis ranges and begins streaming
func (r *Reader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	f, err := os.OpenFile(r.path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.path, err)
	}

	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return err
	}
	var ctlErr error
	err = rc.Control(func(fd uintptr) {
		r.ranges = Ranges{
			X:        AxisRange{Min: 0, Max: 1},
			Y:        AxisRange{Min: 0, Max: 1},
			Pressure: AxisRange{},
		}
		if info, err := getAbsInfo(fd, ABS_X); err == nil {
			r.ranges.X = AxisRange{Min: info.Min, Max: info.Max}
		} else {
			ctlErr = fmt.Errorf("%s has no ABS_X axis: %w", r.path, err)
			return
		}
		if info, err := getAbsInfo(fd, ABS_Y); err == nil {
			r.ranges.Y = AxisRange{Min: info.Min, Max: info.Max}
		}
		if info, err := getAbsInfo(fd, ABS_PRESSURE); err == nil {
			r.ranges.Pressure = AxisRange{Min: info.Min, Max: info.Max}
		}
		if r.grab {
			if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, eviocgrab(), 1); errno != 0 {
				log.Printf("Input: EVIOCGRAB on %s failed: %v", r.path, errno)
			}
		}
	})
	if err == nil {
		err = ctlErr
	}
	if err != nil {
		f.Close()
		return err
	}

	log.Printf("Input: Reading %s (x %d..%d, y %d..%d, pressure %d..%d, grab=%v)", r.path,
		r.ranges.X.Min, r.ranges.X.Max, r.ranges.Y.Min, r.ranges.Y.Max,
		r.ranges.Pressure.Min, r.ranges.Pressure.Max, r.grab)

	r.file = f
	r.running = true
	r.wg.Add(1)
	go r.readLoop(f, r.ranges)
	return nil
}

// Ranges returns the axis ranges read at Start
func (r *Reader) Ranges() Ranges {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ranges
}

func (r *Reader) readLoop(f *os.File, ranges Ranges) {
	defer r.wg.Done()
	defer close(r.events)

	size := int(unsafe.Sizeof(unix.Timeval{})) + 8
	parser := NewEventParser(size)
	asm := NewAssembler(r.path, ranges)
	buf := make([]byte, size*64)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n], func(ev RawEvent) {
				if rep, ok := asm.Push(ev); ok {
					r.events <- rep
				}
			})
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				log.Printf("Input: Read error on %s: %v", r.path, err)
			}
			// the device is gone; downstream must drop its state
			r.events <- &report.Disconnect{Header: report.Header{Device: r.path}}
			return
		}
	}
}

// Stop closes the device; Events is closed once the read loop exits
func (r *Reader) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	err := r.file.Close()
	r.mu.Unlock()

	// drain so the read loop can deliver its disconnect and exit
	go func() {
		for range r.events {
		}
	}()
	r.wg.Wait()
	return err
}

// Events returns the report channel
func (r *Reader) Events() <-chan report.Event {
	return r.events
}
