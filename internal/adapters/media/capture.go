package media

import (
	"sync"

	"gocv.io/x/gocv"
)

// Capture is a decoded frame stream over a local video file. Closing it
// releases the decoder and then runs the fetch cleanup.
type Capture struct {
	vc      *gocv.VideoCapture
	cleanup func()
	once    sync.Once
	err     error
}

// OpenCapture opens path for decoding. A file that cannot be opened yields a
// Capture whose IsOpened is false; the caller reports it as a session error.
func OpenCapture(path string, cleanup func()) *Capture {
	c := &Capture{cleanup: cleanup}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if vc != nil {
			_ = vc.Close()
		}
		return c
	}
	c.vc = vc
	return c
}

// IsOpened reports whether frames can be read.
func (c *Capture) IsOpened() bool {
	return c.vc != nil && c.vc.IsOpened()
}

// Read decodes the next frame into m.
func (c *Capture) Read(m *gocv.Mat) bool {
	if c.vc == nil {
		return false
	}
	return c.vc.Read(m)
}

// FPS returns the container frame rate, or 0 when unknown.
func (c *Capture) FPS() float64 {
	if c.vc == nil {
		return 0
	}
	return c.vc.Get(gocv.VideoCaptureFPS)
}

// Close is idempotent.
func (c *Capture) Close() error {
	c.once.Do(func() {
		if c.vc != nil {
			c.err = c.vc.Close()
		}
		if c.cleanup != nil {
			c.cleanup()
		}
	})
	return c.err
}
