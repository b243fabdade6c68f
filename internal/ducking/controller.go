package ducking

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/audio"
)

// Controller is the process-wide ducking state. Other audio is attenuated to
// Level while at least one ducker is enabled.
type Controller struct {
	mu        sync.Mutex
	enabled   bool
	level     float64
	active    int
	observers []func(active bool, level float64)
}

// NewController creates a controller. When enabled is false duckers still
// track handles but never attenuate anything.
func NewController(level float64, enabled bool) *Controller {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	return &Controller{enabled: enabled, level: level}
}

// OnChange registers fn to be called whenever ducking starts or stops.
func (c *Controller) OnChange(fn func(active bool, level float64)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Active reports whether other audio is currently attenuated.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.active > 0
}

// Holders returns the number of enabled duckers.
func (c *Controller) Holders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Level returns the attenuation level.
func (c *Controller) Level() float64 {
	return c.level
}

// NewDucker is a Factory.
func (c *Controller) NewDucker(h audio.Handle) Ducker {
	return &ducker{c: c, handle: h}
}

func (c *Controller) adjust(delta int) {
	c.mu.Lock()
	before := c.active > 0
	c.active += delta
	if c.active < 0 {
		c.active = 0
	}
	after := c.active > 0
	observers := c.observers
	enabled := c.enabled
	c.mu.Unlock()

	if !enabled || before == after {
		return
	}
	log.Debug("Audio ducking changed", "active", after, "level", c.level)
	for _, fn := range observers {
		fn(after, c.level)
	}
}

type ducker struct {
	c       *Controller
	handle  audio.Handle
	mu      sync.Mutex
	enabled bool
}

func (d *ducker) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled {
		return nil
	}
	d.enabled = true
	d.c.adjust(1)
	return nil
}

func (d *ducker) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return nil
	}
	d.enabled = false
	d.c.adjust(-1)
	return nil
}
