// Package screen implements the periodic framebuffer capture daemon:
// grab, perceptual-hash change detection per monitor, OCR, foreground
// window resolution, and emission into the ingestion channel.
package screen

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/capture"
	"github.com/unified-ai/core/internal/storage"
)

// Mode selects which monitors each tick captures.
type Mode string

const (
	ModePrimary  Mode = "primary"  // monitor 0 only
	ModeAll      Mode = "all"      // every monitor, one observation each
	ModeSpecific Mode = "specific" // the configured 1-based indices
	ModeCombined Mode = "combined" // all monitors stitched into one canvas
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePrimary, ModeAll, ModeSpecific, ModeCombined:
		return Mode(s), nil
	case "":
		return ModePrimary, nil
	}
	return "", fmt.Errorf("invalid screen capture mode %q", s)
}

// Grabber abstracts the framebuffer so tests can feed synthetic frames.
type Grabber interface {
	NumMonitors() int
	Grab(index int) (image.Image, error)
}

// displayGrabber is the real implementation over kbinani/screenshot.
type displayGrabber struct{}

func (displayGrabber) NumMonitors() int { return screenshot.NumActiveDisplays() }

func (displayGrabber) Grab(index int) (image.Image, error) {
	img, err := screenshot.CaptureDisplay(index)
	if err != nil {
		return nil, fmt.Errorf("grab display %d: %w", index, err)
	}
	return img, nil
}

// Config configures a Capturer.
type Config struct {
	Interval time.Duration
	Mode     Mode
	Monitors []int // 1-based indices, used by ModeSpecific

	// Grabber and OCR default to the real display and a tesseract probe;
	// tests override them.
	Grabber Grabber
	OCR     OCREngine
}

// Capturer is the screen capture daemon. Run drives the loop until its
// context is cancelled.
type Capturer struct {
	cfg    Config
	out    chan<- capture.Observation
	logger *zap.Logger

	// lastHashes keys change detection by monitor index so a change on
	// one monitor never suppresses a change on another. The combined
	// mode uses index -1 for its stitched canvas.
	lastHashes map[int]string

	consecutiveErrs int
	backedOff       bool
}

// New builds a screen capturer emitting into out.
func New(cfg Config, out chan<- capture.Observation, logger *zap.Logger) (*Capturer, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.Grabber == nil {
		cfg.Grabber = displayGrabber{}
	}
	if cfg.OCR == nil {
		cfg.OCR = NullOCR{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.OCR.IsAvailable() {
		logger.Warn("ocr engine unavailable, screen captures will be stored without text")
	}
	return &Capturer{
		cfg:        cfg,
		out:        out,
		logger:     logger,
		lastHashes: make(map[int]string),
	}, nil
}

// Run executes the capture loop. Cancellation is honored between ticks
// and during the in-tick sleep; an in-flight send is allowed to finish.
func (c *Capturer) Run(ctx context.Context) error {
	c.logger.Info("screen capturer started",
		zap.Duration("interval", c.cfg.Interval),
		zap.String("mode", string(c.cfg.Mode)))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("screen capturer stopped")
			return ctx.Err()
		case <-time.After(c.sleepInterval()):
		}
		c.tick(ctx)
	}
}

// sleepInterval doubles the base interval while backed off.
func (c *Capturer) sleepInterval() time.Duration {
	if c.backedOff {
		return 2 * c.cfg.Interval
	}
	return c.cfg.Interval
}

// tick captures every monitor the mode selects.
func (c *Capturer) tick(ctx context.Context) {
	n := c.cfg.Grabber.NumMonitors()
	if n == 0 {
		c.noteError(fmt.Errorf("no active displays"))
		return
	}

	var indices []int
	switch c.cfg.Mode {
	case ModePrimary:
		indices = []int{0}
	case ModeAll:
		for i := 0; i < n; i++ {
			indices = append(indices, i)
		}
	case ModeSpecific:
		for _, oneBased := range c.cfg.Monitors {
			if i := oneBased - 1; i >= 0 && i < n {
				indices = append(indices, i)
			} else {
				c.logger.Warn("configured monitor index out of range", zap.Int("monitor", oneBased))
			}
		}
	case ModeCombined:
		c.captureCombined(ctx, n)
		return
	}

	for _, i := range indices {
		c.captureMonitor(ctx, i)
	}
}

func (c *Capturer) captureMonitor(ctx context.Context, index int) {
	img, err := c.cfg.Grabber.Grab(index)
	if err != nil {
		c.noteError(err)
		return
	}
	c.process(ctx, img, index)
}

// captureCombined stitches all monitors side by side into one canvas and
// hashes the result under monitor index -1.
func (c *Capturer) captureCombined(ctx context.Context, n int) {
	var frames []image.Image
	width, height := 0, 0
	for i := 0; i < n; i++ {
		img, err := c.cfg.Grabber.Grab(i)
		if err != nil {
			c.noteError(err)
			return
		}
		frames = append(frames, img)
		b := img.Bounds()
		width += b.Dx()
		if b.Dy() > height {
			height = b.Dy()
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	x := 0
	for _, frame := range frames {
		b := frame.Bounds()
		draw.Draw(canvas, image.Rect(x, 0, x+b.Dx(), b.Dy()), frame, b.Min, draw.Src)
		x += b.Dx()
	}
	c.process(ctx, canvas, -1)
}

// process runs change detection, OCR, and window resolution for one
// frame, then emits the observation. A full channel drops the frame:
// screen capture is lossy by design, and stalling the loop would only
// pile up stale frames.
func (c *Capturer) process(ctx context.Context, img image.Image, monitorIndex int) {
	hash := PerceptualHash(img)
	if c.lastHashes[monitorIndex] == hash {
		return
	}
	c.lastHashes[monitorIndex] = hash

	text, err := c.cfg.OCR.Extract(ctx, img)
	if err != nil {
		c.noteError(err)
		text = ""
	} else {
		c.noteSuccess()
	}

	title, app := ActiveWindow(ctx)
	bounds := img.Bounds()

	obs := capture.Observation{
		Source:     storage.SourceScreen,
		CapturedAt: time.Now(),
		Screen: &capture.ScreenPayload{
			Text:           text,
			PerceptualHash: hash,
			Window:         title,
			App:            app,
			Width:          bounds.Dx(),
			Height:         bounds.Dy(),
			MonitorIndex:   monitorIndex,
		},
	}

	select {
	case c.out <- obs:
	default:
		c.logger.Warn("ingest channel full, dropping screen frame",
			zap.Int("monitor", monitorIndex))
	}
}

// noteError counts consecutive failures; the fifth doubles the sleep
// once. noteSuccess resets both the counter and the backoff.
func (c *Capturer) noteError(err error) {
	c.consecutiveErrs++
	c.logger.Warn("screen capture error",
		zap.Error(err), zap.Int("consecutive", c.consecutiveErrs))
	if c.consecutiveErrs >= 5 && !c.backedOff {
		c.backedOff = true
		c.logger.Warn("five consecutive capture errors, doubling interval once")
	}
}

func (c *Capturer) noteSuccess() {
	c.consecutiveErrs = 0
	c.backedOff = false
}
