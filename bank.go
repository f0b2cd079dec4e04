package lcdbank

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/glyph"
	"github.com/zpin/lcdbank/hal"
	"github.com/zpin/lcdbank/media"
	"github.com/zpin/lcdbank/rgb565"
)

// BankOpts is the configuration for a Bank.
type BankOpts struct {
	Slots      int
	ShiftDelay time.Duration

	// MediaDir is the root for MediaImage lookups.
	MediaDir string
	// Font is used for text (default: Go Regular).
	Font *glyph.Font
	// PowerSettle is waited after panel power returns, before the panels
	// are initialized (default: 2s).
	PowerSettle time.Duration

	Logger *zerolog.Logger
}

// Bank ties a Manager to the board it runs on and to the shared font and
// image cache.
type Bank struct {
	*Manager

	Board  *hal.Board
	Images *media.Cache
	Font   *glyph.Font

	powerMu     sync.Mutex
	powered     bool
	powerSettle time.Duration
	log         zerolog.Logger
}

// NewBank returns a Bank with empty slots on b.
func NewBank(b *hal.Board, opts *BankOpts) (*Bank, error) {
	if opts == nil {
		opts = &BankOpts{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	m, err := NewManager(b, &Opts{
		Slots:      opts.Slots,
		ShiftDelay: opts.ShiftDelay,
		Logger:     &log,
	})
	if err != nil {
		return nil, err
	}
	bank := &Bank{
		Manager:     m,
		Board:       b,
		Images:      media.NewCache(opts.MediaDir, log),
		Font:        opts.Font,
		powerSettle: opts.PowerSettle,
		log:         log,
	}
	if bank.Font == nil {
		bank.Font = glyph.Default()
	}
	if bank.powerSettle == 0 {
		bank.powerSettle = 2 * time.Second
	}
	return bank, nil
}

// Powered reports the panel power state seen by the last CheckPower.
func (b *Bank) Powered() bool {
	b.powerMu.Lock()
	defer b.powerMu.Unlock()
	return b.powered
}

// CheckPower samples the power sense line. When power appears it waits for
// the supply to settle and initializes every panel; when power goes away it
// only logs. Without a sense line it does nothing.
func (b *Bank) CheckPower() error {
	if b.Board.Power == nil {
		return nil
	}
	b.powerMu.Lock()
	defer b.powerMu.Unlock()

	now := b.Board.Power.Read() == gpio.High
	if now == b.powered {
		return nil
	}
	b.powered = now
	if !now {
		b.log.Warn().Msg("panel power lost")
		return nil
	}
	b.log.Info().Dur("settle", b.powerSettle).Msg("panel power detected")
	b.Board.Delay.Delay(b.powerSettle)
	if err := b.InitAll(); err != nil {
		return fmt.Errorf("lcdbank: init after power up: %w", err)
	}
	return nil
}

// Image returns the image at path, loading it on first use.
func (b *Bank) Image(path string) (*rgb565.Image, error) {
	return b.Images.Get(path)
}

// MediaImage returns the named media image sized for slot i, that is
// <media dir>/<max(width, height)>/<name>.png.
func (b *Bank) MediaImage(i int, name string) (*rgb565.Image, error) {
	d, err := b.Display(i)
	if err != nil {
		return nil, err
	}
	return b.Images.Named(name, max(d.Width(), d.Height()))
}

// DrawText draws text on slot i with the bank's font.
func (b *Bank) DrawText(i int, text string, x, y, size int, v canvas.VAlign, thresh uint8) (int, error) {
	d, err := b.Display(i)
	if err != nil {
		return 0, err
	}
	return d.DrawText(b.Font, text, x, y, size, v, thresh), nil
}

// Close releases the font and the board.
func (b *Bank) Close() error {
	return errors.Join(b.Font.Close(), b.Board.Close())
}
