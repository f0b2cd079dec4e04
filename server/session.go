package server

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zpin/lcdbank"
	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/rgb565"
)

// request is one parsed command line.
type request struct {
	seq      string // "#<seq> " or empty
	line     string // command line without seq and deferral marker
	fields   []string
	deferred bool
}

func parseRequest(raw string) request {
	line := strings.TrimRight(raw, "\r\n")
	var req request
	if strings.HasPrefix(line, "#") {
		if i := strings.IndexByte(line, ' '); i >= 0 {
			req.seq, line = line[:i+1], line[i+1:]
		} else {
			req.seq, line = line+" ", ""
		}
	}
	if strings.HasSuffix(line, " &") {
		req.deferred = true
		line = strings.TrimRight(strings.TrimSuffix(line, "&"), " ")
	}
	req.line = line
	req.fields = strings.Split(line, " ")
	return req
}

func (r request) quit() bool { return r.fields[0] == "q" }

// rest returns the line after the first n fields.
func (r request) rest(n int) string {
	s := r.line
	for i := 0; i < n; i++ {
		j := strings.IndexByte(s, ' ')
		if j < 0 {
			return ""
		}
		s = s[j+1:]
	}
	return s
}

// badRequest is answered with 400.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

type session struct {
	bank *lcdbank.Bank
	log  zerolog.Logger
}

type handler func(s *session, r request) error

var handlers = map[string]struct {
	minFields int
	fn        handler
}{
	"init":   {1, (*session).initAll},
	"clear":  {3, (*session).clear},
	"rect":   {7, (*session).rect},
	"file":   {3, (*session).file},
	"image":  {3, (*session).image},
	"text":   {7, (*session).text},
	"png":    {3, (*session).png},
	"update": {2, (*session).update},
	"power":  {3, (*session).power},
	"invert": {3, (*session).invert},
	"rand":   {1, (*session).random},
}

// handle runs req and returns the response line.
func (s *session) handle(req request) string {
	name := req.fields[0]
	h, ok := handlers[name]
	if !ok {
		return fmt.Sprintf("400 unknown command '%s'", name)
	}
	s.log.Debug().Str("cmd", req.line).Bool("deferred", req.deferred).Msg("command")
	if len(req.fields) < h.minFields {
		return fmt.Sprintf("400 %s needs %d arguments", name, h.minFields-1)
	}
	err := h.fn(s, req)
	var bad *badRequest
	switch {
	case err == nil:
		return "200"
	case errors.As(err, &bad), errors.Is(err, lcdbank.ErrNoDisplay), errors.Is(err, lcdbank.ErrSlot):
		return "400 " + err.Error()
	default:
		s.log.Error().Err(err).Str("cmd", req.line).Msg("command failed")
		return "500 " + err.Error()
	}
}

func (s *session) display(r request) (*lcdbank.Display, error) {
	i, err := strconv.Atoi(r.fields[1])
	if err != nil {
		return nil, badf("invalid display %q", r.fields[1])
	}
	return s.bank.Display(i)
}

// flush updates d unless the request deferred it.
func (s *session) flush(d *lcdbank.Display, r request) error {
	if r.deferred {
		return nil
	}
	return s.bank.UpdateDisplay(d.Index)
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, badf("invalid number %q", f)
		}
		out[i] = n
	}
	return out, nil
}

func parseColor(s string) (rgb565.Color, error) {
	c, err := rgb565.ParseHex(s)
	if err != nil {
		return 0, badf("invalid color %q", s)
	}
	return c, nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, badf("expected true or false, got %q", s)
}

func (s *session) initAll(r request) error {
	return s.bank.InitAll()
}

func (s *session) clear(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	c, err := parseColor(r.fields[2])
	if err != nil {
		return err
	}
	d.Clear(c)
	return s.flush(d, r)
}

func (s *session) rect(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	v, err := parseInts(r.fields[2:6])
	if err != nil {
		return err
	}
	c, err := parseColor(r.fields[6])
	if err != nil {
		return err
	}
	d.DrawRect(v[0], v[1], v[2], v[3], c)
	return s.flush(d, r)
}

func (s *session) file(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	img, err := s.bank.Image(r.rest(2))
	if err != nil {
		return err
	}
	d.DrawImage(img, 0, 0)
	return s.flush(d, r)
}

func (s *session) image(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	img, err := s.bank.MediaImage(d.Index, r.rest(2))
	if err != nil {
		return err
	}
	d.DrawImage(img, 0, 0)
	return s.flush(d, r)
}

func (s *session) text(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	v, err := parseInts(r.fields[2:5])
	if err != nil {
		return err
	}
	if size := v[2]; size <= 0 || size > max(d.Width(), d.Height()) {
		return badf("text size %d out of range 1..%d", size, max(d.Width(), d.Height()))
	}
	align, err := canvas.ParseVAlign(r.fields[5])
	if err != nil {
		return badf("%v", err)
	}
	d.DrawText(s.bank.Font, r.rest(6), v[0], v[1], v[2], align, canvas.DefaultThreshold)
	return s.flush(d, r)
}

func (s *session) png(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	return d.SavePNG(r.rest(2))
}

func (s *session) update(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	return s.bank.UpdateDisplay(d.Index)
}

func (s *session) power(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	on, err := parseBool(r.fields[2])
	if err != nil {
		return err
	}
	return d.Power(on)
}

func (s *session) invert(r request) error {
	d, err := s.display(r)
	if err != nil {
		return err
	}
	on, err := parseBool(r.fields[2])
	if err != nil {
		return err
	}
	return d.Invert(on)
}

func (s *session) random(r request) error {
	for _, d := range s.bank.Displays() {
		d.Clear(rgb565.Color(rand.Intn(1 << 16)))
	}
	return s.bank.UpdateAll()
}
