package server

import (
	"bufio"
	"context"
	"image/color"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpin/lcdbank"
	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/hal/haltest"
	"github.com/zpin/lcdbank/rgb565"
	"github.com/zpin/lcdbank/st77xx"
)

func newBank(t *testing.T) (*lcdbank.Bank, *haltest.Recorder) {
	t.Helper()
	rec := haltest.New(2)
	b, err := lcdbank.NewBank(rec.Board(), &lcdbank.BankOpts{Slots: 2, MediaDir: t.TempDir()})
	require.NoError(t, err)
	opts, err := st77xx.Preset("st7735-128", canvas.Rotate0)
	require.NoError(t, err)
	_, err = b.AddDisplay(0, "test", opts, canvas.Orientation{})
	require.NoError(t, err)
	return b, rec
}

type client struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.c.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *client) recv() string {
	c.t.Helper()
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *client) do(line string) string {
	c.t.Helper()
	c.send(line)
	return c.recv()
}

// connect runs a session on one end of a pipe and performs the handshake
// on the other.
func connect(t *testing.T, s *Server) (*client, <-chan struct{}) {
	t.Helper()
	srv, cli := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.ServeConn(srv)
		close(done)
	}()
	c := &client{t: t, c: cli, r: bufio.NewReader(cli)}
	t.Cleanup(func() { cli.Close() })

	require.Equal(t, "owo.", c.recv())
	require.Equal(t, "200", c.do("1.0"))
	return c, done
}

func pixel(t *testing.T, b *lcdbank.Bank, x, y int) rgb565.Color {
	t.Helper()
	d, err := b.Display(0)
	require.NoError(t, err)
	c, err := d.Pixel(x, y)
	require.NoError(t, err)
	return c
}

func TestSession(t *testing.T) {
	b, _ := newBank(t)
	s := New(b, nil)
	c, done := connect(t, s)

	// The handshake clears every display to black.
	assert.Equal(t, rgb565.Black, pixel(t, b, 10, 10))

	assert.Equal(t, "#7 200", c.do("#7 clear 0 ff0000 &"))
	assert.Equal(t, rgb565.Red, pixel(t, b, 10, 10))

	assert.Equal(t, "200", c.do("rect 0 0 0 20 20 0000ff &"))
	assert.Equal(t, rgb565.Blue, pixel(t, b, 5, 5))
	assert.Equal(t, rgb565.Red, pixel(t, b, 30, 30))

	// Without the marker the display is updated and its buffer reset.
	assert.Equal(t, "200", c.do("update 0"))
	assert.Equal(t, rgb565.Black, pixel(t, b, 5, 5))

	assert.Equal(t, "200", c.do("text 0 2 2 16 center-all Hi there &"))
	assert.Equal(t, "200", c.do("invert 0 true"))
	assert.Equal(t, "200", c.do("power 0 false"))
	assert.Equal(t, "200", c.do("init"))
	assert.Equal(t, "200", c.do("rand"))

	png := filepath.Join(t.TempDir(), "out.png")
	assert.Equal(t, "200", c.do("png 0 "+png))
	_, err := os.Stat(png)
	assert.NoError(t, err)

	c.send("q")
	<-done

	// Leaving clears every display to blue.
	assert.Equal(t, rgb565.Blue, pixel(t, b, 64, 64))
}

func TestPNGAfterUpdate(t *testing.T) {
	b, _ := newBank(t)
	c, _ := connect(t, New(b, nil))
	dir := t.TempDir()

	at := func(name string) color.NRGBA {
		t.Helper()
		img, err := imaging.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		return color.NRGBAModel.Convert(img.At(10, 10)).(color.NRGBA)
	}

	require.Equal(t, "200", c.do("clear 0 ff0000 &"))
	require.Equal(t, "200", c.do("png 0 "+filepath.Join(dir, "deferred.png")))
	assert.Equal(t, color.NRGBA{R: 0xF8, A: 0xFF}, at("deferred.png"))

	require.Equal(t, "200", c.do("clear 0 ff0000"))
	require.Equal(t, "200", c.do("png 0 "+filepath.Join(dir, "updated.png")))
	assert.Equal(t, color.NRGBA{A: 0xFF}, at("updated.png"))
}

func TestSessionErrors(t *testing.T) {
	b, _ := newBank(t)
	c, _ := connect(t, New(b, nil))

	tests := []struct {
		line string
		want string
	}{
		{"bogus 1 2", "400 unknown command 'bogus'"},
		{"", "400 unknown command ''"},
		{"#3 nope", "#3 400 unknown command 'nope'"},
		{"clear 0", "400 clear needs 2 arguments"},
		{"clear x ff0000", "400 "},
		{"clear 1 ff0000", "400 "},
		{"clear 9 ff0000", "400 "},
		{"clear 0 red", "400 "},
		{"rect 0 a 0 1 1 ffffff", "400 "},
		{"power 0 maybe", "400 "},
		{"text 0 0 0 8 middle hi", "400 "},
		{"text 0 2 2 100000 top Hi", "400 text size 100000 out of range 1..128"},
		{"text 0 2 2 0 top Hi", "400 "},
		{"text 0 2 2 -16 top Hi", "400 "},
		{"rect 0 -100000 -100000 100000 100000 ff0000 &", "200"},
		{"rect 0 -2000000000 0 2000000000 2000000000 00ff00 &", "200"},
		{"file 0 /does/not/exist.png", "500 "},
		{"image 0 missing", "500 "},
	}
	for _, tt := range tests {
		got := c.do(tt.line)
		assert.True(t, strings.HasPrefix(got, tt.want), "%q: got %q, want prefix %q", tt.line, got, tt.want)
	}
}

func TestBadVersion(t *testing.T) {
	b, rec := newBank(t)
	s := New(b, nil)

	srv, cli := net.Pipe()
	defer cli.Close()
	done := make(chan struct{})
	go func() {
		s.ServeConn(srv)
		close(done)
	}()

	r := bufio.NewReader(cli)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "owo.\n", line)

	rec.Clear()
	_, err = cli.Write([]byte("2.0\n"))
	require.NoError(t, err)
	<-done

	_, err = r.ReadString('\n')
	assert.Error(t, err)
	// Nothing was sent to the displays.
	assert.Empty(t, rec.Txs())
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		raw      string
		seq      string
		line     string
		deferred bool
	}{
		{"clear 0 ffffff\n", "", "clear 0 ffffff", false},
		{"clear 0 ffffff &\r\n", "", "clear 0 ffffff", true},
		{"#12 text 0 1 2 8 top a & b &\n", "#12 ", "text 0 1 2 8 top a & b", true},
		{"#5\n", "#5 ", "", false},
		{"file 0 a&b.png", "", "file 0 a&b.png", false},
	}
	for _, tt := range tests {
		req := parseRequest(tt.raw)
		assert.Equal(t, tt.seq, req.seq, tt.raw)
		assert.Equal(t, tt.line, req.line, tt.raw)
		assert.Equal(t, tt.deferred, req.deferred, tt.raw)
	}

	req := parseRequest("text 0 1 2 8 top hello  world")
	assert.Equal(t, "hello  world", req.rest(6))
	assert.Equal(t, "", parseRequest("q").rest(1))
}

func TestServe(t *testing.T) {
	b, _ := newBank(t)
	s := New(b, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	c := &client{t: t, c: conn, r: bufio.NewReader(conn)}
	assert.Equal(t, "owo.", c.recv())
	assert.Equal(t, "200", c.do("1"))
	assert.Equal(t, "200", c.do("clear 0 00ff00"))
	c.send("q")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
