package streamer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"gopherbook.com/internal/codec"
	"gopherbook.com/internal/engine"
	"gopherbook.com/internal/matching"
	"gopherbook.com/pkg/ratelimit"
	"gopherbook.com/pkg/xerr"
)

type client struct {
	c net.Conn
	r *bufio.Reader
}

func dial(t *testing.T, addr net.Addr) *client {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &client{c: c, r: bufio.NewReader(c)}
}

func (cl *client) send(t *testing.T, line string) string {
	t.Helper()
	_, err := fmt.Fprintf(cl.c, "%s\n", line)
	require.NoError(t, err)
	_ = cl.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := cl.r.ReadString('\n')
	require.NoError(t, err)
	return reply
}

type fixture struct {
	srv    *Server
	eng    *engine.Engine
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, book engine.Book, cfg Config) *fixture {
	t.Helper()
	eng := engine.NewEngine(engine.EngineConfig{EventBusSize: 256})
	_, err := eng.Register("AAPL", book)
	require.NoError(t, err)

	cfg.Symbol = "AAPL"
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, eng)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{srv: srv, eng: eng, cancel: cancel, done: make(chan error, 1)}
	go func() { f.done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		eng.Stop()
		eng.Wait()
	})
	return f
}

func TestStreamerRepliesOverTCP(t *testing.T) {
	f := start(t, matching.NewGranularBook(0, nil), Config{})
	cl := dial(t, f.srv.Addr())

	assert.Equal(t, "OK id=1 seq=1\n", cl.send(t, "id=1 action=0 side=0 quantity=10 price=100"))
	assert.Equal(t, "OK id=2 seq=2\n", cl.send(t, "id=2 action=0 side=1 quantity=5 price=101"))
	assert.Equal(t, "OK id=1 seq=3\n", cl.send(t, "id=1 action=1 side=0 quantity=8 price=100"))
	// 撤单不占序号，回包不带 seq
	assert.Equal(t, "OK id=2\n", cl.send(t, "id=2 action=2 side=1 quantity=5 price=101"))
	assert.Equal(t, "OK id=3 seq=4\n", cl.send(t, "id=3 action=0 side=1 quantity=1 price=102"))

	snap, err := f.eng.Snapshot("AAPL", 0)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, "8", snap.Bids[0].Quantity.String())
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "102", snap.Asks[0].Price.String())
}

func TestStreamerParseErrorKeepsConnection(t *testing.T) {
	f := start(t, matching.NewAggregatedBook(0, nil), Config{})
	cl := dial(t, f.srv.Addr())

	reply := cl.send(t, "id=1 action=0 side=0 quantity=abc price=100")
	assert.Contains(t, reply, "ERR code=400 ")

	reply = cl.send(t, "id=1 action=9 side=0 quantity=1 price=100")
	assert.Contains(t, reply, "ERR code=422 ")

	// 坏消息只丢自己，连接仍可用；被拒的指令不占序号
	assert.Equal(t, "OK id=2 seq=1\n", cl.send(t, "id=2 action=0 side=0 quantity=1 price=100"))
}

func TestStreamerStrictNotFound(t *testing.T) {
	f := start(t, matching.NewGranularBook(0, matching.StrictPolicy{}), Config{})
	cl := dial(t, f.srv.Addr())
	assert.Contains(t, cl.send(t, "id=7 action=2 side=0 quantity=1 price=100"), "ERR code=404 ")
}

func TestStreamerFractionalDecoder(t *testing.T) {
	f := start(t, matching.NewGranularBook(0, matching.StopLimitPolicy{}), Config{Decoder: codec.Fractional})
	cl := dial(t, f.srv.Addr())

	// 买盘为空，卖出止损未触发
	assert.Contains(t, cl.send(t, "id=1 action=0 side=1 quantity=0.75 price=10.5 stop_price=10"), "ERR code=422 ")
	assert.Equal(t, "OK id=1 seq=2\n", cl.send(t, "id=1 action=0 side=1 quantity=0.75 price=10.5"))
	assert.Equal(t, "OK id=2 seq=3\n", cl.send(t, "id=2 action=0 side=0 quantity=0.5 price=11"))
	// 最优卖价 10.5 >= 10，买入止损触发后按限价成交
	assert.Equal(t, "OK id=3 seq=4\n", cl.send(t, "id=3 action=0 side=0 quantity=0.1 price=10.5 stop_price=10"))

	snap, err := f.eng.Snapshot("AAPL", 0)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "0.15", snap.Asks[0].Quantity.String())
	assert.Empty(t, snap.Bids)
}

func TestStreamerRateLimit(t *testing.T) {
	limiter := ratelimit.NewStore(rate.Every(time.Hour), 2, time.Minute)
	f := start(t, matching.NewAggregatedBook(0, nil), Config{Limiter: limiter})
	cl := dial(t, f.srv.Addr())

	assert.Contains(t, cl.send(t, "id=1 action=0 side=0 quantity=1 price=100"), "OK ")
	assert.Contains(t, cl.send(t, "id=2 action=0 side=0 quantity=1 price=100"), "OK ")
	assert.Contains(t, cl.send(t, "id=3 action=0 side=0 quantity=1 price=100"), "ERR code=429 ")

	// 另一个连接有自己的桶
	other := dial(t, f.srv.Addr())
	assert.Contains(t, other.send(t, "id=4 action=0 side=0 quantity=1 price=100"), "OK ")
}

func TestStreamerLineTooLongCloses(t *testing.T) {
	f := start(t, matching.NewAggregatedBook(0, nil), Config{MaxLineBytes: 64})
	cl := dial(t, f.srv.Addr())

	_, err := fmt.Fprintf(cl.c, "id=1 price=%0100d\n", 1)
	require.NoError(t, err)
	_ = cl.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := cl.r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, reply, "ERR code=400 msg=line too long")
}

func TestStreamerShutdown(t *testing.T) {
	f := start(t, matching.NewAggregatedBook(0, nil), Config{})
	cl := dial(t, f.srv.Addr())
	assert.Contains(t, cl.send(t, "id=1 action=0 side=0 quantity=1 price=100"), "OK ")

	f.cancel()
	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
	assert.Equal(t, 0, f.srv.Sessions())

	// 服务端已经关闭连接
	_ = cl.c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := cl.r.ReadString('\n')
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{codec.ErrParse, xerr.ParseError},
		{fmt.Errorf("x: %w", matching.ErrInvalidQuantity), xerr.ParseError},
		{matching.ErrUnsupportedAction, xerr.UnsupportedAction},
		{fmt.Errorf("x: %w", matching.ErrStopNotTriggered), xerr.UnsupportedAction},
		{matching.ErrOrderNotFound, xerr.OrderNotFound},
		{matching.ErrDuplicateOrder, xerr.DuplicateOrder},
		{ErrRateLimited, xerr.RateLimited},
		{engine.ErrEngineBusy, xerr.EngineBusy},
		{errors.New("boom"), xerr.ServerCommonError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.code, Classify(tc.err).Code)
		})
	}
	assert.Nil(t, Classify(nil))
	assert.Equal(t, "ERR code=400 msg=a b\n", errLine(xerr.New(xerr.ParseError, "a\nb")))
}
