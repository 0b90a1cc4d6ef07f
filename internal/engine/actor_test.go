package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherbook.com/internal/matching"
)

func order(id uint64, action matching.Action, side matching.Side, price, qty int64) matching.Order {
	return matching.Order{
		ID:       id,
		Action:   action,
		Side:     side,
		Price:    decimal.NewFromInt(price),
		Quantity: decimal.NewFromInt(qty),
	}
}

// recordingSink 记录收到的快照
type recordingSink struct {
	mu    sync.Mutex
	snaps []matching.Snapshot
}

func (r *recordingSink) OnSnapshot(_ string, s matching.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recordingSink) last() (matching.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return matching.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func startActor(t *testing.T, book Book, cfg ActorConfig, bus EventSink, sink SnapshotSink) *InstrumentActor {
	t.Helper()
	a := NewInstrumentActor("AAPL", book, cfg, bus, sink)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-a.Done()
	})
	return a
}

func TestActorSubmitReturnsSeq(t *testing.T) {
	a := startActor(t, matching.NewGranularBook(0, matching.PassivePolicy{}), ActorConfig{}, nil, nil)
	ctx := context.Background()

	res, err := a.Submit(ctx, 1, order(1, matching.ActionAdd, matching.Buy, 100, 10))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, uint64(1), res.Seq)

	res, err = a.Submit(ctx, 2, order(2, matching.ActionAdd, matching.Buy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Seq)

	// 撤单不占用序号，Result.Seq 为 0
	res, err = a.Submit(ctx, 3, order(1, matching.ActionCancel, matching.Buy, 100, 10))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, uint64(0), res.Seq)

	res, err = a.Submit(ctx, 4, order(2, matching.ActionModify, matching.Buy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Seq)

	res, err = a.Submit(ctx, 5, matching.Order{ID: 9, Action: matching.Action(7), Quantity: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, matching.ErrUnsupportedAction)

	snap := a.Snapshot(0)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Bids[0].Orders, 1)
	assert.Equal(t, uint64(3), snap.Bids[0].Orders[0].Seq)
}

func TestActorSerializesConcurrentSubmitters(t *testing.T) {
	sink := &recordingSink{}
	a := startActor(t, matching.NewAggregatedBook(0, matching.PassivePolicy{}), ActorConfig{MailboxSize: 64, BatchMax: 8}, nil, sink)

	const workers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id := uint64(w*each + i + 1)
				res, err := a.Submit(context.Background(), id, order(id, matching.ActionAdd, matching.Sell, 100, 1))
				assert.NoError(t, err)
				assert.NoError(t, res.Err)
			}
		}(w)
	}
	wg.Wait()

	// 每个 batch 结束都会发布快照，最后一个必然包含全部数量
	require.Eventually(t, func() bool {
		s, ok := sink.last()
		return ok && s.Seq == workers*each
	}, time.Second, 5*time.Millisecond)

	s := a.Snapshot(0)
	require.Len(t, s.Asks, 1)
	assert.Equal(t, "400", s.Asks[0].Quantity.String())
	assert.Equal(t, uint64(workers*each), s.Seq)
}

func TestActorEmitsEvents(t *testing.T) {
	bus := NewChanBus(16)
	a := startActor(t, matching.NewGranularBook(0, matching.CrossingPolicy{}), ActorConfig{}, bus, nil)
	ctx := context.Background()

	_, err := a.Submit(ctx, 1, order(1, matching.ActionAdd, matching.Sell, 100, 5))
	require.NoError(t, err)
	_, err = a.Submit(ctx, 2, order(2, matching.ActionAdd, matching.Buy, 101, 3))
	require.NoError(t, err)
	_, err = a.Submit(ctx, 3, order(3, matching.ActionCancel, matching.Buy, 0, 0))
	require.NoError(t, err)

	var got []Event
	for len(got) < 4 {
		select {
		case ev := <-bus.C():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %d events", len(got))
		}
	}
	assert.Equal(t, EvAccepted, got[0].Type)
	assert.Equal(t, EvAccepted, got[1].Type)
	assert.Equal(t, EvTrade, got[2].Type)
	assert.Equal(t, uint64(1), got[2].MakerOrderID)
	assert.Equal(t, uint64(2), got[2].TakerOrderID)
	assert.Equal(t, "3", got[2].Qty.String())
	assert.Equal(t, "AAPL", got[2].Symbol)
	// 逐笔簿撤不存在的单：被动策略静默成功
	assert.Equal(t, EvAccepted, got[3].Type)
	assert.Equal(t, matching.ActionCancel, got[3].Action)
}

// blockingBook 处理第一条指令时阻塞，用来把 mailbox 塞满
type blockingBook struct {
	*matching.OrderBook
	gate chan struct{}
	once sync.Once
	in   chan struct{}
}

func (b *blockingBook) HandleIncomingOrder(o matching.Order) error {
	b.once.Do(func() {
		close(b.in)
		<-b.gate
	})
	return b.OrderBook.HandleIncomingOrder(o)
}

func TestActorBackpressure(t *testing.T) {
	book := &blockingBook{
		OrderBook: matching.NewAggregatedBook(0, matching.PassivePolicy{}),
		gate:      make(chan struct{}),
		in:        make(chan struct{}),
	}
	a := startActor(t, book, ActorConfig{MailboxSize: 2, BatchMax: 1}, nil, nil)
	defer close(book.gate)

	require.NoError(t, a.TryEnqueue(Command{Order: order(1, matching.ActionAdd, matching.Buy, 1, 1)}))
	<-book.in // actor 卡在第一条上

	require.NoError(t, a.TryEnqueue(Command{Order: order(2, matching.ActionAdd, matching.Buy, 1, 1)}))
	require.NoError(t, a.TryEnqueue(Command{Order: order(3, matching.ActionAdd, matching.Buy, 1, 1)}))
	err := a.TryEnqueue(Command{Order: order(4, matching.ActionAdd, matching.Buy, 1, 1)})
	assert.ErrorIs(t, err, ErrEngineBusy)
	assert.True(t, IsBusy(err))
	assert.Equal(t, uint64(1), a.MailboxFull())
}

func TestActorStopReleasesWaiters(t *testing.T) {
	a := NewInstrumentActor("X", matching.NewAggregatedBook(0, nil), ActorConfig{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx) // 立即退出

	_, err := a.Submit(context.Background(), 1, order(1, matching.ActionAdd, matching.Buy, 1, 1))
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, a.TryEnqueue(Command{}), ErrStopped)
}

func TestSnapshotDepthTruncation(t *testing.T) {
	a := startActor(t, matching.NewAggregatedBook(0, nil), ActorConfig{}, nil, nil)
	for i := int64(0); i < 5; i++ {
		_, err := a.Submit(context.Background(), 0, order(uint64(i+1), matching.ActionAdd, matching.Buy, 100+i, 1))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(a.Snapshot(0).Bids) == 5 }, time.Second, 5*time.Millisecond)

	s := a.Snapshot(2)
	require.Len(t, s.Bids, 2)
	assert.Equal(t, "104", s.Bids[0].Price.String())
	assert.Equal(t, 2, s.Depth)
	assert.Len(t, a.Snapshot(0).Bids, 5, "truncation must not touch the stored snapshot")
}
