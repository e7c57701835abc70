package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"Courtyard/internal/api/config"
	"Courtyard/internal/api/dto"
)

// fakeGateway 可编排的网关替身。gate 通道非空时对应调用会阻塞等待放行，
// 用来制造在途请求
type fakeGateway struct {
	mu sync.Mutex

	historyItems []map[string]interface{}
	historyErr   error
	historyGate  chan struct{}
	historyCalls int

	sendErr   error
	sendGate  chan struct{}
	sendCalls []dto.SendMessageReq

	ackErr     error
	ackGate    chan struct{}
	ackConfirm func(target int64) int64
	ackCalls   []int64

	summaries []dto.ConversationSummary
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (f *fakeGateway) History(ctx context.Context, peerID string) ([]map[string]interface{}, error) {
	f.mu.Lock()
	f.historyCalls++
	gate := f.historyGate
	items, err := f.historyItems, f.historyErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, req dto.SendMessageReq) error {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, req)
	gate := f.sendGate
	err := f.sendErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeGateway) AckDelivery(ctx context.Context, peerID string, deliveredSeq int64) (int64, error) {
	f.mu.Lock()
	f.ackCalls = append(f.ackCalls, deliveredSeq)
	gate := f.ackGate
	err := f.ackErr
	confirm := f.ackConfirm
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, err
	}
	if confirm != nil {
		return confirm(deliveredSeq), nil
	}
	return deliveredSeq, nil
}

func (f *fakeGateway) Conversations(ctx context.Context) ([]dto.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries, nil
}

func (f *fakeGateway) AckCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.ackCalls))
	copy(out, f.ackCalls)
	return out
}

func (f *fakeGateway) SendCalls() []dto.SendMessageReq {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.SendMessageReq, len(f.sendCalls))
	copy(out, f.sendCalls)
	return out
}

func (f *fakeGateway) HistoryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

func (f *fakeGateway) setAckErr(err error) {
	f.mu.Lock()
	f.ackErr = err
	f.mu.Unlock()
}

// fakeTransport 进程内推送替身，Push 系列同步调到订阅方
type fakeTransport struct {
	mu      sync.Mutex
	nextSub int
	msgSubs map[int]func(raw interface{})
	dlvSubs map[int]func(ev dto.DeliveredEvent)
	typSubs map[int]func(ev dto.TypingEvent)
	emits   []emittedFrame
}

type emittedFrame struct {
	Event string
	Data  interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		msgSubs: make(map[int]func(raw interface{})),
		dlvSubs: make(map[int]func(ev dto.DeliveredEvent)),
		typSubs: make(map[int]func(ev dto.TypingEvent)),
	}
}

func (f *fakeTransport) SubscribeMessages(fn func(raw interface{})) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.msgSubs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.msgSubs, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) SubscribeDelivered(fn func(ev dto.DeliveredEvent)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.dlvSubs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.dlvSubs, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) SubscribeTyping(fn func(ev dto.TypingEvent)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.typSubs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.typSubs, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) Emit(event string, data interface{}) error {
	f.mu.Lock()
	f.emits = append(f.emits, emittedFrame{Event: event, Data: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Emits() []emittedFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]emittedFrame, len(f.emits))
	copy(out, f.emits)
	return out
}

func (f *fakeTransport) PushMessage(raw interface{}) {
	f.mu.Lock()
	subs := make([]func(raw interface{}), 0, len(f.msgSubs))
	for _, fn := range f.msgSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(raw)
	}
}

func (f *fakeTransport) PushDelivered(ev dto.DeliveredEvent) {
	f.mu.Lock()
	subs := make([]func(ev dto.DeliveredEvent), 0, len(f.dlvSubs))
	for _, fn := range f.dlvSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeTransport) PushTyping(ev dto.TypingEvent) {
	f.mu.Lock()
	subs := make([]func(ev dto.TypingEvent), 0, len(f.typSubs))
	for _, fn := range f.typSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeTransport) MessageSubCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgSubs)
}

// testConfig 全部超时都压短，避免测试等待真实窗口
func testConfig() *config.Config {
	return &config.Config{
		Chat: config.ChatConfig{
			SendTimeout:      2,
			HistoryTimeout:   2,
			AckTimeout:       2,
			TypingCooldownMS: 60000, // 一次测试内只放行第一发
			TypingExpiryMS:   150,
		},
	}
}

// waitUntil 轮询直到条件成立，超时即失败
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// settle 留一小段时间让不该发生的事情有机会发生
func settle() {
	time.Sleep(30 * time.Millisecond)
}
