package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/marmot/internal/types"
)

type recordingProcessor struct {
	mu      sync.Mutex
	order   []string
	inMax   int
	current int
	delay   time.Duration
	err     error
}

func (p *recordingProcessor) ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error) {
	p.mu.Lock()
	p.current++
	if p.current > p.inMax {
		p.inMax = p.current
	}
	p.order = append(p.order, incoming.Text)
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.current--
	p.mu.Unlock()

	if p.err != nil {
		return "", p.err
	}
	return "reply to " + incoming.Text, nil
}

func msgFor(user, text string) *types.IncomingMessage {
	return &types.IncomingMessage{Platform: "telegram", UserID: user, ChatID: user, Text: text}
}

func TestGatewayDeliversResponse(t *testing.T) {
	proc := &recordingProcessor{}
	gw := New(proc, 2)
	gw.Start(context.Background())
	defer gw.Stop()

	got := make(chan string, 1)
	err := gw.HandleInbound(msgFor("u1", "hello"), WithOnComplete(func(resp string) {
		got <- resp
	}))
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	select {
	case resp := <-got:
		if resp != "reply to hello" {
			t.Errorf("response = %q", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response delivered")
	}
}

func TestGatewayFIFOWithinConversation(t *testing.T) {
	proc := &recordingProcessor{delay: 20 * time.Millisecond}
	gw := New(proc, 4)
	gw.Start(context.Background())
	defer gw.Stop()

	var wg sync.WaitGroup
	for _, text := range []string{"first", "second", "third"} {
		wg.Add(1)
		err := gw.HandleInbound(msgFor("u1", text), WithOnComplete(func(string) { wg.Done() }))
		if err != nil {
			t.Fatalf("HandleInbound: %v", err)
		}
	}
	wg.Wait()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, text := range want {
		if proc.order[i] != text {
			t.Fatalf("order = %v, want %v", proc.order, want)
		}
	}
}

func TestGatewayConcurrencyCap(t *testing.T) {
	proc := &recordingProcessor{delay: 50 * time.Millisecond}
	gw := New(proc, 2)
	gw.Start(context.Background())
	defer gw.Stop()

	var wg sync.WaitGroup
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		wg.Add(1)
		err := gw.HandleInbound(msgFor(user, "ping"), WithOnComplete(func(string) { wg.Done() }))
		if err != nil {
			t.Fatalf("HandleInbound: %v", err)
		}
	}
	wg.Wait()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.inMax > 2 {
		t.Errorf("max concurrent turns = %d, want <= 2", proc.inMax)
	}
}

func TestGatewayErrorProducesApology(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("model unreachable")}
	gw := New(proc, 2)
	gw.Start(context.Background())
	defer gw.Stop()

	got := make(chan string, 1)
	err := gw.HandleInbound(msgFor("u1", "hello"), WithOnComplete(func(resp string) {
		got <- resp
	}))
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	select {
	case resp := <-got:
		if !strings.Contains(resp, "something went wrong") {
			t.Errorf("response = %q, want apology", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response delivered")
	}
}

func TestGatewaySinkReachesProcessor(t *testing.T) {
	sinkSeen := make(chan bool, 1)
	proc := &sinkCheckProcessor{seen: sinkSeen}
	gw := New(proc, 1)
	gw.Start(context.Background())
	defer gw.Stop()

	sink := make(types.EventSink, 1)
	if err := gw.HandleInbound(msgFor("u1", "hi"), WithSink(sink)); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	select {
	case ok := <-sinkSeen:
		if !ok {
			t.Error("processor received nil sink")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("processor never ran")
	}
}

type sinkCheckProcessor struct {
	seen chan bool
}

func (p *sinkCheckProcessor) ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error) {
	p.seen <- sink != nil
	return "", nil
}
