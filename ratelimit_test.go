package fathom

import (
	"context"
	"testing"
	"time"
)

func TestWithRateLimitRPMAllowsWithinLimit(t *testing.T) {
	stub := &mockProvider{responses: []ChatResponse{
		{Content: "a"},
		{Content: "b"},
	}}
	p := WithRateLimit(stub, RPM(60))

	resp, err := p.Chat(context.Background(), UserMessage("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "a" {
		t.Errorf("got %q, want %q", resp.Content, "a")
	}
}

func TestWithRateLimitRPMBlocksWhenExceeded(t *testing.T) {
	stub := &mockProvider{responses: []ChatResponse{
		{Content: "a"},
		{Content: "b"},
	}}
	// RPM(1) = one request per minute. The second call must block.
	p := WithRateLimit(stub, RPM(1))

	if _, err := p.Chat(context.Background(), UserMessage("hi")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, UserMessage("hi")); err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
	if stub.callCount() != 1 {
		t.Errorf("inner provider called %d times, want 1", stub.callCount())
	}
}

func TestWithRateLimitName(t *testing.T) {
	p := WithRateLimit(&mockProvider{}, RPM(10))
	if p.Name() != "mock" {
		t.Errorf("Name() = %q, want %q", p.Name(), "mock")
	}
}

func TestWithRateLimitTPMAllowsWithinLimit(t *testing.T) {
	stub := &mockProvider{responses: []ChatResponse{
		{Content: "a", TotalTokens: 150},
		{Content: "b", TotalTokens: 150},
	}}
	p := WithRateLimit(stub, TPM(1000))

	// 150 then 300 tokens, both within 1000 TPM.
	if _, err := p.Chat(context.Background(), UserMessage("hi")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Chat(context.Background(), UserMessage("hi")); err != nil {
		t.Fatal(err)
	}
	if stub.callCount() != 2 {
		t.Errorf("got %d calls, want 2", stub.callCount())
	}
}

func TestWithRateLimitTPMBlocksWhenExceeded(t *testing.T) {
	stub := &mockProvider{responses: []ChatResponse{
		{Content: "a", TotalTokens: 1000},
		{Content: "b", TotalTokens: 200},
	}}
	// The first call spends the whole minute's budget.
	p := WithRateLimit(stub, TPM(1000))

	if _, err := p.Chat(context.Background(), UserMessage("hi")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, UserMessage("hi")); err == nil {
		t.Fatal("expected context deadline exceeded, got nil")
	}
}

func TestWithRateLimitRPMAndTPM(t *testing.T) {
	stub := &mockProvider{responses: []ChatResponse{
		{Content: "a", TotalTokens: 20},
		{Content: "b", TotalTokens: 20},
	}}
	// RPM generous, TPM the bottleneck after the first call.
	p := WithRateLimit(stub, RPM(100), TPM(20))

	if _, err := p.Chat(context.Background(), UserMessage("hi")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, UserMessage("hi")); err == nil {
		t.Fatal("expected timeout due to TPM limit")
	}
}

func TestWithRateLimitNoLimitsPassthrough(t *testing.T) {
	stub := &mockProvider{responses: []ChatResponse{{Content: "a"}}}
	p := WithRateLimit(stub)

	resp, err := p.Chat(context.Background(), UserMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "a" {
		t.Errorf("got %q, want %q", resp.Content, "a")
	}
}
