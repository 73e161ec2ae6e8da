package core

import (
	"testing"
	"time"

	"github.com/vovakirdan/practicechat/internal/proto"
)

func mustFrame(t *testing.T, ch <-chan proto.Outbound, frameType string) proto.Outbound {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.FrameType() == frameType {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected frame %q not received", frameType)
	return nil
}

func assertNoFrame(t *testing.T, ch <-chan proto.Outbound) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected frame: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
