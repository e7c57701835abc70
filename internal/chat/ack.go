package chat

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"Courtyard/internal/pkg/util"
)

// DeliverySequencer 投递回执去抖器：目标只增、同一时刻最多一个在途请求、
// 等待中的目标只保留最大值。上报失败不回退水位，下一条消息会再把它带上去
type DeliverySequencer struct {
	gateway Gateway
	peerID  string
	timeout time.Duration

	mu           sync.Mutex
	highestAcked int64
	inflight     *int64
	queued       *int64
}

func NewDeliverySequencer(gateway Gateway, peerID string, timeout time.Duration) *DeliverySequencer {
	return &DeliverySequencer{
		gateway: gateway,
		peerID:  peerID,
		timeout: timeout,
	}
}

// Acknowledge 请求把投递水位推进到 targetSeq，旧目标和重复目标直接忽略
func (s *DeliverySequencer) Acknowledge(targetSeq int64) {
	if s.peerID == "" {
		return
	}

	s.mu.Lock()
	if targetSeq <= s.highestAcked {
		s.mu.Unlock()
		return
	}
	if s.inflight != nil {
		if s.queued == nil || *s.queued < targetSeq {
			s.queued = util.PtrInt64(targetSeq)
		}
		s.mu.Unlock()
		return
	}
	s.inflight = util.PtrInt64(targetSeq)
	s.mu.Unlock()

	go s.flush(targetSeq)
}

func (s *DeliverySequencer) flush(targetSeq int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	confirmed, err := s.gateway.AckDelivery(ctx, s.peerID, targetSeq)
	cancel()

	s.mu.Lock()
	if err == nil {
		advanced := targetSeq
		if confirmed > 0 {
			// 服务端可能钳制水位，以它回传的为准
			advanced = confirmed
		}
		if advanced > s.highestAcked {
			s.highestAcked = advanced
		}
	}
	s.inflight = nil
	var next *int64
	if s.queued != nil && *s.queued > s.highestAcked {
		next = s.queued
	}
	s.queued = nil
	s.mu.Unlock()

	if err != nil {
		// 回执丢了不打扰用户，后续消息会重新驱动
		log.Info("投递回执上报失败", "peer", s.peerID, "seq", targetSeq, "err", err)
	}
	if next != nil {
		s.Acknowledge(*next)
	}
}

// HighestAcked 当前已确认的投递水位
func (s *DeliverySequencer) HighestAcked() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highestAcked
}

// Pending 是否仍有在途或排队的上报
func (s *DeliverySequencer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil || s.queued != nil
}
