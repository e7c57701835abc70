package chat

import (
	"sort"
	"sync"

	"github.com/jinzhu/copier"

	"Courtyard/internal/model"
)

// Store 单个会话的消息仓库。消息写入只能走 Merge，
// 历史拉取和推送两路共用这一个入口，避免双写打架
type Store struct {
	mu       sync.Mutex
	messages []model.Message
	status   map[string]model.MessageStatus
	errs     map[string]string
	onChange func()
}

func NewStore() *Store {
	return &Store{
		status: make(map[string]model.MessageStatus),
		errs:   make(map[string]string),
	}
}

// OnChange 注册变更回调，在锁外触发
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Merge 合并一批消息：MessageID 或 ClientMsgID 命中则整条替换（后写覆盖），
// 未命中则追加，最后整体按 Seq 升序重排。重复合并幂等
func (s *Store) Merge(incoming ...model.Message) {
	if len(incoming) == 0 {
		return
	}

	s.mu.Lock()
	for _, in := range incoming {
		if idx := s.indexOfLocked(in); idx >= 0 {
			s.messages[idx] = in
		} else {
			s.messages = append(s.messages, in)
		}
	}
	s.sortLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (s *Store) indexOfLocked(in model.Message) int {
	for i, m := range s.messages {
		if m.MessageID != "" && m.MessageID == in.MessageID {
			return i
		}
		if m.ClientMsgID != "" && in.ClientMsgID != "" && m.ClientMsgID == in.ClientMsgID {
			return i
		}
	}
	return -1
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		a, b := s.messages[i], s.messages[j]
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		// 临时 Seq 可能和真实 Seq 撞号，时间加 ID 兜一个确定序
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.MessageID < b.MessageID
	})
}

// SetStatus 写入投递状态，只升不降；错误状态同时记下原因
func (s *Store) SetStatus(clientMsgID string, status model.MessageStatus, errMsg string) {
	if clientMsgID == "" {
		return
	}

	s.mu.Lock()
	if prev, ok := s.status[clientMsgID]; ok && !status.Supersedes(prev) {
		s.mu.Unlock()
		return
	}
	s.status[clientMsgID] = status
	if status == model.StatusError {
		s.errs[clientMsgID] = errMsg
	}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// StatusOf 查询指定消息的投递状态
func (s *Store) StatusOf(clientMsgID string) (model.MessageStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[clientMsgID]
	return st, ok
}

// MarkDeliveredThrough 对端水位之下的己方消息全部升级为已投递
func (s *Store) MarkDeliveredThrough(selfID string, seq int64) {
	s.mu.Lock()
	changed := false
	for _, m := range s.messages {
		if m.SenderID != selfID || m.Seq > seq {
			continue
		}
		key := statusKey(m)
		if key == "" {
			continue
		}
		if prev, ok := s.status[key]; !ok || model.StatusDelivered.Supersedes(prev) {
			s.status[key] = model.StatusDelivered
			changed = true
		}
	}
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
}

// Snapshot 导出渲染视图，深拷贝与内部状态解耦
func (s *Store) Snapshot(selfID string) []model.DisplayMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DisplayMessage, 0, len(s.messages))
	for _, m := range s.messages {
		var view model.DisplayMessage
		_ = copier.CopyWithOption(&view.Message, &m, copier.Option{DeepCopy: true})
		view.IsOwn = m.SenderID == selfID

		if view.IsOwn {
			if st, ok := s.status[statusKey(m)]; ok {
				view.Status = st
				if st == model.StatusError {
					view.Error = s.errs[statusKey(m)]
				}
			} else {
				// 服务端返回的己方消息没有跟踪记录，按已发送展示
				view.Status = model.StatusSent
			}
		} else {
			view.Status = model.StatusDelivered
		}
		out = append(out, view)
	}
	return out
}

// MaxSeq 当前已知最大 Seq，乐观消息的临时 Seq 也算数
func (s *Store) MaxSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.messages); n > 0 {
		return s.messages[n-1].Seq
	}
	return 0
}

// PeerMaxSeq 对方消息的最大 Seq，投递回执以它为目标
func (s *Store) PeerMaxSeq(selfID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, m := range s.messages {
		if m.SenderID != selfID && m.Seq > max {
			max = m.Seq
		}
	}
	return max
}

// Len 当前消息条数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func statusKey(m model.Message) string {
	if m.ClientMsgID != "" {
		return m.ClientMsgID
	}
	return m.MessageID
}
