package detail

import (
	"sync"

	"github.com/hitoshi/rescat/internal/model"
)

// Slot は表示中のリソースを保持する共有コンテナ。
// LoaderとSubmitterの両方が書き込むが、後からトリガーされたサイクルの結果が常に優先される。
type Slot struct {
	mu       sync.Mutex
	seq      uint64 // 発行済みチケットの最大値
	writer   uint64 // 最後に書き込んだサイクルのチケット
	resource *model.Resource
}

// NewSlot は空のSlotを生成する。
func NewSlot() *Slot {
	return &Slot{}
}

// ticket は新しいサイクルのチケットを発行する。単調増加する。
func (s *Slot) ticket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// write はticketのサイクルがまだ最新の書き込み元であればresourceを反映する。
// 後発のサイクルが既に書き込んでいる場合はfalseを返し、何も変更しない。
func (s *Slot) write(ticket uint64, resource *model.Resource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket < s.writer {
		return false
	}
	s.writer = ticket
	s.resource = resource
	return true
}

// Current は表示中のリソースのコピーを返す。
func (s *Slot) Current() *model.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource.Clone()
}
