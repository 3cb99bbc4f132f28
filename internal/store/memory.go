package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")

// Memory is an in-process Store with TTLs and pub/sub. It backs tests and
// single-process development runs.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	strs    map[string]string
	lists   map[string][]string
	zsets   map[string]map[string]float64
	expires map[string]time.Time
	subs    map[string]map[*memorySubscription]struct{}
	// fail, when set, is returned by every call to simulate an outage.
	fail error
}

type MemoryOption func(*Memory)

// WithClock swaps the time source used for TTL expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:     time.Now,
		strs:    map[string]string{},
		lists:   map[string][]string{},
		zsets:   map[string]map[string]float64{},
		expires: map[string]time.Time{},
		subs:    map[string]map[*memorySubscription]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFailure makes every subsequent call fail with err until cleared with nil.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Keys returns all live keys. Test helper.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.strs {
		if !m.expiredLocked(k) {
			out = append(out, k)
		}
	}
	for k := range m.lists {
		if !m.expiredLocked(k) {
			out = append(out, k)
		}
	}
	for k := range m.zsets {
		if !m.expiredLocked(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.fail
}

// expiredLocked drops key if its TTL has elapsed and reports whether it did.
func (m *Memory) expiredLocked(key string) bool {
	at, ok := m.expires[key]
	if !ok || m.now().Before(at) {
		return false
	}
	m.deleteLocked(key)
	return true
}

func (m *Memory) deleteLocked(key string) bool {
	_, s := m.strs[key]
	_, l := m.lists[key]
	_, z := m.zsets[key]
	delete(m.strs, key)
	delete(m.lists, key)
	delete(m.zsets, key)
	delete(m.expires, key)
	return s || l || z
}

func (m *Memory) existsLocked(key string) bool {
	if m.expiredLocked(key) {
		return false
	}
	_, s := m.strs[key]
	_, l := m.lists[key]
	_, z := m.zsets[key]
	return s || l || z
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin(ctx)
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return "", err
	}
	m.expiredLocked(key)
	if _, isList := m.lists[key]; isList {
		return "", ErrWrongType
	}
	v, ok := m.strs[key]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	m.deleteLocked(key)
	m.strs[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		if m.existsLocked(k) && m.deleteLocked(k) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	if !m.existsLocked(key) {
		return nil
	}
	if ttl <= 0 {
		m.deleteLocked(key)
		return nil
	}
	m.expires[key] = m.now().Add(ttl)
	return nil
}

func (m *Memory) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	if !m.existsLocked(key) {
		return 0, ErrNil
	}
	at, ok := m.expires[key]
	if !ok {
		return -1, nil
	}
	return at.Sub(m.now()), nil
}

func (m *Memory) listLocked(key string) ([]string, error) {
	m.expiredLocked(key)
	if _, ok := m.strs[key]; ok {
		return nil, ErrWrongType
	}
	if _, ok := m.zsets[key]; ok {
		return nil, ErrWrongType
	}
	return m.lists[key], nil
}

func (m *Memory) storeListLocked(key string, l []string) {
	if len(l) == 0 {
		m.deleteLocked(key)
		return
	}
	m.lists[key] = l
}

func (m *Memory) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	l, err := m.listLocked(key)
	if err != nil {
		return 0, err
	}
	next := make([]string, 0, len(l)+len(values))
	for i := len(values) - 1; i >= 0; i-- {
		next = append(next, values[i])
	}
	next = append(next, l...)
	m.lists[key] = next
	return int64(len(next)), nil
}

// normRange applies Redis index semantics (negative counts from the tail) and
// returns a half-open [lo, hi) slice range.
func normRange(n int, start, stop int64) (int, int, bool) {
	if start < 0 {
		start += int64(n)
	}
	if stop < 0 {
		stop += int64(n)
	}
	if start < 0 {
		start = 0
	}
	if stop >= int64(n) {
		stop = int64(n) - 1
	}
	if n == 0 || start > stop || start >= int64(n) {
		return 0, 0, false
	}
	return int(start), int(stop) + 1, true
}

func (m *Memory) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	l, err := m.listLocked(key)
	if err != nil {
		return err
	}
	lo, hi, ok := normRange(len(l), start, stop)
	if !ok {
		m.storeListLocked(key, nil)
		return nil
	}
	m.storeListLocked(key, append([]string(nil), l[lo:hi]...))
	return nil
}

func (m *Memory) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return nil, err
	}
	l, err := m.listLocked(key)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := normRange(len(l), start, stop)
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), l[lo:hi]...), nil
}

func (m *Memory) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	l, err := m.listLocked(key)
	if err != nil {
		return 0, err
	}
	limit := count
	if limit < 0 {
		limit = -limit
	}
	var removed int64
	keep := make([]bool, len(l))
	for i := range keep {
		keep[i] = true
	}
	visit := func(i int) {
		if l[i] == value && (limit == 0 || removed < limit) {
			keep[i] = false
			removed++
		}
	}
	if count < 0 {
		for i := len(l) - 1; i >= 0; i-- {
			visit(i)
		}
	} else {
		for i := range l {
			visit(i)
		}
	}
	out := make([]string, 0, len(l))
	for i, v := range l {
		if keep[i] {
			out = append(out, v)
		}
	}
	m.storeListLocked(key, out)
	return removed, nil
}

func (m *Memory) LLen(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	l, err := m.listLocked(key)
	if err != nil {
		return 0, err
	}
	return int64(len(l)), nil
}

func (m *Memory) RPopLPush(ctx context.Context, src, dst string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return "", err
	}
	sl, err := m.listLocked(src)
	if err != nil {
		return "", err
	}
	if len(sl) == 0 {
		return "", ErrNil
	}
	v := sl[len(sl)-1]
	m.storeListLocked(src, append([]string(nil), sl[:len(sl)-1]...))
	dl, err := m.listLocked(dst)
	if err != nil {
		return "", err
	}
	m.lists[dst] = append([]string{v}, dl...)
	return v, nil
}

func (m *Memory) zsetLocked(key string, create bool) (map[string]float64, error) {
	m.expiredLocked(key)
	if _, ok := m.strs[key]; ok {
		return nil, ErrWrongType
	}
	if _, ok := m.lists[key]; ok {
		return nil, ErrWrongType
	}
	z, ok := m.zsets[key]
	if !ok && create {
		z = map[string]float64{}
		m.zsets[key] = z
	}
	return z, nil
}

func (m *Memory) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	z, err := m.zsetLocked(key, true)
	if err != nil {
		return err
	}
	z[member] = score
	return nil
}

func (m *Memory) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	z, err := m.zsetLocked(key, false)
	if err != nil || z == nil {
		return 0, err
	}
	var n int64
	for _, mem := range members {
		if _, ok := z[mem]; ok {
			delete(z, mem)
			n++
		}
	}
	if len(z) == 0 {
		m.deleteLocked(key)
	}
	return n, nil
}

func (m *Memory) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return nil, err
	}
	z, err := m.zsetLocked(key, false)
	if err != nil {
		return nil, err
	}
	type entry struct {
		member string
		score  float64
	}
	matches := make([]entry, 0, len(z))
	for mem, sc := range z {
		if sc >= min && sc <= max {
			matches = append(matches, entry{mem, sc})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return matches[i].member < matches[j].member
	})
	if limit > 0 && int64(len(matches)) > limit {
		matches = matches[:limit]
	}
	out := make([]string, len(matches))
	for i, e := range matches {
		out[i] = e.member
	}
	return out, nil
}

func (m *Memory) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return 0, err
	}
	z, err := m.zsetLocked(key, false)
	if err != nil {
		return 0, err
	}
	return int64(len(z)), nil
}

func (m *Memory) Publish(ctx context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return err
	}
	for sub := range m.subs[channel] {
		select {
		case sub.out <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx); err != nil {
		return nil, err
	}
	sub := &memorySubscription{
		m:        m,
		channels: channels,
		out:      make(chan Message, 64),
		done:     make(chan struct{}),
	}
	for _, ch := range channels {
		set, ok := m.subs[ch]
		if !ok {
			set = map[*memorySubscription]struct{}{}
			m.subs[ch] = set
		}
		set[sub] = struct{}{}
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (m *Memory) Close() error { return nil }

type memorySubscription struct {
	m        *Memory
	channels []string
	out      chan Message
	done     chan struct{}
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan Message { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.m.mu.Lock()
		for _, ch := range s.channels {
			delete(s.m.subs[ch], s)
			if len(s.m.subs[ch]) == 0 {
				delete(s.m.subs, ch)
			}
		}
		close(s.out)
		close(s.done)
		s.m.mu.Unlock()
	})
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)
