package service

import "sync"

// KeyedLocker 按比赛ID加互斥锁，同一场比赛的命令串行执行，不同比赛互不影响。
// 跨实例的串行化由事务内的行锁保证
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[uint64]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker 创建 KeyedLocker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[uint64]*keyedLock)}
}

// Lock 获取 key 对应的锁，返回释放函数
func (l *KeyedLocker) Lock(key uint64) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size 当前持有或等待中的 key 数量
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
