package volkv

import "sync"

// upgradeMutex is a readers-writer lock with an upgrade mode, the shape boost
// gives with upgrade_lock: any number of readers, plus at most one upgrade
// holder that shares with readers and can later become exclusive. The upgrade
// token (u) serializes writers against each other, so at most one goroutine is
// ever poised to upgrade a given node; that is what makes the top-down upgrade
// pass of the crabbing protocol deadlock-free.
type upgradeMutex struct {
	u  sync.Mutex
	rw sync.RWMutex
}

func (m *upgradeMutex) RLock() { m.rw.RLock() }

func (m *upgradeMutex) RUnlock() { m.rw.RUnlock() }

// UpgradableLock acquires shared ownership plus the upgrade token.
func (m *upgradeMutex) UpgradableLock() {
	m.u.Lock()
	m.rw.RLock()
}

func (m *upgradeMutex) UpgradableUnlock() {
	m.rw.RUnlock()
	m.u.Unlock()
}

// Upgrade trades shared ownership for exclusive. The caller must hold the
// lock in upgradable mode. Readers may slip in during the exchange; no other
// writer can, because the upgrade token is still held.
func (m *upgradeMutex) Upgrade() {
	m.rw.RUnlock()
	m.rw.Lock()
}

// UpgradedUnlock releases a lock that went through Upgrade.
func (m *upgradeMutex) UpgradedUnlock() {
	m.rw.Unlock()
	m.u.Unlock()
}

// Lock acquires exclusive ownership directly.
func (m *upgradeMutex) Lock() {
	m.u.Lock()
	m.rw.Lock()
}

func (m *upgradeMutex) Unlock() {
	m.rw.Unlock()
	m.u.Unlock()
}

// TryLock attempts exclusive ownership without blocking. The cache uses it to
// skip evicting nodes that an in-flight operation is holding.
func (m *upgradeMutex) TryLock() bool {
	if !m.u.TryLock() {
		return false
	}
	if !m.rw.TryLock() {
		m.u.Unlock()
		return false
	}
	return true
}
