package weather

import (
	"sync"
	"testing"
)

func lockCount(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func TestLocationLockReleasedWhenUncontended(t *testing.T) {
	svc := NewService(nil)

	unlock := svc.lockLocation("Almaty", "KZ")
	if got := lockCount(svc); got != 1 {
		t.Fatalf("expected 1 live lock while held, got %d", got)
	}
	unlock()

	if got := lockCount(svc); got != 0 {
		t.Fatalf("expected lock map to be empty after release, got %d entries", got)
	}
}

func TestLocationLockDrainsUnderContention(t *testing.T) {
	svc := NewService(nil)

	var wg sync.WaitGroup
	cities := []string{"Astana", "astana", "Almaty", "Taraz"}
	for i := 0; i < 40; i++ {
		city := cities[i%len(cities)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := svc.lockLocation(city, "KZ")
			unlock()
		}()
	}
	wg.Wait()

	if got := lockCount(svc); got != 0 {
		t.Fatalf("expected all locks to be released, got %d entries", got)
	}
}

func TestLocationLockHeldByAnotherKeyStays(t *testing.T) {
	svc := NewService(nil)

	unlockA := svc.lockLocation("Astana", "KZ")
	unlockB := svc.lockLocation("Almaty", "KZ")

	unlockA()
	if got := lockCount(svc); got != 1 {
		t.Fatalf("expected the still-held lock to remain, got %d entries", got)
	}
	unlockB()
	if got := lockCount(svc); got != 0 {
		t.Fatalf("expected lock map to be empty after both releases, got %d entries", got)
	}
}
