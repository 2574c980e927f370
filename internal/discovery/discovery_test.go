package discovery

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestDiscovery(id string, changes chan<- []Peer) *Discovery {
	self := Announcement{ID: id, Name: id, IP: "127.0.0.1", Port: 52525, Platform: "linux"}
	opts := []Option{WithTTL(50 * time.Millisecond)}
	if changes != nil {
		opts = append(opts, WithOnChange(func(p []Peer) {
			select {
			case changes <- p:
			default:
			}
		}))
	}
	return New(0, 10*time.Millisecond, self, zerolog.Nop(), opts...)
}

func TestNewAppliesDefaults(t *testing.T) {
	d := New(0, 0, Announcement{ID: "a"}, zerolog.Nop())
	assert.Equal(t, DefaultPort, d.port)
	assert.Equal(t, DefaultAnnounceInterval, d.interval)
	assert.Equal(t, 3*DefaultAnnounceInterval, d.ttl)
}

func TestObserveIgnoresSelf(t *testing.T) {
	d := newTestDiscovery("self-id", nil)
	d.observe(Announcement{ID: "self-id"})
	assert.Empty(t, d.Peers())
}

func TestObserveAddsPeer(t *testing.T) {
	d := newTestDiscovery("self-id", nil)
	d.observe(Announcement{ID: "peer-1", Name: "peer-1"})
	peers := d.Peers()
	assert.Len(t, peers, 1)
	assert.Equal(t, "peer-1", peers[0].ID)
}

func TestReapOnceExpiresStalePeers(t *testing.T) {
	d := newTestDiscovery("self-id", nil)
	d.mu.Lock()
	d.peers["stale"] = Peer{
		Announcement: Announcement{ID: "stale"},
		LastSeen:     time.Now().Add(-time.Hour),
	}
	d.mu.Unlock()

	d.reapOnce()
	assert.Empty(t, d.Peers())
}

func TestPeerAgeReflectsLastSeen(t *testing.T) {
	p := Peer{LastSeen: time.Now().Add(-2 * time.Second)}
	assert.GreaterOrEqual(t, p.Age(), 2*time.Second)
}

func TestOnChangeFiresOnObserveAndReap(t *testing.T) {
	changes := make(chan []Peer, 8)
	d := newTestDiscovery("self-id", changes)

	d.observe(Announcement{ID: "p1"})
	select {
	case snap := <-changes:
		assert.Len(t, snap, 1)
	case <-time.After(time.Second):
		t.Fatal("onChange not invoked after observe")
	}

	d.mu.Lock()
	d.peers["p1"] = Peer{Announcement: Announcement{ID: "p1"}, LastSeen: time.Now().Add(-time.Hour)}
	d.mu.Unlock()
	d.reapOnce()

	select {
	case snap := <-changes:
		assert.Empty(t, snap)
	case <-time.After(time.Second):
		t.Fatal("onChange not invoked after reap")
	}
}
