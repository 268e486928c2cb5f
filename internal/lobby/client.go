package lobby

import (
	"time"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/transport"
)

// PendingStart is the notification a Client picks up through /wait
// once its game has activated.
type PendingStart struct {
	Host      string
	Port      int
	Transport transport.Transport
}

// Client is one entry in the ClientDirectory.
type Client struct {
	ID           string
	Name         string
	LastSeen     time.Time
	PendingStart *PendingStart
}

type clientSlot struct {
	inUse  bool
	client Client
}

// ClientDirectory is the fixed-capacity (64) client
// table. It performs no locking of its own: every method here is only
// ever called with the LobbyCoordinator mutex held.
type ClientDirectory struct {
	slots [64]clientSlot
}

// Create allocates a slot for a freshly /hello'd client. genID
// produces the 8-character opaque id.
func (d *ClientDirectory) Create(name string, genID func() string) (*Client, bool) {
	for i := range d.slots {
		if d.slots[i].inUse {
			continue
		}
		d.slots[i] = clientSlot{
			inUse: true,
			client: Client{
				ID:       genID(),
				Name:     name,
				LastSeen: time.Now(),
			},
		}
		return &d.slots[i].client, true
	}
	return nil, false
}

// Find returns the live client for id, or (nil, false).
func (d *ClientDirectory) Find(id string) (*Client, bool) {
	for i := range d.slots {
		if d.slots[i].inUse && d.slots[i].client.ID == id {
			return &d.slots[i].client, true
		}
	}
	return nil, false
}

// Touch refreshes last_seen for id. Returns false if id is unknown.
func (d *ClientDirectory) Touch(id string, now time.Time) bool {
	c, ok := d.Find(id)
	if !ok {
		return false
	}
	c.LastSeen = now
	return true
}

// Expire frees any slot whose last_seen predates the cutoff and
// returns the freed client ids (for logging).
func (d *ClientDirectory) Expire(cutoff time.Time) []string {
	var expired []string
	for i := range d.slots {
		if d.slots[i].inUse && d.slots[i].client.LastSeen.Before(cutoff) {
			expired = append(expired, d.slots[i].client.ID)
			d.slots[i] = clientSlot{}
		}
	}
	return expired
}
