package call

import (
	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/pion/webrtc/v4"
)

type linkEntry struct {
	link peer.Link
	// token tells callbacks of a closed link apart from a newer link to
	// the same peer.
	token uint64
}

// registry holds at most one link per remote participant. Only the loop
// touches it.
type registry struct {
	entries map[string]*linkEntry
	order   []string
	seq     uint64
}

func newRegistry() registry {
	return registry{entries: make(map[string]*linkEntry)}
}

func (r *registry) get(id string) (peer.Link, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.link, true
}

func (r *registry) current(id string, token uint64) bool {
	e, ok := r.entries[id]
	return ok && e.token == token
}

func (r *registry) nextToken() uint64 {
	r.seq++
	return r.seq
}

func (r *registry) put(id string, link peer.Link, token uint64) {
	r.entries[id] = &linkEntry{link: link, token: token}
	r.order = append(r.order, id)
}

func (r *registry) remove(id string) (peer.Link, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e.link, true
}

// each visits links in creation order.
func (r *registry) each(fn func(id string, link peer.Link)) {
	for _, id := range r.order {
		fn(id, r.entries[id].link)
	}
}

func (r *registry) ids() []string {
	return append([]string(nil), r.order...)
}

func (r *registry) len() int {
	return len(r.entries)
}

// createLink returns the link for id, creating it bound to the current local
// tracks if needed. Links never pick up tracks acquired later.
func (c *Call) createLink(id string) (peer.Link, error) {
	if link, ok := c.links.get(id); ok {
		return link, nil
	}

	var tracks []webrtc.TrackLocal
	if c.local != nil {
		for _, t := range c.local.Tracks() {
			tracks = append(tracks, t)
		}
	}

	token := c.links.nextToken()
	link, err := c.opts.Factory.NewLink(id, tracks, c.linkEvents(id, token))
	if err != nil {
		return nil, &Error{Op: "create link", Peer: id, Err: err}
	}
	c.links.put(id, link, token)
	c.log.Debug("link created", "peer", id, "tracks", len(tracks))
	return link, nil
}

// closeLink closes and forgets the link for id. Absent ids are a no-op.
func (c *Call) closeLink(id string) {
	link, ok := c.links.remove(id)
	if !ok {
		return
	}
	if err := link.Close(); err != nil {
		c.log.Warn("closing link", "peer", id, "error", err)
	}
}

func (c *Call) closeAllLinks() {
	for _, id := range c.links.ids() {
		c.closeLink(id)
	}
}

// linkEvents posts pion callbacks onto the loop, tagged so that callbacks of
// a link that has since been closed are ignored.
func (c *Call) linkEvents(id string, token uint64) peer.Events {
	return peer.Events{
		OnICECandidate: func(cand webrtc.ICECandidateInit) {
			c.post(func() {
				if c.links.current(id, token) {
					c.send(signaling.NewICECandidate(id, cand))
				}
			})
		},
		OnTrack: func(stream *media.RemoteStream) {
			c.post(func() {
				if c.links.current(id, token) {
					c.onRemoteStream(id, stream)
				}
			})
		},
		OnStateChange: func(state webrtc.PeerConnectionState) {
			c.post(func() {
				if c.links.current(id, token) {
					c.onLinkState(id, state)
				}
			})
		},
	}
}
