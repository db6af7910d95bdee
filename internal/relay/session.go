package relay

import "github.com/BioHazard786/warpcall/internal/signaling"

// session is one call's set of connected clients, in join order. It is owned
// by the hub goroutine.
type session struct {
	id      string
	members map[string]*Client
	order   []string
}

func newSession(id string) *session {
	return &session{id: id, members: make(map[string]*Client)}
}

// add makes c the member for its user id and returns the client it replaced.
func (s *session) add(c *Client) *Client {
	id := c.Info.UserID
	prev, ok := s.members[id]
	s.members[id] = c
	if !ok {
		s.order = append(s.order, id)
	}
	return prev
}

// remove drops c if it is still the current member for its user id.
func (s *session) remove(c *Client) bool {
	id := c.Info.UserID
	if s.members[id] != c {
		return false
	}
	delete(s.members, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *session) get(userID string) (*Client, bool) {
	c, ok := s.members[userID]
	return c, ok
}

// others returns every member but userID, in join order.
func (s *session) others(userID string) []*Client {
	out := make([]*Client, 0, len(s.order))
	for _, id := range s.order {
		if id != userID {
			out = append(out, s.members[id])
		}
	}
	return out
}

func (s *session) all() []*Client {
	return s.others("")
}

func (s *session) infos(exclude string) []signaling.ParticipantInfo {
	others := s.others(exclude)
	out := make([]signaling.ParticipantInfo, len(others))
	for i, c := range others {
		out[i] = c.Info
	}
	return out
}

func (s *session) empty() bool {
	return len(s.members) == 0
}
