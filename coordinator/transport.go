package coordinator

import (
	"github.com/frostsnap/frostsnap/protocol"
	"github.com/frostsnap/frostsnap/transport"
	"github.com/frostsnap/frostsnap/wire"
)

// Flush queues every ToDevice effect from sends onto m and returns the
// ToCoordinatorUser events for the caller to forward to its own UI
// layer, the glue a host application uses to drive Coordinator purely
// off transport.Manager.
func Flush(m *transport.Manager, sends []protocol.CoordinatorSend) []protocol.CoordinatorToUserMessage {
	var userEvents []protocol.CoordinatorToUserMessage
	for _, s := range sends {
		switch v := s.(type) {
		case protocol.ToDevice:
			m.Queue(v.Destinations, wire.CoreMessage{Destinations: v.Destinations, Message: v.Message})
		case protocol.ToCoordinatorUser:
			userEvents = append(userEvents, v.Message)
		}
	}
	return userEvents
}

// Poll drains one round of m, marks newly-registered devices connected
// on c, and feeds every inbound core message to c, flushing the
// resulting effects straight back onto m. It returns the
// CoordinatorToUserMessage events produced this round.
func Poll(c *Coordinator, m *transport.Manager) ([]protocol.CoordinatorToUserMessage, error) {
	result, err := m.Poll()
	if err != nil {
		return nil, err
	}

	var userEvents []protocol.CoordinatorToUserMessage
	for _, d := range result.NewlyRegistered {
		c.NoteConnected(d)
	}
	for _, cm := range result.CoreMessages {
		sends, err := c.HandleDeviceMessage(cm.From, cm.Message)
		if err != nil {
			log.Errorf("handling message from %s: %v", cm.From, err)
			continue
		}
		userEvents = append(userEvents, Flush(m, sends)...)
	}
	return userEvents, nil
}
