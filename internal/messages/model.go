package messages

import "time"

// appleEpochOffset is the number of seconds between the Unix epoch and
// 2001-01-01, the epoch of the message log's date column.
const appleEpochOffset = 978307200

// Directions.
const (
	Incoming = "incoming"
	Outgoing = "outgoing"
)

// Message is one row of the external message log. Timestamp is the raw
// date column (nanoseconds since 2001-01-01) and orders rows.
type Message struct {
	ID        int64
	Timestamp int64
	Text      string
	Phone     string
	Contact   string
	FromMe    bool
}

// Direction reports whether the row was received or sent by this device.
func (m Message) Direction() string {
	if m.FromMe {
		return Outgoing
	}
	return Incoming
}

// Date converts Timestamp to wall-clock time.
func (m Message) Date() time.Time {
	return time.Unix(appleEpochOffset, 0).Add(time.Duration(m.Timestamp)).UTC()
}
