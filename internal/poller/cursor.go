package poller

// Cursor is the watermark: the newest message timestamp already seen.
// It only moves forward.
type Cursor struct {
	ts int64
}

// NewCursor starts a cursor at ts.
func NewCursor(ts int64) Cursor {
	return Cursor{ts: ts}
}

// Value returns the watermark timestamp.
func (c Cursor) Value() int64 {
	return c.ts
}

// After reports whether ts is newer than the watermark.
func (c Cursor) After(ts int64) bool {
	return ts > c.ts
}

// Advance moves the watermark to ts if ts is newer and reports whether it
// moved.
func (c *Cursor) Advance(ts int64) bool {
	if ts <= c.ts {
		return false
	}
	c.ts = ts
	return true
}
