package websocket

import "sync"

// userColors is the fixed palette assigned to participants. Ten entries;
// the allocator wraps, so color collisions are possible in a room once more
// than ten participants have connected process-wide.
var userColors = [...]string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
}

// ColorAllocator hands out display colors round-robin from userColors. One
// shared cursor for the whole process, regardless of room.
type ColorAllocator struct {
	mu   sync.Mutex
	next int
}

func NewColorAllocator() *ColorAllocator {
	return &ColorAllocator{}
}

// Next returns the next color in the palette, wrapping after the last one.
func (a *ColorAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	color := userColors[a.next%len(userColors)]
	a.next++
	return color
}
