package types

// Attribute is a single key/value pair of an event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event represents a typed event emitted during state transitions.
// Attributes keep their emission order.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// NewEvent starts an event of the given type.
func NewEvent(eventType string) Event {
	return Event{Type: eventType}
}

// Add appends an attribute and returns the event for chaining.
func (e Event) Add(key, value string) Event {
	attrs := make([]Attribute, len(e.Attributes), len(e.Attributes)+1)
	copy(attrs, e.Attributes)
	e.Attributes = append(attrs, Attribute{Key: key, Value: value})
	return e
}

// Value returns the first attribute value stored under key.
func (e Event) Value(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Has reports whether every supplied attribute is present on the event.
func (e Event) Has(attrs ...Attribute) bool {
	for _, want := range attrs {
		found := false
		for _, got := range e.Attributes {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
