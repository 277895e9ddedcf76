package room

// Change describes a membership change. Count is the registry size after the
// change.
type Change struct {
	Conn   Conn
	Joined bool
	Count  int
}

// Registry is the set of live connections of one room actor. It is owned by
// that actor and is not safe for concurrent use.
type Registry struct {
	conns    map[string]Conn
	onChange func(Change)
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// OnChange registers fn to be called after every successful Add or Remove.
func (r *Registry) OnChange(fn func(Change)) {
	r.onChange = fn
}

// Add inserts c and reports whether it was not already present.
func (r *Registry) Add(c Conn) bool {
	if _, ok := r.conns[c.ID()]; ok {
		return false
	}
	r.conns[c.ID()] = c
	r.notify(Change{Conn: c, Joined: true, Count: len(r.conns)})
	return true
}

// Remove deletes c and reports whether it was present.
func (r *Registry) Remove(c Conn) bool {
	if _, ok := r.conns[c.ID()]; !ok {
		return false
	}
	delete(r.conns, c.ID())
	r.notify(Change{Conn: c, Joined: false, Count: len(r.conns)})
	return true
}

// Has reports whether c is registered.
func (r *Registry) Has(c Conn) bool {
	_, ok := r.conns[c.ID()]
	return ok
}

// All returns a snapshot of the registered connections in no particular
// order. Removing connections while ranging over it is safe.
func (r *Registry) All() []Conn {
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	return len(r.conns)
}

func (r *Registry) notify(ch Change) {
	if r.onChange != nil {
		r.onChange(ch)
	}
}
