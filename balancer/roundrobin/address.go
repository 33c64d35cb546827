// Package roundrobin implements the inner child policy grpclb hands a
// freshly decoded server list to: a balancer that dials a fixed set of
// backend addresses and distributes picks across whichever of them are
// ready, round-robin. It is deliberately ignorant of grpclb -- nothing
// here knows about LB sessions, server-list streaming, or backoff; it
// only knows how to connect to addresses and hand one of them back per
// pick.
package roundrobin

// Address is one backend this Balancer dials. Token is opaque per-address
// user data -- grpclb stashes the LB token for the address here so Pick
// can return it alongside the chosen address without a second lookup.
type Address struct {
	Addr  string
	Token string
}
