package grpclb

// pendingPick is one pick request queued because no RR was installed when
// it arrived. targetSlot is a pointer the caller uses to identify this
// specific pick later (cancel_pick matches against it); it is set to nil
// once the pick is cancelled or drained by shutdown so callers can tell
// "no backend" apart from "still pending". A pick drained into a newly
// adopted RR has its result written through it instead.
type pendingPick struct {
	args         PickArgs
	targetSlot   *PickResult
	flags        uint32
	continuation func(PickResult, error)
}

// pendingPing is one ping request queued for the same reason.
type pendingPing struct {
	continuation func(error)
}

// pendingQueues holds the two FIFOs of requests waiting for an RR to be
// installed. Every method requires the caller to already hold the
// coordinator lock -- pendingQueues does no locking of its own.
type pendingQueues struct {
	picks []*pendingPick
	pings []*pendingPing
}

func newPendingQueues() *pendingQueues {
	return &pendingQueues{}
}

func (q *pendingQueues) enqueuePick(p *pendingPick) {
	q.picks = append(q.picks, p)
}

func (q *pendingQueues) enqueuePing(p *pendingPing) {
	q.pings = append(q.pings, p)
}

// drainPicks detaches and returns every queued pick, in enqueue order,
// leaving the queue empty.
func (q *pendingQueues) drainPicks() []*pendingPick {
	if len(q.picks) == 0 {
		return nil
	}
	out := q.picks
	q.picks = nil
	return out
}

// drainPings detaches and returns every queued ping, in enqueue order,
// leaving the queue empty.
func (q *pendingQueues) drainPings() []*pendingPing {
	if len(q.pings) == 0 {
		return nil
	}
	out := q.pings
	q.pings = nil
	return out
}

// cancelMatchingPicks removes every queued pick predicate matches and
// returns them with their target slot cleared, preserving order for the
// survivors which remain enqueued. It does not invoke any continuation --
// per spec §5, nothing the coordinator lock guards may call back into the
// policy, so the caller completes the returned picks (with err) only once
// it has released the lock.
func (q *pendingQueues) cancelMatchingPicks(predicate func(*pendingPick) bool) []*pendingPick {
	if len(q.picks) == 0 {
		return nil
	}
	var matched []*pendingPick
	survivors := q.picks[:0:0]
	for _, p := range q.picks {
		if predicate(p) {
			p.targetSlot = nil
			matched = append(matched, p)
			continue
		}
		survivors = append(survivors, p)
	}
	q.picks = survivors
	return matched
}

// cancelByTargetSlot matches the pick whose targetSlot pointer equals slot.
func cancelByTargetSlot(slot *PickResult) func(*pendingPick) bool {
	return func(p *pendingPick) bool {
		return p.targetSlot == slot
	}
}

// cancelByFlagMask matches picks whose flags, masked by mask, equal needle.
func cancelByFlagMask(mask, needle uint32) func(*pendingPick) bool {
	return func(p *pendingPick) bool {
		return p.flags&mask == needle
	}
}

// drainAll drains both queues, clearing the target slot on picks (the
// caller treats a null target as "no backend"), and returns them for the
// caller to complete once it has released the coordinator lock. Used by
// shutdown.
func (q *pendingQueues) drainAll() ([]*pendingPick, []*pendingPing) {
	picks := q.drainPicks()
	for _, p := range picks {
		p.targetSlot = nil
	}
	return picks, q.drainPings()
}

func (q *pendingQueues) pickCount() int { return len(q.picks) }
func (q *pendingQueues) pingCount() int { return len(q.pings) }

// completePicks invokes every pick's continuation with (PickResult{}, err).
// Callers must hold no lock while calling this -- it exists so
// cancellation/shutdown paths can complete picks gathered under the
// coordinator lock only after releasing it.
func completePicks(picks []*pendingPick, err error) {
	for _, p := range picks {
		if p.continuation != nil {
			p.continuation(PickResult{}, err)
		}
	}
}

// completePings invokes every ping's continuation with err. Same calling
// convention as completePicks.
func completePings(pings []*pendingPing, err error) {
	for _, p := range pings {
		if p.continuation != nil {
			p.continuation(err)
		}
	}
}
