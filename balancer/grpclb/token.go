package grpclb

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/grpclb/rpc/metadata"
)

// lbTokenKey is the metadata key the grpclb protocol reserves for the
// per-address LB token. It is lowercase because metadata.MD keys are
// case-insensitive and always stored lowercase.
const lbTokenKey = "lb-token"

// injectToken sets tok as the lb-token entry of md. If md is nil
// injectToken does nothing -- there is no metadata batch to attach to.
//
// injectToken itself never aborts; its callers run checkTokenInvariant
// first, which panics when the chosen backend has no recorded token.
func injectToken(ctx context.Context, md metadata.MD, tok string) {
	if md == nil {
		return
	}
	md.SetString(lbTokenKey, tok)
}

// checkTokenInvariant enforces that every Server produced by
// decodeServerList carries at least the empty-token sentinel, so a pick
// that resolved to a non-nil backend must always have a token string to
// inject (possibly the empty sentinel, which injectToken still writes as
// an empty value -- the spec distinguishes "no token recorded", a bug,
// from "empty token", a valid outcome). ok reports whether a token was
// found for the chosen address; it is false only when the address was not present
// in the table at all, which would mean RRSupervisor built an RR over
// addresses grpclb never decoded -- a programming error.
func checkTokenInvariant(ok bool) {
	if !ok {
		panic("grpclb: pick resolved to a backend with no recorded LB token; server list decoding is corrupt")
	}
}
