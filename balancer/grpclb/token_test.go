package grpclb

import (
	"testing"

	"github.com/bearlytools/grpclb/rpc/metadata"
)

func TestInjectToken(t *testing.T) {
	ctx := t.Context()

	md := metadata.New()
	injectToken(ctx, md, "tok-a")

	if got := md.GetString(lbTokenKey); got != "tok-a" {
		t.Errorf("TestInjectToken: GetString(lbTokenKey) = %q, want %q", got, "tok-a")
	}
}

func TestInjectTokenNilMetadata(t *testing.T) {
	ctx := t.Context()

	// Must not panic when there is no metadata batch to attach to.
	injectToken(ctx, nil, "tok-a")
}

func TestCheckTokenInvariantPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("TestCheckTokenInvariantPanics: expected panic, got none")
		}
	}()
	checkTokenInvariant(false)
}

func TestCheckTokenInvariantOK(t *testing.T) {
	defer func() {
		if recover() != nil {
			t.Errorf("TestCheckTokenInvariantOK: unexpected panic")
		}
	}()
	checkTokenInvariant(true)
}
