package errcode

import (
	"errors"
	"testing"
)

func TestOf_NilIsOK(t *testing.T) {
	if Of(nil) != OK {
		t.Fatalf("Of(nil) = %v, want OK", Of(nil))
	}
}

func TestOf_Code(t *testing.T) {
	if Of(AccessDenied) != AccessDenied {
		t.Fatalf("Of(AccessDenied) = %v", Of(AccessDenied))
	}
}

func TestOf_WrappedE(t *testing.T) {
	e := New(UnroutedCommand, "ParseCommandInstance", "no component supports trait %q", "foo")
	if Of(e) != UnroutedCommand {
		t.Fatalf("Of(e) = %v, want UnroutedCommand", Of(e))
	}
}

func TestOf_UnknownDefaultsToError(t *testing.T) {
	if Of(errors.New("boom")) != Error {
		t.Fatalf("Of(plain error) = %v, want Error", Of(errors.New("boom")))
	}
}

func TestE_UnwrapChain(t *testing.T) {
	cause := errors.New("dial refused")
	e := Wrap(TransportError, "SendRequest", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("errors.Is(e, cause) = false")
	}
}

func TestFatal_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	Fatal("RootClientToken.Claim", "none->none claim is a programming error")
}

func TestCloudErr_CarriesStatus(t *testing.T) {
	e := CloudErr("patchState", 503, errors.New("unavailable"))
	if e.HTTPStatus != 503 {
		t.Fatalf("HTTPStatus = %d, want 503", e.HTTPStatus)
	}
	if e.Code() != CloudError {
		t.Fatalf("Code() = %v, want CloudError", e.Code())
	}
}
