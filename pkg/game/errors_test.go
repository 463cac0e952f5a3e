package game

import (
	"errors"
	"testing"
)

func TestWrapErrorNilPassthrough(test *testing.T) {
	if err := WrapError(operationDispatch, codeBackend, nil); err != nil {
		test.Fatalf("expected nil, got %v", err)
	}
}

func TestDispatchErrorSegments(test *testing.T) {
	underlying := errors.New("boom")
	err := WrapError(operationTrade, codePrecondition, underlying)

	var dispatchError DispatchError
	if !errors.As(err, &dispatchError) {
		test.Fatalf("expected DispatchError, got %T", err)
	}
	if dispatchError.Operation() != operationTrade {
		test.Fatalf("unexpected operation: %q", dispatchError.Operation())
	}
	if dispatchError.Code() != codePrecondition {
		test.Fatalf("unexpected code: %q", dispatchError.Code())
	}
	if !errors.Is(err, underlying) {
		test.Fatal("wrapped error must unwrap to the underlying error")
	}
	if err.Error() != "trade.precondition: boom" {
		test.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWalletAddressValidation(test *testing.T) {
	cases := []struct {
		name  string
		raw   string
		valid bool
		want  string
	}{
		{name: "lowercase", raw: testAddressValue, valid: true, want: testAddressValue},
		{name: "mixed case normalized", raw: "0x58B200A5AC031DD6245FFC63E0A247AEE39EC609", valid: true, want: testAddressValue},
		{name: "padded", raw: "  " + testAddressValue + " ", valid: true, want: testAddressValue},
		{name: "missing prefix", raw: "58b200a5ac031dd6245ffc63e0a247aee39ec60900"},
		{name: "too short", raw: "0x58b200"},
		{name: "non-hex characters", raw: "0x58b200a5ac031dd6245ffc63e0a247aee39eczzz"},
		{name: "empty", raw: ""},
	}
	for _, testCase := range cases {
		address, err := NewWalletAddress(testCase.raw)
		if testCase.valid {
			if err != nil {
				test.Fatalf("%s: unexpected error %v", testCase.name, err)
			}
			if address.String() != testCase.want {
				test.Fatalf("%s: got %q, want %q", testCase.name, address, testCase.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidWalletAddress) {
			test.Fatalf("%s: expected ErrInvalidWalletAddress, got %v", testCase.name, err)
		}
	}
}
