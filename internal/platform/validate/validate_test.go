package validate

import (
	"testing"

	perr "hangar/internal/platform/errors"
)

type enqueueShape struct {
	DroneID  int64  `json:"drone_id" validate:"required,gt=0"`
	Type     string `json:"command_type" validate:"required"`
	Priority int    `json:"priority" validate:"gte=0,lte=100"`
}

func TestStructPasses(t *testing.T) {
	if err := Struct(enqueueShape{DroneID: 1, Type: "TAKEOFF", Priority: 50}); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}
}

func TestStructMapsToValidationError(t *testing.T) {
	err := Struct(enqueueShape{DroneID: 0, Type: "TAKEOFF"})
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("code = %v, want validation", perr.CodeOf(err))
	}
	// field name comes from the json tag, not the Go name
	pe, ok := perr.As(err)
	if !ok {
		t.Fatalf("expected project error type")
	}
	if pe.Field() != "drone_id" {
		t.Fatalf("field = %q, want drone_id", pe.Field())
	}
}

func TestStructBoundsChecks(t *testing.T) {
	if err := Struct(enqueueShape{DroneID: 1, Type: "LAND", Priority: 101}); err == nil {
		t.Fatalf("priority above 100 should be rejected")
	}
	if err := Struct(enqueueShape{DroneID: 1, Type: "LAND", Priority: 100}); err != nil {
		t.Fatalf("priority 100 is the inclusive upper bound: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	if err := RegisterValidation("even", func(fl FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	}); err != nil {
		t.Fatalf("RegisterValidation: %v", err)
	}

	type s struct {
		N int `json:"n" validate:"even"`
	}
	if err := Struct(s{N: 2}); err != nil {
		t.Fatalf("even value rejected: %v", err)
	}
	if err := Struct(s{N: 3}); err == nil {
		t.Fatalf("odd value should fail the custom tag")
	}
}
