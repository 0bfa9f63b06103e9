package config

import (
	"testing"
	"time"

	kit "hangar/internal/platform/testkit"
)

func TestPrefixAndKey(t *testing.T) {
	root := New()
	arc := root.Prefix("CORE_ARCHIVIST_")
	if got := arc.key("BATCH_SIZE"); got != "CORE_ARCHIVIST_BATCH_SIZE" {
		t.Fatalf("key() = %q", got)
	}
	// nested prefix
	nested := root.Prefix("CORE_").Prefix("TOWER_")
	if got := nested.key("TIMEOUT"); got != "CORE_TOWER_TIMEOUT" {
		t.Fatalf("nested key() = %q", got)
	}
}

func TestMustString(t *testing.T) {
	c := New().Prefix("APP_")
	t.Setenv("APP_NAME", "  hangar ")
	if got := c.MustString("NAME"); got != "hangar" {
		t.Fatalf("MustString = %q", got)
	}
	kit.MustPanic(t, func() { _ = c.MustString("MISSING") })
}

func TestMustInt(t *testing.T) {
	c := New().Prefix("SVC_")
	t.Setenv("SVC_WORKERS", "  8 ")
	if got := c.MustInt("WORKERS"); got != 8 {
		t.Fatalf("MustInt = %d", got)
	}
	kit.MustPanic(t, func() { _ = c.MustInt("MISSING") })
	t.Setenv("SVC_BAD", "x")
	kit.MustPanic(t, func() { _ = c.MustInt("BAD") })
}

func TestMustDuration(t *testing.T) {
	c := New().Prefix("D_")
	t.Setenv("D_TICK", "90s")
	if got := c.MustDuration("TICK"); got != 90*time.Second {
		t.Fatalf("MustDuration = %v", got)
	}
	t.Setenv("D_BAD", "ninety")
	kit.MustPanic(t, func() { _ = c.MustDuration("BAD") })
}

func TestRequire(t *testing.T) {
	c := New().Prefix("R_")
	t.Setenv("R_A", "1")
	t.Setenv("R_B", "2")
	kit.MustNotPanic(t, func() { c.Require("A", "B") })
	kit.MustPanic(t, func() { c.Require("A", "NOPE") })
}

func TestMayDefaults(t *testing.T) {
	c := New().Prefix("M_")

	if got := c.MayString("S", "fallback"); got != "fallback" {
		t.Fatalf("MayString default = %q", got)
	}
	t.Setenv("M_S", "set")
	if got := c.MayString("S", "fallback"); got != "set" {
		t.Fatalf("MayString set = %q", got)
	}

	if got := c.MayInt("I", 42); got != 42 {
		t.Fatalf("MayInt default = %d", got)
	}
	t.Setenv("M_I", "7")
	if got := c.MayInt("I", 42); got != 7 {
		t.Fatalf("MayInt set = %d", got)
	}
	t.Setenv("M_I", "not-an-int")
	if got := c.MayInt("I", 42); got != 42 {
		t.Fatalf("MayInt invalid should fall back, got %d", got)
	}

	if got := c.MayBool("B", true); !got {
		t.Fatalf("MayBool default should be true")
	}
	t.Setenv("M_B", "false")
	if got := c.MayBool("B", true); got {
		t.Fatalf("MayBool set should be false")
	}
	t.Setenv("M_B", "maybe")
	if got := c.MayBool("B", true); !got {
		t.Fatalf("MayBool invalid should fall back")
	}

	if got := c.MayDuration("T", time.Minute); got != time.Minute {
		t.Fatalf("MayDuration default = %v", got)
	}
	t.Setenv("M_T", "250ms")
	if got := c.MayDuration("T", time.Minute); got != 250*time.Millisecond {
		t.Fatalf("MayDuration set = %v", got)
	}

	if got := c.MayFloat("F", 1.5); got != 1.5 {
		t.Fatalf("MayFloat default = %v", got)
	}
	t.Setenv("M_F", "80")
	if got := c.MayFloat("F", 1.5); got != 80 {
		t.Fatalf("MayFloat set = %v", got)
	}
}
