package raw

import "testing"

func TestGet(t *testing.T) {
	c := New().Prefix("LOG_")
	if got := c.Get("LEVEL", "debug"); got != "debug" {
		t.Fatalf("default = %q", got)
	}
	t.Setenv("LOG_LEVEL", "  info ")
	if got := c.Get("LEVEL", "debug"); got != "info" {
		t.Fatalf("set = %q", got)
	}
}

func TestGetBool(t *testing.T) {
	c := New().Prefix("B_")
	if !c.GetBool("ON", true) {
		t.Fatalf("default true expected")
	}
	for _, truthy := range []string{"1", "true", "yes"} {
		t.Setenv("B_ON", truthy)
		if !c.GetBool("ON", false) {
			t.Fatalf("%q should parse as true", truthy)
		}
	}
	t.Setenv("B_ON", "off")
	if c.GetBool("ON", true) {
		t.Fatalf("unrecognized value should be false, not the default")
	}
}

func TestGetInt(t *testing.T) {
	c := New().Prefix("I_")
	if got := c.GetInt("N", 4); got != 4 {
		t.Fatalf("default = %d", got)
	}
	t.Setenv("I_N", "123")
	if got := c.GetInt("N", 4); got != 123 {
		t.Fatalf("set = %d", got)
	}
	t.Setenv("I_N", "-5")
	if got := c.GetInt("N", 4); got != 4 {
		t.Fatalf("negative should fall back to default, got %d", got)
	}
}
