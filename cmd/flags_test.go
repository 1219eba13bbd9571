package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestMustGetFlags(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	c.Flags().Bool("json", false, "")
	c.Flags().Int("every", 2, "")
	c.Flags().String("preview", "", "")
	c.Flags().Float64("scale", 0.25, "")
	if err := c.Flags().Parse([]string{"--json", "--every=3", "--preview=:8080"}); err != nil {
		t.Fatal(err)
	}

	if !mustGetBool(c, "json") {
		t.Error("json should be true")
	}
	if got := mustGetInt(c, "every"); got != 3 {
		t.Errorf("every = %d, want 3", got)
	}
	if got := mustGetString(c, "preview"); got != ":8080" {
		t.Errorf("preview = %q, want :8080", got)
	}
	if got := mustGetFloat64(c, "scale"); got != 0.25 {
		t.Errorf("scale = %v, want default 0.25", got)
	}
}

func TestMustGetFlags_PanicsOnWrongType(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	c.Flags().String("every", "", "")

	defer func() {
		if recover() == nil {
			t.Error("expected panic for a flag read with the wrong type")
		}
	}()
	mustGetInt(c, "every")
}
