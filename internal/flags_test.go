package internal

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
)

func TestParsePosition(t *testing.T) {
	pos, err := ParsePosition(" 120.5, -40 ")
	if err != nil {
		t.Fatalf("ParsePosition: %v", err)
	}
	if pos != (Position{X: 120.5, Y: -40}) {
		t.Fatalf("unexpected position %+v", pos)
	}

	for _, in := range []string{"", "12", "a,1", "1,b"} {
		if _, err := ParsePosition(in); !errors.Is(err, ErrValidation) {
			t.Errorf("ParsePosition(%q): expected validation error, got %v", in, err)
		}
	}
}

func TestPositionFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "add"}
	AddPositionFlag(cmd)

	pos, err := PositionFlag(cmd)
	if err != nil || pos != nil {
		t.Fatalf("expected no position when the flag is unset, got %+v, %v", pos, err)
	}

	if err := cmd.Flags().Set("at", "10,20"); err != nil {
		t.Fatal(err)
	}
	pos, err = PositionFlag(cmd)
	if err != nil {
		t.Fatalf("PositionFlag: %v", err)
	}
	if pos == nil || *pos != (Position{X: 10, Y: 20}) {
		t.Fatalf("unexpected position %+v", pos)
	}
}
