package shutdown

import (
	"context"
	"errors"
	"testing"
)

func TestRunKeepsGoingAfterFailures(t *testing.T) {
	var order []string
	step := func(name string, err error) Step {
		return Step{Name: name, Fn: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}
	boom := errors.New("boom")
	err := Run(context.Background(),
		step("http", nil),
		Step{Name: "skipped"},
		step("gateway", boom),
		step("store", nil),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	want := []string{"http", "gateway", "store"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
	if err := Run(context.Background(), step("ok", nil)); err != nil {
		t.Fatalf("clean run returned %v", err)
	}
}
