package inbound

import "testing"

func TestInterpret(t *testing.T) {
	tests := []struct {
		body string
		want Command
	}{
		{"STOP", Command{Kind: KindOptOut}},
		{"  unsubscribe ", Command{Kind: KindOptOut}},
		{"Cancel", Command{Kind: KindOptOut}},
		{"start", Command{Kind: KindOptIn}},
		{"UNSTOP", Command{Kind: KindOptIn}},
		{"yes", Command{Kind: KindCallNow}},
		{"Y", Command{Kind: KindCallNow}},
		{"1", Command{Kind: KindChoose, Choice: 1}},
		{" 3\n", Command{Kind: KindChoose, Choice: 3}},
		{"4", Command{Kind: KindHelp}},
		{"0", Command{Kind: KindHelp}},
		{"12", Command{Kind: KindHelp}},
		{"please stop", Command{Kind: KindHelp}},
		{"yes please", Command{Kind: KindHelp}},
		{"", Command{Kind: KindHelp}},
	}
	for _, tt := range tests {
		if got := Interpret(tt.body); got != tt.want {
			t.Fatalf("Interpret(%q) = %+v, want %+v", tt.body, got, tt.want)
		}
	}
}

func TestCommandString(t *testing.T) {
	if got := (Command{Kind: KindChoose, Choice: 2}).String(); got != "choose_2" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Interpret("???").String(); got != "help" {
		t.Fatalf("unexpected %q", got)
	}
}
