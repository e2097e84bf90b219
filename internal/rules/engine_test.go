package rules

import "testing"

func TestApply_LegalAndIllegal(t *testing.T) {
	e := NewEngine()
	if e.SideToMove() != "white" {
		t.Fatalf("expected white to move, got %s", e.SideToMove())
	}

	ap, err := e.Apply(MoveSpec{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply e2e4: %v", err)
	}
	if ap.UCI != "e2e4" || ap.SAN != "e4" || ap.Color != "white" {
		t.Fatalf("unexpected applied move: %+v", ap)
	}
	if e.SideToMove() != "black" {
		t.Fatalf("turn did not flip")
	}

	// moving a white pawn while it is black's turn
	if _, err := e.Apply(MoveSpec{From: "d2", To: "d4"}); err == nil {
		t.Fatalf("expected illegal move error")
	}
	// position unchanged after rejection
	if e.SideToMove() != "black" {
		t.Fatalf("rejected move mutated the position")
	}
}

func TestApply_Promotion(t *testing.T) {
	e := NewEngine()
	moves := []MoveSpec{
		{From: "a2", To: "a4"}, {From: "b7", To: "b5"},
		{From: "a4", To: "b5"}, {From: "b8", To: "c6"},
		{From: "b5", To: "b6"}, {From: "c6", To: "d4"},
		{From: "b6", To: "b7"}, {From: "d4", To: "f5"},
	}
	for i, mv := range moves {
		if _, err := e.Apply(mv); err != nil {
			t.Fatalf("move %d (%s): %v", i, mv.UCI(), err)
		}
	}
	ap, err := e.Apply(MoveSpec{From: "b7", To: "a8", Promotion: "q"})
	if err != nil {
		t.Fatalf("promotion: %v", err)
	}
	if ap.UCI != "b7a8q" {
		t.Fatalf("unexpected promotion uci: %s", ap.UCI)
	}
}

func TestVerdict_FoolsMate(t *testing.T) {
	e := NewEngine()
	moves := []MoveSpec{
		{From: "f2", To: "f3"}, {From: "e7", To: "e5"},
		{From: "g2", To: "g4"}, {From: "d8", To: "h4"},
	}
	for i, mv := range moves {
		if _, err := e.Apply(mv); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}
	v := e.Verdict()
	if !v.Over || !v.Checkmate {
		t.Fatalf("expected checkmate, got %+v", v)
	}
}

func TestValidateSyntax(t *testing.T) {
	if err := ValidateSyntax(MoveSpec{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	bad := []MoveSpec{
		{From: "e9", To: "e4"},
		{From: "e2", To: "i4"},
		{From: "", To: "e4"},
		{From: "e7", To: "e8", Promotion: "k"},
	}
	for _, spec := range bad {
		if err := ValidateSyntax(spec); err == nil {
			t.Fatalf("expected syntax error for %+v", spec)
		}
	}
}
