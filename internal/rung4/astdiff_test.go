package rung4

import "testing"

func findOp(ops []StructuralOp, name string) *StructuralOp {
	for i := range ops {
		if ops[i].Op == name {
			return &ops[i]
		}
	}
	return nil
}

func TestDiffStructureNoChange(t *testing.T) {
	code := "function a() {\n  return 1\n}\n"
	if ops := DiffStructure(code, code); ops != nil {
		t.Fatalf("expected nil ops, got %v", ops)
	}
}

func TestDiffStructureAddFunction(t *testing.T) {
	before := "function a() {\n  return 1\n}\n"
	after := before + "\nfunction b() {\n  return 2\n}\n"

	ops := DiffStructure(before, after)
	op := findOp(ops, "ADD_FUNCTION")
	if op == nil {
		t.Fatalf("no ADD_FUNCTION in %v", ops)
	}
	if op.Change != "add" || op.Count != 1 {
		t.Errorf("op = %+v", op)
	}
	if op.Line != 1 {
		// The first function in the after-state anchors the op.
		t.Errorf("line = %d, want 1", op.Line)
	}
}

func TestDiffStructureRemoveImportUsesSentinelLine(t *testing.T) {
	before := "import fs from 'fs'\nimport path from 'path'\nconst x = 1\n"
	after := "import fs from 'fs'\nconst x = 1\n"

	ops := DiffStructure(before, after)
	op := findOp(ops, "REMOVE_IMPORT")
	if op == nil {
		t.Fatalf("no REMOVE_IMPORT in %v", ops)
	}
	if op.Line != 1 {
		t.Errorf("removed construct line = %d, want sentinel 1", op.Line)
	}
	if op.Change != "remove" {
		t.Errorf("change = %q, want remove", op.Change)
	}
}

func TestDiffStructureAddIfAndLoop(t *testing.T) {
	before := "def work():\n    return 0\n"
	after := "def work():\n    if ready:\n        return 0\n    for i in items:\n        step(i)\n"

	ops := DiffStructure(before, after)
	if findOp(ops, "ADD_IF_CONDITION") == nil {
		t.Errorf("no ADD_IF_CONDITION in %v", ops)
	}
	if findOp(ops, "ADD_LOOP") == nil {
		t.Errorf("no ADD_LOOP in %v", ops)
	}
}

func TestDiffStructureStatementFallbacks(t *testing.T) {
	// Same construct counts, same statement count, different content.
	ops := DiffStructure("x = 1\n", "x = 2\n")
	if len(ops) != 1 || ops[0].Op != "MODIFY_STATEMENT" {
		t.Fatalf("ops = %v, want single MODIFY_STATEMENT", ops)
	}
	if ops[0].Line != 1 {
		t.Errorf("line = %d, want sentinel 1", ops[0].Line)
	}

	// Comments and blanks are not statements.
	ops = DiffStructure("x = 1\n", "x = 1\n// note\n\ny++\n")
	if len(ops) != 1 || ops[0].Op != "ADD_STATEMENT" || ops[0].Count != 1 {
		t.Fatalf("ops = %v, want ADD_STATEMENT count 1", ops)
	}
}

func TestChangeStyle(t *testing.T) {
	cases := []struct {
		name string
		ops  []StructuralOp
		want string
	}{
		{"empty", nil, "modify"},
		{"all add", []StructuralOp{{Change: "add"}, {Change: "add"}}, "add"},
		{"remove maps to delete", []StructuralOp{{Change: "remove"}}, "delete"},
		{"all modify", []StructuralOp{{Change: "modify"}}, "modify"},
		{"mixed", []StructuralOp{{Change: "add"}, {Change: "remove"}}, "mixed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ChangeStyle(tc.ops); got != tc.want {
				t.Errorf("ChangeStyle = %q, want %q", got, tc.want)
			}
		})
	}
}
