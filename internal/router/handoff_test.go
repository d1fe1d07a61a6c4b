package router

import (
	"testing"

	"github.com/voxdesk/voxdesk/pkg/types"
)

func TestParseHandoff_Marker(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantDept types.Department
		wantText string
		wantOK   bool
	}{
		{
			name:     "trailing marker",
			reply:    "Let me connect you now. [[handoff:shipping]]",
			wantDept: types.DeptShipping,
			wantText: "Let me connect you now.",
			wantOK:   true,
		},
		{
			name:     "marker with spaces and mixed case",
			reply:    "One moment. [[ Handoff : Sales ]]",
			wantDept: types.DeptSales,
			wantText: "One moment.",
			wantOK:   true,
		},
		{
			name:     "marker only",
			reply:    "[[handoff:accounts]]",
			wantDept: types.DeptAccounts,
			wantText: "",
			wantOK:   true,
		},
		{
			name:     "unknown department stripped and ignored",
			reply:    "Connecting you. [[handoff:warehouse]]",
			wantDept: "",
			wantText: "Connecting you.",
			wantOK:   false,
		},
		{
			name:     "receptionist is not a marker target",
			reply:    "Back to the front desk. [[handoff:receptionist]]",
			wantDept: "",
			wantText: "Back to the front desk.",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dept, text, ok := ParseHandoff(tt.reply)
			if dept != tt.wantDept || text != tt.wantText || ok != tt.wantOK {
				t.Errorf("ParseHandoff(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.reply, dept, text, ok, tt.wantDept, tt.wantText, tt.wantOK)
			}
		})
	}
}

func TestParseHandoff_Prose(t *testing.T) {
	t.Run("cue plus department word", func(t *testing.T) {
		dept, text, ok := ParseHandoff("Let me connect you to our shipping team.")
		if !ok || dept != types.DeptShipping {
			t.Fatalf("got (%q, %v), want shipping", dept, ok)
		}
		if text != "Let me connect you to our shipping team." {
			t.Errorf("prose replies are spoken unchanged, got %q", text)
		}
	})

	t.Run("cue with typo'd department", func(t *testing.T) {
		dept, _, ok := ParseHandoff("I'll put you through to suport now.")
		if !ok || dept != types.DeptSupport {
			t.Fatalf("got (%q, %v), want support", dept, ok)
		}
	})

	t.Run("cue without a department is not a hand-off", func(t *testing.T) {
		if _, _, ok := ParseHandoff("Let me connect you with more information about that."); ok {
			t.Fatal("hand-off detected without a department word")
		}
	})

	t.Run("sound-alike words are not departments", func(t *testing.T) {
		replies := []string{
			"Before I connect you, I suppose I should take your name first.",
			"I can connect you with someone about your shopping list.",
			"Let me transfer you; I suppose the supper rush has us busy.",
		}
		for _, reply := range replies {
			if dept, _, ok := ParseHandoff(reply); ok {
				t.Errorf("ParseHandoff(%q) = %q, want no hand-off", reply, dept)
			}
		}
	})

	t.Run("typo only counts in target position", func(t *testing.T) {
		// Same misspelling, but not after our/the/to and not before
		// team/department.
		if dept, _, ok := ParseHandoff("I'll put you through; suport is what you need."); ok {
			t.Errorf("got %q, want no hand-off for a typo outside target position", dept)
		}
	})

	t.Run("department word without a cue is not a hand-off", func(t *testing.T) {
		if _, _, ok := ParseHandoff("Our sales team is open until five."); ok {
			t.Fatal("hand-off detected without a cue phrase")
		}
	})
}
