package reconcile

import (
	"sort"
	"testing"

	"feedsync/app/model"
)

func TestDiff_SetReconciliationCorrectness(t *testing.T) {
	cases := []struct {
		name   string
		local  []string
		remote []string
	}{
		{"both empty", nil, nil},
		{"remote empty removes all", []string{"a", "b"}, nil},
		{"local empty adds all", nil, []string{"a", "b"}},
		{"overlap", []string{"a", "b"}, []string{"b", "c"}},
		{"identical", []string{"x", "y", "z"}, []string{"x", "y", "z"}},
		{"disjoint", []string{"1", "2"}, []string{"3", "4"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := model.NewIDSet(tc.local...)
			remote := model.NewIDSet(tc.remote...)

			d := Diff(local, remote)

			// (local ∪ toAdd) - toRemove == remote
			result := local.Union(d.ToAdd).Subtracting(d.ToRemove)
			if !result.Equal(remote) {
				t.Errorf("(local ∪ toAdd) - toRemove = %v, want %v", result.Slice(), remote.Slice())
			}

			for id := range d.ToAdd {
				if local.Contains(id) {
					t.Errorf("toAdd contains local id %s", id)
				}
			}
			for id := range d.ToRemove {
				if remote.Contains(id) {
					t.Errorf("toRemove contains remote id %s", id)
				}
			}
			for id := range d.ToKeep {
				if !local.Contains(id) || !remote.Contains(id) {
					t.Errorf("toKeep id %s not in both sets", id)
				}
			}
		})
	}
}

func TestDiff_FeedScenario(t *testing.T) {
	// Local has {A, B}, remote returns {B, C}: after reconciliation the
	// local set must be {B, C}.
	local := model.NewIDSet("A", "B")
	remote := model.NewIDSet("B", "C")

	d := Diff(local, remote)

	if !d.ToAdd.Equal(model.NewIDSet("C")) {
		t.Errorf("toAdd = %v, want {C}", d.ToAdd.Slice())
	}
	if !d.ToRemove.Equal(model.NewIDSet("A")) {
		t.Errorf("toRemove = %v, want {A}", d.ToRemove.Slice())
	}
	if !d.ToKeep.Equal(model.NewIDSet("B")) {
		t.Errorf("toKeep = %v, want {B}", d.ToKeep.Slice())
	}
}

func TestPlanFolders(t *testing.T) {
	plan := PlanFolders([]string{"News", "Tech"}, []string{"Tech", "Sports"}, "")

	if len(plan.ToCreate) != 1 || plan.ToCreate[0] != "Sports" {
		t.Errorf("ToCreate = %v, want [Sports]", plan.ToCreate)
	}
	if len(plan.ToDissolve) != 1 || plan.ToDissolve[0] != "News" {
		t.Errorf("ToDissolve = %v, want [News]", plan.ToDissolve)
	}
}

func TestPlanFolders_PseudoFolderNeverMaterialized(t *testing.T) {
	plan := PlanFolders(nil, []string{"Tech", "global.uncategorized"}, "global.uncategorized")

	if len(plan.ToCreate) != 1 || plan.ToCreate[0] != "Tech" {
		t.Errorf("ToCreate = %v, want [Tech]", plan.ToCreate)
	}
	if len(plan.ToDissolve) != 0 {
		t.Errorf("ToDissolve = %v, want empty", plan.ToDissolve)
	}
}

func TestPlanMembership(t *testing.T) {
	plan := PlanMembership(model.NewIDSet("f1", "f2"), model.NewIDSet("f2", "f3"))

	sort.Strings(plan.ToEnter)
	sort.Strings(plan.ToLeave)
	if len(plan.ToEnter) != 1 || plan.ToEnter[0] != "f3" {
		t.Errorf("ToEnter = %v, want [f3]", plan.ToEnter)
	}
	if len(plan.ToLeave) != 1 || plan.ToLeave[0] != "f1" {
		t.Errorf("ToLeave = %v, want [f1]", plan.ToLeave)
	}
}

func TestStatusDiff_UnreadScenario(t *testing.T) {
	// Remote unread {1,2,3}, local unread {2,3,4}, no pending entries:
	// article 1 becomes unread, article 4 becomes read.
	delta := StatusDiff(
		model.NewIDSet("1", "2", "3"),
		model.NewIDSet(),
		model.NewIDSet("2", "3", "4"),
	)

	if !delta.SetOn.Equal(model.NewIDSet("1")) {
		t.Errorf("SetOn = %v, want {1}", delta.SetOn.Slice())
	}
	if !delta.SetOff.Equal(model.NewIDSet("4")) {
		t.Errorf("SetOff = %v, want {4}", delta.SetOff.Slice())
	}
}

func TestStatusDiff_PendingPrecedence(t *testing.T) {
	// Article 42 is starred locally with a pending entry not yet delivered.
	// The remote starred set is empty; 42 must not be unstarred while the
	// pending entry is outstanding.
	delta := StatusDiff(
		model.NewIDSet(),     // remote starred
		model.NewIDSet("42"), // pending
		model.NewIDSet("42"), // local starred
	)

	if delta.SetOn.Len() != 0 {
		t.Errorf("SetOn = %v, want empty", delta.SetOn.Slice())
	}
	if delta.SetOff.Contains("42") {
		t.Error("article 42 must keep its local starred state while pending")
	}

	// Once the pending entry clears, the next remote fetch is authoritative.
	delta = StatusDiff(model.NewIDSet(), model.NewIDSet(), model.NewIDSet("42"))
	if !delta.SetOff.Contains("42") {
		t.Error("article 42 must be unstarred once the pending entry is cleared")
	}
}

func TestStatusDiff_PendingReadNotReverted(t *testing.T) {
	// Pending "mark read" for article 9: a remote fetch still reporting 9
	// as unread must not revert the local read status.
	delta := StatusDiff(
		model.NewIDSet("9"), // remote still lists 9 unread
		model.NewIDSet("9"), // pending mark-read
		model.NewIDSet(),    // local unread set (9 already read locally)
	)

	if delta.SetOn.Contains("9") {
		t.Error("article 9 must not be marked unread while its pending entry is outstanding")
	}
}

func TestStatusDiff_Idempotent(t *testing.T) {
	remote := model.NewIDSet("1", "2")
	local := model.NewIDSet("1", "2")

	delta := StatusDiff(remote, model.NewIDSet(), local)
	if delta.SetOn.Len() != 0 || delta.SetOff.Len() != 0 {
		t.Errorf("matching sets must produce no mutations, got on=%v off=%v",
			delta.SetOn.Slice(), delta.SetOff.Slice())
	}
}
