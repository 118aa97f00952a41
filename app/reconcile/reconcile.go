// Package reconcile computes add/remove/update deltas between a local and a
// remote snapshot of the same logical set. It performs no I/O.
package reconcile

import (
	"feedsync/app/model"
)

// Delta is the outcome of diffing a local id set against a remote id set.
// ToKeep members may still need field-level updates (a renamed feed, say).
type Delta struct {
	ToAdd    model.IDSet
	ToRemove model.IDSet
	ToKeep   model.IDSet
}

// Diff returns toAdd = remote - local, toRemove = local - remote,
// toKeep = local ∩ remote.
func Diff(local, remote model.IDSet) Delta {
	return Delta{
		ToAdd:    remote.Subtracting(local),
		ToRemove: local.Subtracting(remote),
		ToKeep:   local.Intersecting(remote),
	}
}

// FolderPlan describes how the local folder set must change to match the
// remote folder set. Dissolved folders have their member feeds reparented to
// the account top level before removal, never deleted with them.
type FolderPlan struct {
	ToCreate   []string
	ToDissolve []string
}

// PlanFolders diffs folder name sets. A provider's "uncategorized" sentinel
// pseudo-folder is never materialized as a real folder; pass it as pseudo
// (empty string when the provider has none).
func PlanFolders(localNames, remoteNames []string, pseudo string) FolderPlan {
	local := model.NewIDSet(localNames...)
	remote := make(model.IDSet, len(remoteNames))
	for _, name := range remoteNames {
		if pseudo != "" && name == pseudo {
			continue
		}
		remote.Add(name)
	}

	d := Diff(local, remote)
	return FolderPlan{
		ToCreate:   d.ToAdd.Slice(),
		ToDissolve: d.ToRemove.Slice(),
	}
}

// MembershipPlan describes how one folder's member feed set must change.
// Leaving feeds are reparented to the account top level, not deleted.
type MembershipPlan struct {
	ToEnter []string
	ToLeave []string
}

// PlanMembership diffs a folder's current member feed ids against the
// provider's relationship records for that folder.
func PlanMembership(folderFeedIDs, remoteMemberIDs model.IDSet) MembershipPlan {
	d := Diff(folderFeedIDs, remoteMemberIDs)
	return MembershipPlan{
		ToEnter: d.ToAdd.Slice(),
		ToLeave: d.ToRemove.Slice(),
	}
}

// StatusDelta holds the bulk status flips produced by a two-directional
// status reconciliation.
type StatusDelta struct {
	// SetOn are ids whose flag must be turned on locally (mark unread for
	// the read key's unread set, mark starred for the starred key).
	SetOn model.IDSet
	// SetOff are ids whose flag must be turned off locally.
	SetOff model.IDSet
}

// StatusDiff reconciles a remote status id set against the local one.
// Ids with an outstanding pending local mutation are authoritative locally
// and are excluded from the remote set before diffing, so a stale remote
// read cannot overwrite an unconfirmed local change.
//
//	applicable = remote - pending
//	SetOn      = applicable - local
//	SetOff     = local - applicable
func StatusDiff(remote, pending, local model.IDSet) StatusDelta {
	applicable := remote.Subtracting(pending)
	return StatusDelta{
		SetOn:  applicable.Subtracting(local),
		SetOff: local.Subtracting(applicable).Subtracting(pending),
	}
}
