package syncer

import "github.com/dmitrijs2005/catchkeeper/internal/client/models"

// Winner names the side kept by Resolve.
type Winner int

const (
	LocalWins Winner = iota
	RemoteWins
)

func (w Winner) String() string {
	if w == RemoteWins {
		return "remote"
	}
	return "local"
}

// Resolve picks between two versions of the same record, last write wins by
// effective time. The remote version wins only when strictly newer and comes
// back marked synced; otherwise the local version is kept and marked unsynced
// so the next push overwrites the stale remote copy.
func Resolve(local, remote models.Catch) (models.Catch, Winner) {
	if remote.EffectiveTime().After(local.EffectiveTime()) {
		c := remote.Clone()
		c.Synced, c.SyncError = true, false
		return c, RemoteWins
	}
	c := local.Clone()
	c.Synced = false
	return c, LocalWins
}
