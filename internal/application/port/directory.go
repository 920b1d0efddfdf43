package port

import "github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/entity"

// Directory is the read-only view of users and accounts used during workflow decisions
type Directory interface {
	User(id string) (*entity.User, bool)
	Account(id string) (*entity.Account, bool)
	// FinalApproverFor returns the user configured to close the chain for a theater
	FinalApproverFor(theater string) (*entity.User, bool)
}

// DirectoryViewer hands out a view of the directory that later refreshes do
// not change. A decision that reads the directory more than once takes one view.
type DirectoryViewer interface {
	View() Directory
}
