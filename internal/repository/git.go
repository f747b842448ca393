package repository

import (
	"github.com/go-git/go-git/v5"
)

// gitHead returns the checked-out branch and HEAD commit of the work tree at
// root. Both are empty when root is not a git repository; branch is empty on
// a detached HEAD.
func gitHead(root string) (branch, commit string) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return "", ""
	}

	head, err := repo.Head()
	if err != nil {
		return "", ""
	}

	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	return branch, head.Hash().String()
}
