package config

import "fmt"

// Version describes the running binary. Fields are set with -ldflags during a release.
type Version struct {
	GitCommit, GitRef, Version string
}

func (a *Version) String() string {
	return fmt.Sprintf("GitCommit=%q GitRef=%q Version=%q", a.GitCommit, a.GitRef, a.Version)
}
