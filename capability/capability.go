// Package capability describes which optional protocol features the
// connected node supports. A Set is computed once when a connection is set up
// and handed to everything that needs to adapt a request to the node.
package capability

import (
	"regexp"

	"github.com/coreos/go-semver/semver"
)

// Set holds one flag per optional feature. The zero Set supports nothing.
type Set struct {
	// QuorumControls covers pr, pw, basic_quorum and notfound_ok
	QuorumControls bool

	// Conditionals covers if_modified, if_not_modified and if_none_match
	Conditionals bool

	// HeadRequests covers head and return_head
	HeadRequests bool

	// TombstoneVClocks covers deletedvclock and sending a vclock with a delete
	TombstoneVClocks bool

	// PhaselessMapReduce allows map-reduce jobs with no phases
	PhaselessMapReduce bool

	// Indexes allows secondary index queries over protocol buffers
	Indexes bool

	// Search allows search queries over protocol buffers
	Search bool
}

var (
	v1_0 = semver.Version{Major: 1}
	v1_1 = semver.Version{Major: 1, Minor: 1}
	v1_2 = semver.Version{Major: 1, Minor: 2}

	versionPrefix = regexp.MustCompile(`^\d+\.\d+\.\d+`)
)

// Detect derives the Set for a node reporting version, e.g. "1.4.12" or
// "2.0.0p1". Unparseable versions support nothing.
func Detect(version string) Set {
	v, ok := parseVersion(version)
	if !ok {
		return Set{}
	}

	atLeast := func(min semver.Version) bool {
		return !v.LessThan(min)
	}

	return Set{
		QuorumControls:     atLeast(v1_0),
		Conditionals:       atLeast(v1_0),
		HeadRequests:       atLeast(v1_0),
		TombstoneVClocks:   atLeast(v1_0),
		PhaselessMapReduce: atLeast(v1_1),
		Indexes:            atLeast(v1_2),
		Search:             atLeast(v1_2),
	}
}

// All is the Set of a node supporting every feature.
func All() Set {
	return Set{
		QuorumControls:     true,
		Conditionals:       true,
		HeadRequests:       true,
		TombstoneVClocks:   true,
		PhaselessMapReduce: true,
		Indexes:            true,
		Search:             true,
	}
}

// parseVersion keeps the leading major.minor.patch since nodes append build
// suffixes semver does not accept.
func parseVersion(version string) (semver.Version, bool) {
	prefix := versionPrefix.FindString(version)
	if prefix == "" {
		return semver.Version{}, false
	}

	v, err := semver.NewVersion(prefix)
	if err != nil {
		return semver.Version{}, false
	}

	return *v, true
}
