package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built software version.
	Version string = PBSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

// PBSemVer is the current version of patchbay.
// It's the Semantic Version of the software.
const PBSemVer = "0.1.0"
