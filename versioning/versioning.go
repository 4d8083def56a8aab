package versioning

// set via ldflags at build time
var (
	Version   = "dev"
	Commit    = ""
	Branch    = ""
	BuildTime = ""
)
