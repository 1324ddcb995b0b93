package common

// Version is overridden at build time with -ldflags "-X github.com/afilmory/builder/common.Version=..."
var Version = "dev"

const PackageName = "github.com/afilmory/builder"
