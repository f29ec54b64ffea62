package intake

import _ "embed"

// Version is the release of the intake module.
//
//go:embed VERSION
var Version string
