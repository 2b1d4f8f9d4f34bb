package resources

import "embed"

//go:embed migrations keywords
var FS embed.FS
