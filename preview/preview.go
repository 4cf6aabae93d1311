// Package preview decides how an office document is shown in the browser. It reuses
// converted artifacts from the cache, drives the document and image engines and turns
// every outcome into a PresentationPlan.
package preview

import "log/slog"

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()
