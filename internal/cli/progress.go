package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// newProgress returns a bar on stderr, or a silent one when logs are at
// info or below (they would interleave with it) or the output is JSON.
func newProgress(total int, description string, jsonLog bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if jsonLog || zerolog.GlobalLevel() < zerolog.WarnLevel {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}
