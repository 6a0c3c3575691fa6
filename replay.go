package main

import (
	"context"
	"encoding/json"
	"io"
	"runtime"
	"strings"

	"github.com/leighmacdonald/watchdog/internal/watchdog"
	"github.com/nxadm/tail"
	"github.com/pkg/errors"
)

// replay feeds every line of a captured broadcast log through the parser and writes the
// recognised events as JSON lines. Without follow it returns at the end of the file.
func replay(ctx context.Context, path string, follow bool, out io.Writer) error {
	tailFile, errTail := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Poll:      runtime.GOOS == "windows",
		Logger:    tail.DiscardingLogger,
	})
	if errTail != nil {
		return errors.Wrap(errTail, "Failed to open broadcast log")
	}

	defer tailFile.Cleanup()

	encoder := json.NewEncoder(out)

	for {
		select {
		case <-ctx.Done():
			if errStop := tailFile.Stop(); errStop != nil {
				return errors.Wrap(errStop, "Failed to stop tailing cleanly")
			}

			return nil
		case line, ok := <-tailFile.Lines:
			if !ok {
				return nil
			}

			if line == nil {
				continue
			}

			if line.Err != nil {
				return errors.Wrap(line.Err, "Failed to read broadcast log")
			}

			evt, errParse := watchdog.ParseBroadcast(strings.TrimSuffix(line.Text, "\r"))
			if errParse != nil {
				continue
			}

			if errEncode := encoder.Encode(evt); errEncode != nil {
				return errors.Wrap(errEncode, "Failed to write event")
			}
		}
	}
}
