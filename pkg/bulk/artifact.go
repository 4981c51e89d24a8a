package bulk

import (
	"bufio"
	"os"

	"github.com/storekit-io/shopbulk/pkg/errors"
	"github.com/storekit-io/shopbulk/pkg/jsonx"
)

// maxLineSize bounds a single JSONL line; bulk records can carry long
// description fields but never approach this.
const maxLineSize = 16 * 1024 * 1024

// ReadArtifact streams the line-delimited JSON artifact at path, invoking fn
// once per decoded record. The file is read line by line so artifact size
// never dictates memory use.
func ReadArtifact(path string, fn func(record map[string]interface{}) error) error {
	file, err := os.Open(path) //nolint:gosec // G304: path is produced by the orchestrator
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "opening artifact")
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var record map[string]interface{}
		if err := jsonx.Unmarshal(raw, &record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "decoding artifact line").
				WithDetail("line", line)
		}

		if err := fn(record); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "reading artifact")
	}
	return nil
}
