package logsource

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tinytelemetry/procmetrics/internal/atomicfile"
)

// Offset is the read position persisted between runs. The file layout is
// two decimal lines, "<inode>\n<offset>\n", which older offset files
// written by pygtail also use.
type Offset struct {
	Inode  uint64
	Offset int64
}

// ReadOffset loads an offset file. A missing or empty file is the zero
// offset (read from the start).
func ReadOffset(path string) (Offset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Offset{}, nil
		}
		return Offset{}, fmt.Errorf("logsource: read offset file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return Offset{}, nil
	}
	if len(fields) != 2 {
		return Offset{}, fmt.Errorf("logsource: offset file %s: want 2 fields, got %d", path, len(fields))
	}
	inode, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Offset{}, fmt.Errorf("logsource: parse inode: %w", err)
	}
	off, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Offset{}, fmt.Errorf("logsource: parse offset: %w", err)
	}
	if off < 0 {
		return Offset{}, fmt.Errorf("logsource: negative offset %d", off)
	}
	return Offset{Inode: inode, Offset: off}, nil
}

// WriteOffset atomically replaces the offset file.
func WriteOffset(path string, o Offset) error {
	payload := strconv.FormatUint(o.Inode, 10) + "\n" + strconv.FormatInt(o.Offset, 10) + "\n"
	if err := atomicfile.WriteFile(path, []byte(payload)); err != nil {
		return fmt.Errorf("logsource: write offset file: %w", err)
	}
	return nil
}
