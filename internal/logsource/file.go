package logsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/procmetrics/internal/model"
)

// DefaultMaxLineSize is the longest line accepted before it is skipped.
const DefaultMaxLineSize = 1024 * 1024 // 1MB

// FileConfig holds tunable parameters for the file source.
type FileConfig struct {
	// MaxLines bounds the lines delivered per run. Zero means no bound.
	MaxLines    int
	MaxLineSize int
}

// segment is one file to read in a run: the rotated predecessor, then
// the live file.
type segment struct {
	path   string
	inode  uint64
	start  int64
	gz     bool
	rotate bool
}

// FileSource reads the complete lines appended to a log file since the
// last committed offset.
type FileSource struct {
	path       string
	offsetPath string
	cfg        FileConfig
	logger     zerolog.Logger
	segments   []segment

	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	done   chan struct{}

	// written by the reader goroutine, read after done is closed
	pos Offset
	err error
}

// OpenFile plans a read of path from the offset stored in offsetPath and
// starts delivering lines. A missing log file is returned as an error
// matching os.ErrNotExist.
func OpenFile(ctx context.Context, path, offsetPath string, cfg FileConfig, logger zerolog.Logger) (*FileSource, error) {
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = DefaultMaxLineSize
	}
	logger = logger.With().Str("component", "logsource").Str("path", path).Logger()

	saved, err := ReadOffset(offsetPath)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("logsource: stat %s: %w", path, err)
	}

	s := &FileSource{
		path:       path,
		offsetPath: offsetPath,
		cfg:        cfg,
		logger:     logger,
		ch:         make(chan model.IngestEnvelope),
		done:       make(chan struct{}),
	}
	s.segments = planSegments(path, saved, fi, logger)
	s.pos = Offset{Inode: s.segments[0].inode, Offset: s.segments[0].start}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.read(ctx)
	return s, nil
}

func planSegments(path string, saved Offset, fi os.FileInfo, logger zerolog.Logger) []segment {
	current := segment{path: path, inode: inodeOf(fi)}

	if saved.Inode != 0 && current.inode != 0 && saved.Inode != current.inode {
		logger.Info().Uint64("saved_inode", saved.Inode).Uint64("inode", current.inode).Msg("log rotated")
		if prev, ok := rotatedPredecessor(path, saved); ok {
			return []segment{prev, current}
		}
		logger.Warn().Msg("rotated log not found, reading the new file from the start")
		return []segment{current}
	}

	if fi.Size() < saved.Offset {
		logger.Info().Int64("size", fi.Size()).Int64("offset", saved.Offset).Msg("log truncated, reading from the start")
		return []segment{current}
	}
	current.start = saved.Offset
	return []segment{current}
}

func rotatedPredecessor(path string, saved Offset) (segment, bool) {
	plain := path + ".1"
	if fi, err := os.Stat(plain); err == nil && inodeOf(fi) == saved.Inode {
		return segment{path: plain, inode: saved.Inode, start: saved.Offset, rotate: true}, true
	}
	compressed := path + ".1.gz"
	if _, err := os.Stat(compressed); err == nil {
		return segment{path: compressed, inode: saved.Inode, start: saved.Offset, gz: true, rotate: true}, true
	}
	return segment{}, false
}

func (s *FileSource) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	sent := 0
	for i, seg := range s.segments {
		if i > 0 {
			s.pos = Offset{Inode: seg.inode, Offset: seg.start}
		}
		n, stop, err := s.readSegment(ctx, seg, sent)
		sent += n
		if err != nil {
			s.err = err
			return
		}
		if stop {
			return
		}
	}
}

// readSegment delivers lines from one file. It reports stop when the run
// must end inside this segment (batch bound reached or cancelled).
func (s *FileSource) readSegment(ctx context.Context, seg segment, sent int) (int, bool, error) {
	f, err := os.Open(seg.path)
	if err != nil {
		return 0, false, fmt.Errorf("logsource: open %s: %w", seg.path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if seg.gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return 0, false, fmt.Errorf("logsource: gzip %s: %w", seg.path, err)
		}
		defer zr.Close()
		r = zr
		if _, err := io.CopyN(io.Discard, zr, seg.start); err != nil && !errors.Is(err, io.EOF) {
			return 0, false, fmt.Errorf("logsource: skip to offset in %s: %w", seg.path, err)
		}
	} else if seg.start > 0 {
		if _, err := f.Seek(seg.start, io.SeekStart); err != nil {
			return 0, false, fmt.Errorf("logsource: seek %s: %w", seg.path, err)
		}
	}

	br := bufio.NewReaderSize(r, s.cfg.MaxLineSize)
	n := 0
	for {
		if s.cfg.MaxLines > 0 && sent+n >= s.cfg.MaxLines {
			return n, true, nil
		}
		line, size, complete, tooLong, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, false, fmt.Errorf("logsource: read %s: %w", seg.path, err)
		}
		// A rotated file is finished, so its unterminated tail is a line.
		// The live file's tail may still be written to.
		if !complete && !(seg.rotate && size > 0) {
			return n, false, nil
		}

		switch {
		case tooLong:
			s.logger.Warn().Int64("offset", s.pos.Offset).Int("max_line_size", s.cfg.MaxLineSize).Msg("skipping oversized line")
		case len(line) > 0:
			select {
			case s.ch <- model.IngestEnvelope{Source: s.Name(), Line: string(line)}:
				n++
			case <-ctx.Done():
				return n, true, nil
			}
		}
		s.pos.Offset += size
		if !complete {
			return n, false, nil
		}
	}
}

// readLine reads through the next newline. Lines longer than the reader's
// buffer are consumed but not returned.
func readLine(br *bufio.Reader) (line []byte, size int64, complete, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		size += int64(len(chunk))
		if errors.Is(err, bufio.ErrBufferFull) {
			tooLong = true
			continue
		}
		if !tooLong {
			line = bytes.TrimRight(append([]byte(nil), chunk...), "\r\n")
		}
		if err != nil {
			return line, size, false, tooLong, err
		}
		return line, size, true, tooLong, nil
	}
}

func (s *FileSource) Lines() <-chan model.IngestEnvelope { return s.ch }

// Err returns the read failure, if any, once Lines is closed.
func (s *FileSource) Err() error {
	<-s.done
	return s.err
}

// Position returns the offset reached once Lines is closed.
func (s *FileSource) Position() Offset {
	<-s.done
	return s.pos
}

// Commit persists the position reached so the next run resumes there.
func (s *FileSource) Commit() error {
	<-s.done
	if s.err != nil {
		return fmt.Errorf("logsource: not committing after read error: %w", s.err)
	}
	return WriteOffset(s.offsetPath, s.pos)
}

// Stop cancels the read and waits for the reader to exit.
func (s *FileSource) Stop() {
	s.cancel()
	<-s.done
}

func (s *FileSource) Name() string { return "file" }
