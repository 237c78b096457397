// Package valuefile implements the engine's data file: an append-only
// sequence of length-prefixed value records (see pkg/recordcodec for the
// framing), plus an in-place update path that the B+tree's update cascade
// falls back away from when a new value exceeds the record's current
// capacity (which shrinks after a downward update).
package valuefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ssargent/freyjadb/pkg/recordcodec"
)

// Config holds the tunables for opening a data file.
type Config struct {
	FilePath string

	// FsyncInterval controls how often Append forces a durability fsync.
	// Zero means every Append call fsyncs before returning, matching the
	// single-writer, no-WAL resource model the engine is built for.
	FsyncInterval time.Duration
}

// DataFile is the on-disk value-record store: append-allocate records,
// random-access reads, and a capacity-checked in-place update.
type DataFile struct {
	file   *os.File
	config Config
	mutex  sync.Mutex
	offset int64 // current end-of-file / append frontier

	fsyncTimer *time.Timer
	dirty      bool
}

// Open opens (creating if absent) the data file at config.FilePath.
func Open(config Config) (*DataFile, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("valuefile: create directory: %w", err)
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("valuefile: open %s: %w", config.FilePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("valuefile: stat %s: %w", config.FilePath, err)
	}

	df := &DataFile{
		file:   file,
		config: config,
		offset: stat.Size(),
	}

	if config.FsyncInterval > 0 {
		df.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			df.mutex.Lock()
			defer df.mutex.Unlock()
			if df.dirty {
				_ = df.file.Sync()
				df.dirty = false
			}
		})
	}

	return df, nil
}

// Append writes a new value record at the current end of the file and
// returns the byte offset of its length prefix.
func (df *DataFile) Append(value []byte) (uint64, error) {
	df.mutex.Lock()
	defer df.mutex.Unlock()

	frame := recordcodec.Encode(value)
	n, err := df.file.WriteAt(frame, df.offset)
	if err != nil {
		return 0, fmt.Errorf("valuefile: append: %w", err)
	}

	recordOffset := df.offset
	df.offset += int64(n)

	if err := df.sync(); err != nil {
		return 0, err
	}

	return uint64(recordOffset), nil
}

// Read returns the payload of the value record stored at offset.
func (df *DataFile) Read(offset uint64) ([]byte, error) {
	df.mutex.Lock()
	defer df.mutex.Unlock()

	header := make([]byte, recordcodec.HeaderSize)
	if _, err := df.file.ReadAt(header, int64(offset)); err != nil {
		return nil, fmt.Errorf("valuefile: read header at %d: %w", offset, err)
	}

	length, err := recordcodec.DecodeHeader(header)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, recordcodec.HeaderSize+int(length))
	copy(frame, header)
	if length > 0 {
		if _, err := df.file.ReadAt(frame[recordcodec.HeaderSize:], int64(offset)+recordcodec.HeaderSize); err != nil {
			return nil, fmt.Errorf("valuefile: read payload at %d: %w", offset, err)
		}
	}

	return recordcodec.DecodePayload(frame, length)
}

// UpdateInPlace attempts to overwrite the record at offset with value.
// It fails (returns false, nil) without writing anything if value is longer
// than the capacity recorded in the record's leading 8 bytes. On success the
// leading 8 bytes are overwritten with len(value), which becomes the new
// capacity ceiling. A downward update permanently shrinks future headroom.
func (df *DataFile) UpdateInPlace(offset uint64, value []byte) (bool, error) {
	df.mutex.Lock()
	defer df.mutex.Unlock()

	header := make([]byte, recordcodec.HeaderSize)
	if _, err := df.file.ReadAt(header, int64(offset)); err != nil {
		return false, fmt.Errorf("valuefile: read header at %d: %w", offset, err)
	}

	capacity, err := recordcodec.DecodeHeader(header)
	if err != nil {
		return false, err
	}

	if capacity < uint64(len(value)) {
		return false, nil
	}

	frame := recordcodec.Encode(value)

	if _, err := df.file.WriteAt(frame, int64(offset)); err != nil {
		return false, fmt.Errorf("valuefile: update at %d: %w", offset, err)
	}

	if err := df.sync(); err != nil {
		return false, err
	}

	return true, nil
}

// Size returns the current length of the data file.
func (df *DataFile) Size() int64 {
	df.mutex.Lock()
	defer df.mutex.Unlock()
	return df.offset
}

// sync fsyncs the file, or marks it dirty for the pending timer when a
// non-zero FsyncInterval is configured. Caller must hold df.mutex.
func (df *DataFile) sync() error {
	if df.config.FsyncInterval == 0 {
		if err := df.file.Sync(); err != nil {
			return fmt.Errorf("valuefile: fsync: %w", err)
		}
		return nil
	}

	df.dirty = true
	if df.fsyncTimer != nil {
		df.fsyncTimer.Reset(df.config.FsyncInterval)
	}
	return nil
}

// Close flushes any pending writes and closes the underlying file.
func (df *DataFile) Close() error {
	df.mutex.Lock()
	defer df.mutex.Unlock()

	if df.fsyncTimer != nil {
		df.fsyncTimer.Stop()
	}
	if df.dirty {
		if err := df.file.Sync(); err != nil {
			df.file.Close()
			return fmt.Errorf("valuefile: fsync on close: %w", err)
		}
	}
	return df.file.Close()
}
