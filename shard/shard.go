package shard

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"sync"

	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/echoface/geo_store/bitmapidx"
	"github.com/echoface/geo_store/entity"
	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/util"
)

const (
	filePerm = 0644
	dirPerm  = 0755
)

type (
	Options struct {
		FS          FileSystem
		Codec       entity.ElementCodec
		BitmapCodec bitmapidx.Codec
	}

	// Shard the persistent unit of one quad key: an append-only data log, an
	// append-only position index and a bitmap blob. All operations on a shard
	// serialize through its mutex.
	Shard struct {
		mu sync.Mutex

		qk    geo.QuadKey
		paths Paths
		opts  Options

		dataFile  File
		indexFile File

		dataSize int64
		count    uint32

		// loaded lazily, once per shard lifetime
		bitmap *bitmapidx.TermBitmap

		closed bool
	}

	// VerifyReport compares the position index against the data log
	VerifyReport struct {
		IndexRecords uint32
		DataEntries  uint32
		DataSize     int64
		// OrphanBytes payload bytes appended after the last indexed element
		OrphanBytes int64
	}
)

func (o *Options) normalize() {
	if o.FS == nil {
		o.FS = DefaultFS
	}
	if o.Codec == nil {
		o.Codec = entity.NewWireCodec()
	}
	if o.BitmapCodec == nil {
		o.BitmapCodec = bitmapidx.DefaultCodec
	}
}

// Open open or create the data log and position index of qk in append mode
func Open(layout Layout, qk geo.QuadKey, opts Options) (*Shard, error) {
	opts.normalize()
	s := &Shard{
		qk:    qk,
		paths: layout.Paths(qk),
		opts:  opts,
	}
	dir := layout.Dir(qk.LevelOfDetail)
	if err := opts.FS.MkdirAll(dir, dirPerm); err != nil {
		return nil, ioError("mkdir", dir, err)
	}
	if err := s.open(); err != nil {
		s.closeFiles()
		return nil, err
	}
	util.LogDebug("shard:%s opened, records:%d data:%d", qk, s.count, s.dataSize)
	return s, nil
}

func (s *Shard) open() (err error) {
	fs := s.opts.FS
	if _, err = fs.Stat(s.paths.Data); os.IsNotExist(err) {
		s.dropLeftovers()
	}
	if s.dataFile, err = fs.OpenFile(s.paths.Data, os.O_CREATE|os.O_RDWR|os.O_APPEND, filePerm); err != nil {
		return ioError("open", s.paths.Data, err)
	}
	info, err := s.dataFile.Stat()
	if err != nil {
		return ioError("stat", s.paths.Data, err)
	}
	s.dataSize = info.Size()

	if info, err = fs.Stat(s.paths.Index); err == nil && info.Size()%RecordSize != 0 {
		// a torn record from an interrupted append, drop it
		size := info.Size() / RecordSize * RecordSize
		util.LogErr("shard:%s index size:%d not aligned, truncate to:%d", s.qk, info.Size(), size)
		if err = fs.Truncate(s.paths.Index, size); err != nil {
			return ioError("truncate", s.paths.Index, err)
		}
	}
	if s.indexFile, err = fs.OpenFile(s.paths.Index, os.O_CREATE|os.O_RDWR|os.O_APPEND, filePerm); err != nil {
		return ioError("open", s.paths.Index, err)
	}
	if info, err = s.indexFile.Stat(); err != nil {
		return ioError("stat", s.paths.Index, err)
	}
	s.count = uint32(info.Size() / RecordSize)
	return nil
}

// dropLeftovers a data log is missing but index or bitmap survived a partial
// erase; they would misnumber the fresh shard
func (s *Shard) dropLeftovers() {
	fs := s.opts.FS
	for _, path := range []string{s.paths.Index, s.paths.Bitmap} {
		if _, err := fs.Stat(path); err != nil {
			continue
		}
		util.LogInfo("shard:%s drop leftover:%s", s.qk, path)
		if err := fs.Remove(path); err != nil {
			util.LogIfErr(fs.Truncate(path, 0), "truncate leftover:%s", path)
		}
	}
}

func (s *Shard) QuadKey() geo.QuadKey {
	return s.qk
}

func (s *Shard) Paths() Paths {
	return s.paths
}

// Count number of appended elements, equal to the next order
func (s *Shard) Count() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Shard) DataSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataSize
}

func (s *Shard) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Append write e to the end of the data log, then its (id, offset) record to
// the end of the position index; return the element's order
func (s *Shard) Append(e *entity.Element) (uint32, error) {
	payload, err := s.opts.Codec.Encode(e)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.dataSize+int64(len(payload)) > math.MaxUint32 {
		return 0, errors.Wrapf(ErrFull, "shard:%s", s.qk)
	}

	offset := s.dataSize
	n, err := s.dataFile.Write(payload)
	s.dataSize += int64(n)
	if err != nil {
		return 0, ioError("append", s.paths.Data, err)
	}

	record := Entry{ElementID: e.ID, Offset: uint32(offset)}.Encode(make([]byte, 0, RecordSize))
	if _, err = s.indexFile.Write(record); err != nil {
		return 0, ioError("append", s.paths.Index, err)
	}
	order := s.count
	s.count++
	return order, nil
}

// ReadEntry return the position index record of order
func (s *Shard) ReadEntry(order uint32) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readEntryLocked(order)
}

func (s *Shard) readEntryLocked(order uint32) (Entry, error) {
	if s.closed {
		return Entry{}, ErrClosed
	}
	if order >= s.count {
		return Entry{}, errors.Wrapf(ErrNotFound, "shard:%s order:%d count:%d", s.qk, order, s.count)
	}
	buf := make([]byte, RecordSize)
	if _, err := s.indexFile.ReadAt(buf, int64(order)*RecordSize); err != nil {
		return Entry{}, ioError("read", s.paths.Index, err)
	}
	return DecodeEntry(buf), nil
}

// ReadAt resolve order to its offset and decode the element stored there
func (s *Shard) ReadAt(order uint32) (*entity.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.readEntryLocked(order)
	if err != nil {
		return nil, err
	}
	return s.decodeLocked(int64(entry.Offset))
}

func (s *Shard) decodeLocked(offset int64) (*entity.Element, error) {
	if offset >= s.dataSize {
		return nil, errors.Wrapf(ErrNotFound, "shard:%s offset:%d beyond data:%d", s.qk, offset, s.dataSize)
	}
	r := bufio.NewReader(io.NewSectionReader(s.dataFile, offset, s.dataSize-offset))
	e, err := s.opts.Codec.Decode(r)
	if err != nil {
		return nil, ioError("decode", s.paths.Data, err)
	}
	return e, nil
}

// ScanAll visit elements in order 0..N-1, N taken when the scan starts.
// ctx is checked once per element; cancellation stops without error.
func (s *Shard) ScanAll(ctx context.Context, fn func(order uint32, e *entity.Element) error) error {
	count := s.Count()
	for order := uint32(0); order < count; order++ {
		if ctx.Err() != nil {
			return nil
		}
		e, err := s.ReadAt(order)
		if err != nil {
			return err
		}
		if err = fn(order, e); err != nil {
			return err
		}
	}
	return nil
}

// FindByID return the first order recorded for element id
func (s *Shard) FindByID(id uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	r := bufio.NewReader(io.NewSectionReader(s.indexFile, 0, int64(s.count)*RecordSize))
	buf := make([]byte, RecordSize)
	for order := uint32(0); order < s.count; order++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, ioError("read", s.paths.Index, err)
		}
		if DecodeEntry(buf).ElementID == id {
			return order, nil
		}
	}
	return 0, errors.Wrapf(ErrNotFound, "shard:%s element:%d", s.qk, id)
}

// Verify decode the whole data log and compare entry count and offsets
// with the position index; orphaned payloads are reported, not repaired
func (s *Shard) Verify() (VerifyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return VerifyReport{}, ErrClosed
	}

	report := VerifyReport{IndexRecords: s.count, DataSize: s.dataSize}
	counter := &countingReader{r: io.NewSectionReader(s.dataFile, 0, s.dataSize)}
	r := bufio.NewReader(counter)
	var lastIndexedEnd int64
	for consumed := int64(0); consumed < s.dataSize; {
		if report.DataEntries < s.count {
			entry, err := s.readEntryLocked(report.DataEntries)
			if err != nil {
				return report, err
			}
			if int64(entry.Offset) != consumed {
				return report, errors.Errorf("shard:%s order:%d offset:%d, decoded at:%d",
					s.qk, report.DataEntries, entry.Offset, consumed)
			}
		}
		if _, err := s.opts.Codec.Decode(r); err != nil {
			return report, ioError("decode", s.paths.Data, err)
		}
		consumed = counter.n - int64(r.Buffered())
		report.DataEntries++
		if report.DataEntries <= s.count {
			lastIndexedEnd = consumed
		}
	}
	report.OrphanBytes = s.dataSize - lastIndexedEnd
	util.LogErrIf(report.OrphanBytes > 0, "shard:%s has %d unindexed payload bytes", s.qk, report.OrphanBytes)
	return report, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Bitmap return the shard's term bitmap, loading the blob on first use
func (s *Shard) Bitmap() (*bitmapidx.TermBitmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.bitmap != nil {
		return s.bitmap, nil
	}

	file, err := s.opts.FS.OpenFile(s.paths.Bitmap, os.O_RDONLY, filePerm)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, ioError("open", s.paths.Bitmap, err)
		}
		s.bitmap = bitmapidx.NewTermBitmap()
		s.bitmap.Grow(s.count)
		return s.bitmap, nil
	}
	defer file.Close()

	tb, err := s.opts.BitmapCodec.Read(file)
	if err != nil {
		return nil, ioError("load", s.paths.Bitmap, err)
	}
	// a blob persisted before the last appends still has to cover their orders
	tb.Grow(s.count)
	s.bitmap = tb
	return s.bitmap, nil
}

// PersistBitmap rewrite the whole bitmap blob; it's written aside and renamed
// over the old blob so readers never see a partial file
func (s *Shard) PersistBitmap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.bitmap == nil {
		return nil
	}

	tmp := s.paths.Bitmap + tmpFileExt
	file, err := s.opts.FS.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return ioError("create", tmp, err)
	}
	if err = s.opts.BitmapCodec.Write(file, s.bitmap); err != nil {
		file.Close()
		return ioError("write", tmp, err)
	}
	if err = file.Close(); err != nil {
		return ioError("close", tmp, err)
	}
	if err = s.opts.FS.Rename(tmp, s.paths.Bitmap); err != nil {
		return ioError("rename", s.paths.Bitmap, err)
	}
	return nil
}

// Close release file handles and the in-memory bitmap; unflushed state does
// not exist since every write is synchronous
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.bitmap = nil
	return s.closeFiles()
}

func (s *Shard) closeFiles() error {
	var firstErr error
	if s.dataFile != nil {
		if err := s.dataFile.Close(); err != nil && firstErr == nil {
			firstErr = ioError("close", s.paths.Data, err)
		}
		s.dataFile = nil
	}
	if s.indexFile != nil {
		if err := s.indexFile.Close(); err != nil && firstErr == nil {
			firstErr = ioError("close", s.paths.Index, err)
		}
		s.indexFile = nil
	}
	return firstErr
}

// Erase close handles then remove the three files. Removal is best effort:
// a failed remove is logged and the remaining files are still removed.
func (s *Shard) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.bitmap = nil
		util.LogIfErr(s.closeFiles(), "shard:%s close before erase", s.qk)
	}

	return RemoveFiles(s.opts.FS, s.paths)
}

// RemoveFiles best effort removal of a shard's files, missing files are skipped
func RemoveFiles(fs FileSystem, paths Paths) error {
	var errs []error
	for _, path := range paths.All() {
		if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
			util.LogErr("cannot erase %s, err:%v", path, err)
			errs = append(errs, ioError("remove", path, err))
		}
	}
	return stderrors.Join(errs...)
}
