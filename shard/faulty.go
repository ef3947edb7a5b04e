package shard

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Fault which operations on a matched file name fail
type Fault struct {
	FailOpen   bool
	FailRemove bool
	FailWrite  bool
}

// FaultyFS a FileSystem wrapper injecting errors by file name pattern
type FaultyFS struct {
	FS  FileSystem
	Err error

	mu    sync.Mutex
	rules map[string]Fault
}

func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = DefaultFS
	}
	return &FaultyFS{
		FS:    fs,
		Err:   fmt.Errorf("injected fault error"),
		rules: make(map[string]Fault),
	}
}

// AddRule fail operations on files whose name contains pattern
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = make(map[string]Fault)
}

func (f *FaultyFS) fault(name string) (fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault.FailOpen = fault.FailOpen || rule.FailOpen
			fault.FailRemove = fault.FailRemove || rule.FailRemove
			fault.FailWrite = fault.FailWrite || rule.FailWrite
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	fault := f.fault(name)
	if fault.FailOpen {
		return nil, &os.PathError{Op: "open", Path: name, Err: f.Err}
	}
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil || !fault.FailWrite {
		return file, err
	}
	return &faultyFile{File: file, err: f.Err}, nil
}

func (f *FaultyFS) Remove(name string) error {
	if f.fault(name).FailRemove {
		return &os.PathError{Op: "remove", Path: name, Err: f.Err}
	}
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error  { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }
func (f *FaultyFS) Truncate(name string, size int64) error     { return f.FS.Truncate(name, size) }

type faultyFile struct {
	File
	err error
}

func (f *faultyFile) Write(p []byte) (int, error) {
	return 0, f.err
}
