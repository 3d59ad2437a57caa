// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reloadRecorder collects configs handed to the watch callback.
type reloadRecorder struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (r *reloadRecorder) record(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs)
}

func (r *reloadRecorder) last() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfgs) == 0 {
		return nil
	}
	return r.cfgs[len(r.cfgs)-1]
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mariaflow.yaml")
	writeConfig(t, path, "pool_maxsize: 10\n")

	rec := &reloadRecorder{}
	w, err := Watch(path, nil, rec.record)
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, path, "pool_maxsize: 20\n")

	require.Eventually(t, func() bool {
		return rec.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 20, rec.last().PoolMaxSize)
}

func TestWatcherKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mariaflow.yaml")
	writeConfig(t, path, "pool_maxsize: 10\n")

	rec := &reloadRecorder{}
	w, err := Watch(path, nil, rec.record)
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, path, "pool_minsize: 0\n")
	// A valid write after the broken one proves the watcher survived it.
	writeConfig(t, path, "pool_maxsize: 30\n")

	require.Eventually(t, func() bool {
		return rec.last() != nil && rec.last().PoolMaxSize == 30
	}, 5*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, cfg := range rec.cfgs {
		assert.NotEqual(t, 0, cfg.PoolMinSize, "invalid config never reaches the callback")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mariaflow.yaml")
	writeConfig(t, path, "pool_maxsize: 10\n")

	rec := &reloadRecorder{}
	w, err := Watch(path, nil, rec.record)
	require.NoError(t, err)
	defer w.Close()

	writeConfig(t, filepath.Join(dir, "other.yaml"), "pool_maxsize: 99\n")
	// Touch the watched file afterwards so the assertion has a fence.
	writeConfig(t, path, "pool_maxsize: 11\n")

	require.Eventually(t, func() bool {
		return rec.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 11, rec.last().PoolMaxSize)
}

func TestWatcherCloseStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mariaflow.yaml")
	writeConfig(t, path, "pool_maxsize: 10\n")

	rec := &reloadRecorder{}
	w, err := Watch(path, nil, rec.record)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	writeConfig(t, path, "pool_maxsize: 20\n")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestWatchMissingDirectoryFails(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "nope", "mariaflow.yaml"), nil, func(*Config) {})
	require.Error(t, err)
}
