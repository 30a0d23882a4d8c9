package paramstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadDebounce coalesces bursts of editor and atomic-rename events.
const ReloadDebounce = 200 * time.Millisecond

// ReloadFunc observes each reload attempt.
type ReloadFunc func(added, updated int, err error)

// Watch reloads path into s whenever the file changes until ctx is done.
// The parent directory is watched so atomic replaces are seen. A failed
// reload leaves the store untouched.
func Watch(ctx context.Context, s *Store, path string, onReload ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	log.Info().Str("path", path).Msg("paramstore.Watch watching declarations")

	go func() {
		defer w.Close()
		var timer *time.Timer
		var timerC <-chan time.Time
		schedule := func() {
			if timer == nil {
				timer = time.NewTimer(ReloadDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(ReloadDebounce)
			}
			timerC = timer.C
		}
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				schedule()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", path).Msg("paramstore.Watch watch error")
			case <-timerC:
				timerC = nil
				added, updated, err := LoadInto(s, path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("paramstore.Watch reload failed")
				} else {
					log.Info().Str("path", path).Int("added", added).Int("updated", updated).Msg("paramstore.Watch reloaded")
				}
				if onReload != nil {
					onReload(added, updated, err)
				}
			}
		}
	}()
	return nil
}
