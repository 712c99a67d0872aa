package authportal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/wI2L/jsondiff"
)

// LoadACLFile reads and unmarshals an ACL document. The result still needs to
// go through NormalizeACL.
func LoadACLFile(filename string) (*ACLConfigurationInput, error) {
	all, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	input := &ACLConfigurationInput{}
	if err := json.Unmarshal(all, input); err != nil {
		return nil, err
	}
	return input, nil
}

/*
ReloadACL normalizes a new ACL document and, if it is clean, swaps it into the
policy engine. The swap is wholesale and atomic: requests that are evaluating
mid-swap finish against the configuration they started with, and no field of
a live configuration is ever mutated.

If validation reports any error, the engine keeps running on its current
configuration and the error lists every problem found.

On a successful swap we log a JSON diff of the old and new documents, so that
the audit trail shows exactly which rules changed, not merely that a reload
happened.
*/
func (x *Central) ReloadACL(input *ACLConfigurationInput) error {
	x.reloadLock.Lock()
	defer x.reloadLock.Unlock()

	config, errors := NormalizeACL(input)
	if len(errors) != 0 {
		return NewError(ErrACLInvalid, strings.Join(errors, "; "))
	}

	if patch, err := jsondiff.Compare(x.aclInput, input); err != nil {
		x.Log.Warnf("Unable to diff ACL configurations: %v", err)
	} else if len(patch) == 0 {
		x.Log.Infof("ACL reloaded, no changes")
	} else if raw, err := json.Marshal(patch); err == nil {
		x.Log.Infof("ACL changed: %v", string(raw))
	}

	x.aclInput = input
	x.engine.Replace(config)
	x.Log.Infof("ACL reloaded with %v rule(s), default policy %v", len(config.Rules), config.DefaultPolicy)
	return nil
}

// ReloadACLFile re-reads the ACL document from disk and applies ReloadACL.
func (x *Central) ReloadACLFile(filename string) error {
	input, err := LoadACLFile(filename)
	if err != nil {
		return err
	}
	return x.ReloadACL(input)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// aclWatcher hot-reloads the ACL document whenever the file changes on disk.
type aclWatcher struct {
	central  *Central
	filename string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func startACLWatcher(central *Central, filename string) (*aclWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("Unable to create ACL watcher: %v", err)
	}
	// Watch the directory, not the file. Editors and config management tools
	// commonly replace the file via rename, which would silently detach a
	// watch placed on the file itself.
	if err := fsw.Add(filepath.Dir(filename)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("Unable to watch %v: %v", filepath.Dir(filename), err)
	}
	w := &aclWatcher{
		central:  central,
		filename: filename,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	go w.run()
	central.Log.Infof("Watching %v for ACL changes", filename)
	return w, nil
}

func (w *aclWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.filename) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.central.ReloadACLFile(w.filename); err != nil {
				w.central.Log.Errorf("ACL reload failed, keeping previous configuration: %v", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.central.Log.Warnf("ACL watcher error: %v", err)
		}
	}
}

func (w *aclWatcher) stop() {
	w.watcher.Close()
	<-w.done
}
