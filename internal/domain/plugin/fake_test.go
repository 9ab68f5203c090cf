package plugin

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
)

// journal records hook calls across plugins in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) count(entry string) int {
	n := 0
	for _, e := range j.all() {
		if e == entry {
			n++
		}
	}
	return n
}

// fakePlugin records every hook it runs. failOn maps hook names to errors;
// panicOn names a hook that panics.
type fakePlugin struct {
	Base
	name    string
	log     *journal
	failOn  map[string]error
	panicOn string
}

func newFake(name string, log *journal, deps ...string) *fakePlugin {
	p := &fakePlugin{name: name, log: log, failOn: map[string]error{}}
	p.SetManifest(unit.Manifest{Name: name, Dependencies: deps})
	p.SetAPI(name + "-api")
	return p
}

func (p *fakePlugin) hook(hook string) error {
	p.log.add(hook + ":" + p.name)
	if p.panicOn == hook {
		panic(hook + " exploded")
	}
	return p.failOn[hook]
}

func (p *fakePlugin) OnLoad(context.Context) error    { return p.hook(HookLoad) }
func (p *fakePlugin) OnEnable(context.Context) error  { return p.hook(HookEnable) }
func (p *fakePlugin) OnDisable(context.Context) error { return p.hook(HookDisable) }
func (p *fakePlugin) OnUnload(context.Context) error  { return p.hook(HookUnload) }

func ctorOf(p Plugin) Constructor {
	return func(string, unit.Side) (Plugin, error) { return p, nil }
}

var errBoom = errors.New("boom")
