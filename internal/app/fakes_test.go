package app

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/felixgeelhaar/pluginhost/internal/config"
	"github.com/felixgeelhaar/pluginhost/internal/domain/job"
	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
)

var errLoad = errors.New("load refused")

type stubPlugin struct {
	plugin.Base
	loadErr error
}

func (p *stubPlugin) OnLoad(context.Context) error { return p.loadErr }

func stubPluginFactory(m unit.Manifest, loadErr error) PluginFactory {
	return func(Deps, config.Settings) plugin.Constructor {
		return func(string, unit.Side) (plugin.Plugin, error) {
			p := &stubPlugin{loadErr: loadErr}
			p.SetManifest(m)
			return p, nil
		}
	}
}

type countingJob struct {
	job.Base
	ticks atomic.Int64
}

func (j *countingJob) Tick(context.Context, job.TaskQueue) error {
	j.ticks.Add(1)
	return nil
}

func countingJobFactory(m unit.Manifest, out **countingJob) JobFactory {
	return func(Deps, config.Settings) job.Constructor {
		return func(string, unit.Side) (job.Job, error) {
			j := &countingJob{}
			j.SetManifest(m)
			*out = j
			return j, nil
		}
	}
}
