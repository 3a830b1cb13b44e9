package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like API
// keys or access tokens), and (3) the target names whose configuration
// changed (added, removed, or edited).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// LLM (never log keys)
	if llmChanged(oldCfg.LLM, newCfg.LLM) {
		changed = append(changed, "llm")
		attrs = append(attrs,
			logx.String("llm.primary_kind", newCfg.LLM.Primary.Kind),
			logx.String("llm.primary_model", newCfg.LLM.Primary.Model),
			logx.Bool("llm.secondary_set", newCfg.LLM.Secondary != nil),
			logx.Int("llm.retry_max", newCfg.LLM.RetryMax),
			logx.Int("llm.outer_retries", newCfg.LLM.OuterRetries),
		)
	}

	// Targets (summarize only; credentials stay out of the log)
	targetsChanged := diffTargets(oldCfg.Targets, newCfg.Targets)
	if len(targetsChanged) > 0 {
		changed = append(changed, "targets")
		attrs = append(attrs,
			logx.Int("targets.changed_count", len(targetsChanged)),
			logx.Int("targets.count", len(newCfg.Targets)),
		)
	}

	// Schedule
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	// Storage. Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	// Server
	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.metrics", newCfg.Server.Metrics),
			logx.Bool("server.pprof", newCfg.Server.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs, targetsChanged
}

func llmChanged(o, n LLMConfig) bool {
	if o.Primary != n.Primary {
		return true
	}
	if (o.Secondary == nil) != (n.Secondary == nil) {
		return true
	}
	if o.Secondary != nil && *o.Secondary != *n.Secondary {
		return true
	}
	return o.Timeout != n.Timeout || o.RetryMax != n.RetryMax ||
		o.RetryBase != n.RetryBase || o.RetryMaxDelay != n.RetryMaxDelay ||
		o.OuterRetries != n.OuterRetries
}

func diffTargets(oldM, newM map[string]TargetConfig) []string {
	if oldM == nil {
		oldM = map[string]TargetConfig{}
	}
	if newM == nil {
		newM = map[string]TargetConfig{}
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, oOK := oldM[name]
		n, nOK := newM[name]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
