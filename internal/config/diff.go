package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	AgentsChanged bool
	NewAgents     AgentsConfig

	TemperaturesChanged bool
	NewRouterTemp       float64
	NewSynthTemp        float64

	SchedulerChanged bool
	NewScheduler     SchedulerConfig

	CORSChanged bool
	NewCORS     []string

	LogLevelChanged bool
	NewLogLevel     string

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.AgentsChanged ||
		d.TemperaturesChanged ||
		d.SchedulerChanged ||
		d.CORSChanged ||
		d.LogLevelChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Agents != new.Agents {
		d.AgentsChanged = true
		d.NewAgents = new.Agents
	}

	if old.LLM.RouterTemperature != new.LLM.RouterTemperature ||
		old.LLM.SynthTemperature != new.LLM.SynthTemperature {
		d.TemperaturesChanged = true
		d.NewRouterTemp = new.LLM.RouterTemperature
		d.NewSynthTemp = new.LLM.SynthTemperature
	}

	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewScheduler = new.Scheduler
	}

	if !reflect.DeepEqual(old.Web.CORSOrigins, new.Web.CORSOrigins) {
		d.CORSChanged = true
		d.NewCORS = new.Web.CORSOrigins
	}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	// Non-reloadable warnings
	if old.Orchestrator.Port != new.Orchestrator.Port {
		d.NonReloadable = append(d.NonReloadable, "orchestrator.port")
	}
	if old.Knowledge.Port != new.Knowledge.Port {
		d.NonReloadable = append(d.NonReloadable, "knowledge.port")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.NATS != new.NATS {
		d.NonReloadable = append(d.NonReloadable, "nats")
	}
	oldLLM, newLLM := old.LLM, new.LLM
	oldLLM.RouterTemperature, oldLLM.SynthTemperature = 0, 0
	newLLM.RouterTemperature, newLLM.SynthTemperature = 0, 0
	if oldLLM != newLLM {
		d.NonReloadable = append(d.NonReloadable, "llm")
	}
	if !reflect.DeepEqual(old.Credentials, new.Credentials) {
		d.NonReloadable = append(d.NonReloadable, "credentials")
	}
	if old.Vault.Passphrase != new.Vault.Passphrase {
		d.NonReloadable = append(d.NonReloadable, "vault.passphrase")
	}
	if old.Web.Auth != new.Web.Auth {
		d.NonReloadable = append(d.NonReloadable, "web.auth")
	}

	return d
}
