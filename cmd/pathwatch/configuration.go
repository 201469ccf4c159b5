package main

// Configuration encodes a watch specification loaded from a YAML
// configuration file. Settings specified on the command line extend and
// override the file's contents.
type Configuration struct {
	// Roots are the paths to watch.
	Roots []string `yaml:"roots"`
	// Events are the names of the event kinds to watch for. If empty, all
	// event kinds are watched.
	Events []string `yaml:"events"`
	// Excludes are doublestar patterns excluding paths from recursive and
	// automatic watching.
	Excludes []string `yaml:"excludes"`
	// Recursive indicates whether roots should be watched recursively.
	Recursive bool `yaml:"recursive"`
	// AutoAdd indicates whether created subdirectories should be watched
	// automatically.
	AutoAdd bool `yaml:"autoAdd"`
	// MaximumWatches, if positive, bounds the number of concurrently active
	// watches, evicting the least-recently-added watch when exceeded.
	MaximumWatches int `yaml:"maximumWatches"`
}
