package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"

	"github.com/joho/godotenv"

	isatty "github.com/mattn/go-isatty"

	"github.com/pkg/errors"

	"github.com/spf13/cobra"

	"github.com/pathwatch/pathwatch/cmd"
	"github.com/pathwatch/pathwatch/pkg/encoding"
	"github.com/pathwatch/pathwatch/pkg/filter"
	"github.com/pathwatch/pathwatch/pkg/inotify"
	"github.com/pathwatch/pathwatch/pkg/logging"
)

func watchMain(command *cobra.Command, arguments []string) error {
	// Load environment defaults if an environment file exists. A missing
	// default file is not an error.
	if err := godotenv.Load(watchConfiguration.envFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to load environment file")
	}

	// Load the configuration file, if one was specified.
	configuration := &Configuration{}
	if watchConfiguration.configuration != "" {
		if err := encoding.LoadAndUnmarshalYAML(watchConfiguration.configuration, configuration); err != nil {
			return errors.Wrap(err, "unable to load configuration file")
		}
	}

	// Merge watch roots from the configuration file and the command line.
	roots := append(configuration.Roots, arguments...)
	if len(roots) == 0 {
		return errors.New("no paths specified")
	}

	// Compute the event mask, preferring command line event kinds over the
	// configuration file's. If no event kinds were specified, watch for
	// everything.
	mask := watchConfiguration.events.mask
	if mask == 0 {
		for _, name := range configuration.Events {
			bit, ok := inotify.NameToMask(name)
			if !ok {
				return errors.Errorf("unknown event kind: %s", name)
			}
			mask |= bit
		}
	}
	if mask == 0 {
		mask = inotify.InAllEvents
	}

	// Assemble exclusion patterns from the configuration file, the command
	// line, and the environment.
	excludes := append(configuration.Excludes, watchConfiguration.excludes...)
	if value := os.Getenv("PATHWATCH_EXCLUDE"); value != "" {
		excludes = append(excludes, strings.Split(value, ",")...)
	}
	exclusionFilter, err := filter.New(excludes)
	if err != nil {
		return errors.Wrap(err, "unable to create exclusion filter")
	}

	// Merge remaining settings.
	recursive := watchConfiguration.recursive || configuration.Recursive
	autoAdd := watchConfiguration.autoAdd || configuration.AutoAdd
	maximumWatches := watchConfiguration.maximumWatches
	if maximumWatches == 0 {
		maximumWatches = configuration.MaximumWatches
	}

	// Suppress colored output if standard output isn't a terminal.
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) &&
		!isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Create the watcher and defer its closure.
	watcher, err := inotify.NewWatcher(&inotify.Options{
		Filter:         exclusionFilter,
		MaximumWatches: maximumWatches,
		AutoAdd:        autoAdd,
		Logger:         logging.RootLogger.Sublogger("watch"),
	})
	if err != nil {
		return errors.Wrap(err, "unable to create watcher")
	}
	defer watcher.Close()

	// Establish watches on the specified roots.
	for _, root := range roots {
		if recursive {
			if _, err := watcher.AddRecursive(root, mask); err != nil {
				return errors.Wrapf(err, "unable to watch %s", root)
			}
		} else {
			if _, err := watcher.Add(root, mask); err != nil {
				return errors.Wrapf(err, "unable to watch %s", root)
			}
		}
	}

	// Close the watcher on termination signals so that the dispatch loop
	// unwinds cleanly.
	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, cmd.TerminationSignals...)
	go func() {
		<-signalTermination
		watcher.Close()
	}()

	// Run the dispatch loop, printing each event.
	err = watcher.Run(func(event inotify.Event) {
		if event.Cookie != 0 {
			fmt.Printf("%s %s (cookie %d)\n",
				color.CyanString(event.Mask.String()), event.Pathname(), event.Cookie,
			)
		} else {
			fmt.Printf("%s %s\n", color.CyanString(event.Mask.String()), event.Pathname())
		}
	})

	// Closure via signal is the expected exit path. Print session statistics
	// if requested.
	if errors.Is(err, inotify.ErrPortClosed) {
		if watchConfiguration.statistics {
			fmt.Fprintln(os.Stderr, watcher.Statistics())
		}
		return nil
	}
	return err
}

var watchCommand = &cobra.Command{
	Use:   "watch [<path>...]",
	Short: "Watch paths and print change events",
	Run:   cmd.Mainify(watchMain),
}

var watchConfiguration struct {
	// help indicates whether or not help information should be shown for the
	// command.
	help bool
	// configuration is the path of a YAML configuration file.
	configuration string
	// envFile is the path of an environment defaults file.
	envFile string
	// events is the accumulated event mask to watch for.
	events maskFlag
	// excludes are doublestar patterns excluding paths from recursive and
	// automatic watching.
	excludes []string
	// recursive indicates whether roots should be watched recursively.
	recursive bool
	// autoAdd indicates whether created subdirectories should be watched
	// automatically.
	autoAdd bool
	// maximumWatches, if positive, bounds the number of concurrently active
	// watches.
	maximumWatches int
	// statistics indicates whether session statistics should be printed on
	// exit.
	statistics bool
}

func init() {
	// Grab a handle for the command line flags.
	flags := watchCommand.Flags()

	// Disable alphabetical sorting of flags in help output.
	flags.SortFlags = false

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&watchConfiguration.help, "help", "h", false, "Show help information")

	// Wire up watch flags.
	flags.StringVarP(&watchConfiguration.configuration, "configuration", "c", "", "Specify a YAML configuration file")
	flags.StringVar(&watchConfiguration.envFile, "env-file", ".pathwatch.env", "Specify an environment defaults file")
	flags.VarP(&watchConfiguration.events, "event", "e", "Specify event kinds to watch for (default all)")
	flags.StringSliceVarP(&watchConfiguration.excludes, "exclude", "x", nil, "Exclude paths matching a doublestar pattern")
	flags.BoolVarP(&watchConfiguration.recursive, "recursive", "r", false, "Watch directory trees recursively")
	flags.BoolVarP(&watchConfiguration.autoAdd, "auto-add", "a", false, "Automatically watch created subdirectories")
	flags.IntVar(&watchConfiguration.maximumWatches, "max-watches", 0, "Bound the number of active watches (0 for unbounded)")
	flags.BoolVar(&watchConfiguration.statistics, "statistics", false, "Print session statistics on exit")
}
