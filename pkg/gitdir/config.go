package gitdir

// Config selects how the metadata directory is located.
type Config struct {
	// Roam searches the start directory and its ancestors for the nearest
	// .git entry instead of only looking at the start directory's child.
	Roam bool

	// Common maps the metadata directory of a linked worktree to the
	// repository's common directory, as named by its commondir file.
	Common bool
}

// Arg is the configuration argument of the resolve functions.
// It is either a Config or the legacy Roam flag; nil means the zero Config.
type Arg interface {
	config() Config
}

func (c Config) config() Config { return c }

// Roam is the older form of the configuration argument: a bare boolean
// that only controls ancestor search. Roam(true) is Config{Roam: true}.
type Roam bool

func (r Roam) config() Config { return Config{Roam: bool(r)} }

// normalize collapses an Arg into a Config before any resolution starts.
func normalize(arg Arg) Config {
	if arg == nil {
		return Config{}
	}
	return arg.config()
}
