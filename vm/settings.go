package vm

// Settings tune processors created by a ProcessorFactory.
type Settings struct {
	// LogInvalidAddChildArgs makes Add and AddChild warn when called with a
	// target but nothing to add. When false such calls are silent no-ops.
	LogInvalidAddChildArgs bool

	// StackReserve is the initial capacity of argument lists.
	StackReserve int

	// PoolSize caps how many released processors the factory keeps.
	PoolSize int
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		LogInvalidAddChildArgs: true,
		StackReserve:           10,
		PoolSize:               32,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.StackReserve <= 0 {
		s.StackReserve = d.StackReserve
	}
	if s.PoolSize < 0 {
		s.PoolSize = 0
	}
	return s
}
